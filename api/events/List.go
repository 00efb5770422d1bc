package events

import (
	"encoding/json"
	"net/http"
	"strconv"

	"chatsync/database"
)

type listResponse struct {
	Total  int64                    `json:"total"`
	Page   int                      `json:"page"`
	Limit  int                      `json:"limit"`
	Events []database.ExternalEvent `json:"events"`
}

// List returns the event log, newest first.
//
//	@Summary      List external events
//	@Produce      json
//	@Param        page query int false "Page number"
//	@Param        limit query int false "Page size"
//	@Param        status query string false "Filter by status"
//	@Router       /api/v1/events/list [get]
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := h.DB.Model(&database.ExternalEvent{})
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if q := query.Count(&total); q.Error != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var records []database.ExternalEvent
	q := query.Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records)
	if q.Error != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listResponse{
		Total:  total,
		Page:   page,
		Limit:  limit,
		Events: records,
	})
}
