package events

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatsync/database"
	"chatsync/errs"
)

// Retry resets an errored event to new and replays its stored payload
// through the pipeline. This is the only path back out of the error state.
//
//	@Summary      Retry an errored event
//	@Produce      json
//	@Param        event_uuid path string true "Event UUID"
//	@Router       /api/v1/events/{event_uuid}/retry [post]
func (h *EventsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	eventUUID := r.PathValue("event_uuid")
	if eventUUID == "" {
		http.Error(w, "Invalid event UUID", http.StatusBadRequest)
		return
	}

	if err := h.Router.Retry(r.Context(), eventUUID); err != nil {
		var configErr *errs.ConfigError
		if errors.As(err, &configErr) {
			http.Error(w, configErr.Reason, http.StatusConflict)
			return
		}
		var decodeErr *errs.DecodeError
		if errors.As(err, &decodeErr) {
			http.Error(w, "Stored payload is undecodable", http.StatusUnprocessableEntity)
			return
		}
		h.Logger.Error("event retry failed", "event", eventUUID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var record database.ExternalEvent
	if q := h.DB.Where("uuid = ?", eventUUID).First(&record); q.Error != nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}
