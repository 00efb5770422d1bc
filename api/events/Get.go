package events

import (
	"encoding/json"
	"net/http"

	"chatsync/database"
)

// Get returns a single event by UUID, including its stored payload.
//
//	@Summary      Get an external event
//	@Produce      json
//	@Param        event_uuid path string true "Event UUID"
//	@Router       /api/v1/events/{event_uuid} [get]
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventUUID := r.PathValue("event_uuid")
	if eventUUID == "" {
		http.Error(w, "Invalid event UUID", http.StatusBadRequest)
		return
	}

	var record database.ExternalEvent
	if q := h.DB.Where("uuid = ?", eventUUID).First(&record); q.Error != nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	type eventWithPayload struct {
		database.ExternalEvent
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(eventWithPayload{
		ExternalEvent: record,
		Payload:       json.RawMessage(record.Payload),
	})
}
