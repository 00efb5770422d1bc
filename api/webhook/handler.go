package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chatsync/database"
	"chatsync/errs"
	"chatsync/events"

	"gorm.io/gorm"
)

// WebhookHandler is the push-mode ingress: the queue listener (or the
// provider directly) POSTs envelopes here.
type WebhookHandler struct {
	DB     *gorm.DB
	Router *events.Router
	Logger *slog.Logger
}

func NewWebhookHandler(db *gorm.DB, router *events.Router, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{DB: db, Router: router, Logger: logger}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// Receive ingests one event envelope.
//
//	@Summary      Receive an event envelope
//	@Accept       json
//	@Router       /webhook [post]
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "Missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	cred, err := database.FindCredentialByWebhookToken(h.DB, token)
	if err != nil {
		h.Logger.Error("webhook credential lookup failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if cred == nil {
		http.Error(w, "Invalid webhook token", http.StatusUnauthorized)
		return
	}

	var env events.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ev, err := events.Normalize(&env)
	if err != nil {
		var decodeErr *errs.DecodeError
		if errors.As(err, &decodeErr) {
			// No identity to deduplicate on: drop at the boundary, never retry.
			h.Logger.Warn("dropping undecodable event", "message_id", env.MessageID, "error", err)
			http.Error(w, "Invalid event data format", http.StatusBadRequest)
			return
		}
		h.Logger.Error("normalize failed", "message_id", env.MessageID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// The router absorbs processing failures into the event record; only a
	// failure to even record the event reaches this point.
	if err := h.Router.Process(r.Context(), ev); err != nil {
		h.Logger.Error("event ingestion failed", "event", ev.ExternalEventID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type healthResponse struct {
	Status        string  `json:"status"`
	ActiveConfigs int64   `json:"active_configs"`
	LastEventAt   *string `json:"last_event_at,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Health reports whether the ingress can serve events.
//
//	@Summary      Webhook health check
//	@Produce      json
//	@Router       /webhook/health [get]
func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	count, err := database.CountActiveCredentials(h.DB)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(healthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}

	resp := healthResponse{Status: "healthy", ActiveConfigs: count}
	if last := database.LatestEventTime(h.DB); last != nil {
		formatted := last.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.LastEventAt = &formatted
	}
	json.NewEncoder(w).Encode(resp)
}
