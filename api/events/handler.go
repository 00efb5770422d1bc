package events

import (
	"log/slog"

	routerpkg "chatsync/events"

	"gorm.io/gorm"
)

// EventsHandler exposes the operator surface over the event log: inspection
// and the explicit retry action for errored events.
type EventsHandler struct {
	DB     *gorm.DB
	Router *routerpkg.Router
	Logger *slog.Logger
}

func NewEventsHandler(db *gorm.DB, router *routerpkg.Router, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{DB: db, Router: router, Logger: logger}
}
