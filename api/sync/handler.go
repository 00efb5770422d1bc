package sync

import (
	"log/slog"

	"chatsync/mapper"

	"gorm.io/gorm"
)

// SyncHandler exposes the push-side provisioning surface: binding projects
// to spaces, tasks to threads, and managing space members. In the original
// deployment these ran off model write hooks; here they are explicit
// operator calls.
type SyncHandler struct {
	DB     *gorm.DB
	Mapper *mapper.Mapper
	Logger *slog.Logger

	// Topic is the queue topic new event subscriptions publish to.
	Topic string
}

func NewSyncHandler(db *gorm.DB, m *mapper.Mapper, topic string, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{DB: db, Mapper: m, Topic: topic, Logger: logger}
}
