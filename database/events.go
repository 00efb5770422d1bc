package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	EventStatusNew        = "new"
	EventStatusProcessing = "processing"
	EventStatusDone       = "done"
	EventStatusError      = "error"
	EventStatusSkipped    = "skipped"
)

const (
	EventSourceChat  = "chat"
	EventSourceTasks = "tasks"
)

// ExternalEvent is the audit record for one delivered event. Created on
// ingress, mutated only by the router, never deleted. Space and thread are
// referenced weakly so the record survives their deletion.
type ExternalEvent struct {
	Model
	ExternalEventID string `json:"external_event_id" gorm:"uniqueIndex"`
	Source          string `json:"source" gorm:"default:'chat'"`
	EventType       string `json:"event_type" gorm:"index"`
	Payload         []byte `json:"-"`

	Status      string     `json:"status" gorm:"default:'new';index"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`

	SpaceID     *uint  `json:"-" gorm:"index"`
	ThreadKey   string `json:"thread_key"`
	UserEmail   string `json:"user_email"`
	MessageText string `json:"message_text"`
}

// ClaimEvent atomically creates-or-reads the event record and decides whether
// this delivery gets to process it. Exactly one concurrent caller per event id
// observes claimed=true; redeliveries of done, processing or error events are
// not reprocessed. The unique index on external_event_id is the lock.
func ClaimEvent(db *gorm.DB, externalID string, source string, payload []byte) (*ExternalEvent, bool, error) {
	var event ExternalEvent
	claimed := false

	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("external_event_id = ?", externalID).First(&event)
		if q.Error == nil {
			if event.Status != EventStatusNew {
				return nil
			}
			// An existing "new" row (operator retry) is claimed by flipping
			// its status; RowsAffected guards against a concurrent claimer.
			res := tx.Model(&ExternalEvent{}).
				Where("id = ? AND status = ?", event.ID, EventStatusNew).
				Update("status", EventStatusProcessing)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				event.Status = EventStatusProcessing
				claimed = true
			}
			return nil
		}
		if !errors.Is(q.Error, gorm.ErrRecordNotFound) {
			return q.Error
		}

		event = ExternalEvent{
			ExternalEventID: externalID,
			Source:          source,
			Payload:         payload,
			Status:          EventStatusProcessing,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the insert race; the other delivery owns the event.
			var existing ExternalEvent
			if q := db.Where("external_event_id = ?", externalID).First(&existing); q.Error == nil {
				return &existing, false, nil
			}
		}
		return nil, false, err
	}
	return &event, claimed, nil
}

func (e *ExternalEvent) MarkDone(db *gorm.DB) error {
	now := time.Now()
	e.Status = EventStatusDone
	e.ProcessedAt = &now
	return db.Model(e).Updates(map[string]interface{}{
		"status":       EventStatusDone,
		"processed_at": now,
		"error_detail": "",
	}).Error
}

func (e *ExternalEvent) MarkSkipped(db *gorm.DB) error {
	now := time.Now()
	e.Status = EventStatusSkipped
	e.ProcessedAt = &now
	return db.Model(e).Updates(map[string]interface{}{
		"status":       EventStatusSkipped,
		"processed_at": now,
	}).Error
}

func (e *ExternalEvent) MarkError(db *gorm.DB, detail string) error {
	now := time.Now()
	e.Status = EventStatusError
	e.ProcessedAt = &now
	e.ErrorDetail = detail
	return db.Model(e).Updates(map[string]interface{}{
		"status":       EventStatusError,
		"processed_at": now,
		"error_detail": detail,
	}).Error
}

// LatestEventTime returns the creation time of the newest event, if any.
func LatestEventTime(db *gorm.DB) *time.Time {
	var event ExternalEvent
	if q := db.Order("created_at desc").First(&event); q.Error != nil {
		return nil
	}
	return &event.CreatedAt
}
