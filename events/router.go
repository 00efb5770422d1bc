package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatsync/database"
	"chatsync/errs"

	"gorm.io/gorm"
)

// Router classifies normalized events, locates the affected records and
// dispatches the domain mutation. It owns the per-event status machine:
//
//	new → processing → done | error | skipped
//
// error → new only through the operator Retry action. Processing failures
// are absorbed into the event record; the ingress boundary never sees them.
type Router struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

func NewRouter(db *gorm.DB, logger *slog.Logger) *Router {
	return &Router{DB: db, Logger: logger}
}

// Process runs one normalized event through claim, classification and
// dispatch. Duplicate deliveries return nil without side effects: delivery
// is at-least-once, processing is at-most-once. A non-nil error means the
// event could not even be recorded and the delivery should be nacked.
func (r *Router) Process(ctx context.Context, ev *NormalizedEvent) error {
	record, claimed, err := database.ClaimEvent(r.DB, ev.ExternalEventID, database.EventSourceChat, ev.RawPayload)
	if err != nil {
		return fmt.Errorf("claiming event %s: %w", ev.ExternalEventID, err)
	}
	if !claimed {
		r.Logger.Info("event already handled, skipping", "event", ev.ExternalEventID, "status", record.Status)
		return nil
	}

	space, err := database.FindSpaceByExternalID(r.DB, ev.SpaceName)
	if err != nil {
		return r.fail(record, fmt.Errorf("looking up space %q: %w", ev.SpaceName, err))
	}

	var thread *database.Thread
	if space != nil {
		thread, err = database.FindThreadByName(r.DB, space.ID, ev.ThreadName)
		if err != nil {
			return r.fail(record, fmt.Errorf("looking up thread %q: %w", ev.ThreadName, err))
		}
	}

	updates := map[string]interface{}{
		"event_type":   ev.RawType,
		"user_email":   ev.UserEmail,
		"message_text": ev.MessageText,
	}
	if space != nil {
		updates["space_id"] = space.ID
	}
	if thread != nil {
		updates["thread_key"] = thread.ThreadKey
	}
	if q := r.DB.Model(record).Updates(updates); q.Error != nil {
		return r.fail(record, fmt.Errorf("recording event context: %w", q.Error))
	}

	switch ev.Type {
	case MessageCreated, MessageUpdated:
		err = r.handleMessage(ev, thread)
	case MemberAdded:
		err = r.handleMemberAdded(ev, space)
	case MemberRemoved:
		err = r.handleMemberRemoved(ev, space)
	case Unknown:
		r.Logger.Info("unhandled event type", "event", ev.ExternalEventID, "type", ev.RawType)
		if err := record.MarkSkipped(r.DB); err != nil {
			return fmt.Errorf("marking event skipped: %w", err)
		}
		return nil
	}

	if err != nil {
		return r.fail(record, err)
	}
	if err := record.MarkDone(r.DB); err != nil {
		return fmt.Errorf("marking event done: %w", err)
	}
	return nil
}

// fail persists the dispatch failure on the event record. The error itself
// is absorbed: retries are operator-initiated, never automatic.
func (r *Router) fail(record *database.ExternalEvent, err error) error {
	r.Logger.Error("event processing failed", "event", record.ExternalEventID, "error", err)
	if markErr := record.MarkError(r.DB, err.Error()); markErr != nil {
		return fmt.Errorf("recording event failure: %w", markErr)
	}
	return nil
}

// handleMessage appends the chat message to the bound task's activity log.
// Messages outside any mapped thread are acknowledged without effect.
func (r *Router) handleMessage(ev *NormalizedEvent, thread *database.Thread) error {
	if thread == nil || ev.MessageText == "" || ev.UserEmail == "" {
		return nil
	}

	comment := database.TaskComment{
		TaskID:      thread.TaskID,
		Body:        fmt.Sprintf("Chat message from %s: %s", ev.UserEmail, ev.MessageText),
		AuthorEmail: ev.UserEmail,
	}

	// Attribute by email when a contact matches; otherwise no author.
	var contact database.Contact
	if q := r.DB.Where("email = ?", ev.UserEmail).First(&contact); q.Error == nil {
		comment.AuthorID = &contact.ID
	}

	if q := r.DB.Create(&comment); q.Error != nil {
		return fmt.Errorf("creating task comment: %w", q.Error)
	}

	now := time.Now()
	if q := r.DB.Model(thread).Update("last_event_at", now); q.Error != nil {
		return fmt.Errorf("updating thread event time: %w", q.Error)
	}
	return nil
}

func (r *Router) handleMemberAdded(ev *NormalizedEvent, space *database.Space) error {
	if space == nil || ev.MemberEmail == "" {
		return nil
	}

	role := ev.MemberRole
	if role == "" {
		role = "MEMBER"
	}
	now := time.Now()

	var member database.Member
	q := r.DB.Where("space_id = ? AND email = ?", space.ID, ev.MemberEmail).First(&member)
	if q.Error != nil {
		if q.Error != gorm.ErrRecordNotFound {
			return fmt.Errorf("looking up member: %w", q.Error)
		}
		member = database.Member{
			SpaceID:      space.ID,
			Email:        ev.MemberEmail,
			GoogleUserID: ev.MemberUserID,
			Role:         role,
			State:        database.MemberStateActive,
			LastSync:     &now,
		}
		// Link the local contact when one matches the email.
		var contact database.Contact
		if q := r.DB.Where("email = ?", ev.MemberEmail).First(&contact); q.Error == nil {
			member.ContactID = &contact.ID
		}
		if q := r.DB.Create(&member); q.Error != nil {
			return fmt.Errorf("creating member: %w", q.Error)
		}
		return nil
	}

	updates := map[string]interface{}{
		"role":      role,
		"state":     database.MemberStateActive,
		"last_sync": now,
	}
	if q := r.DB.Model(&member).Updates(updates); q.Error != nil {
		return fmt.Errorf("updating member: %w", q.Error)
	}
	return nil
}

func (r *Router) handleMemberRemoved(ev *NormalizedEvent, space *database.Space) error {
	if space == nil || ev.MemberEmail == "" {
		return nil
	}

	var member database.Member
	q := r.DB.Where("space_id = ? AND email = ?", space.ID, ev.MemberEmail).First(&member)
	if q.Error != nil {
		if q.Error == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("looking up member: %w", q.Error)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"state":     database.MemberStateRemoved,
		"last_sync": now,
	}
	if q := r.DB.Model(&member).Updates(updates); q.Error != nil {
		return fmt.Errorf("updating member: %w", q.Error)
	}
	return nil
}

// Retry is the operator action for errored events: reset to new and replay
// the stored payload through the same pipeline.
func (r *Router) Retry(ctx context.Context, eventUUID string) error {
	var record database.ExternalEvent
	if q := r.DB.Where("uuid = ?", eventUUID).First(&record); q.Error != nil {
		return fmt.Errorf("loading event %s: %w", eventUUID, q.Error)
	}

	if record.Status != database.EventStatusError {
		return &errs.ConfigError{Reason: fmt.Sprintf("event %s is %s, only errored events can be retried", eventUUID, record.Status)}
	}

	ev, err := normalizeRaw(record.ExternalEventID, record.CreatedAt, record.Payload)
	if err != nil {
		return err
	}

	q := r.DB.Model(&record).Updates(map[string]interface{}{
		"status":       database.EventStatusNew,
		"error_detail": "",
	})
	if q.Error != nil {
		return fmt.Errorf("resetting event status: %w", q.Error)
	}

	return r.Process(ctx, ev)
}
