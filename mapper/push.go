package mapper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"chatsync/database"
	"chatsync/errs"
	"chatsync/gateway"
)

// fieldLabels maps the task fields worth announcing to their display labels.
// Fields outside this map are silently ignored, so callers can pass whatever
// changed without the message format breaking on new fields.
var fieldLabels = map[string]string{
	"name":        "Name",
	"assignee":    "Assignee",
	"stage":       "Stage",
	"priority":    "Priority",
	"deadline":    "Deadline",
	"description": "Description",
	"tags":        "Tags",
}

var fieldOrder = []string{"name", "assignee", "stage", "priority", "deadline", "description", "tags"}

var priorityLabels = map[string]string{
	database.TaskPriorityLow:    "Low",
	database.TaskPriorityNormal: "Normal",
	database.TaskPriorityHigh:   "High",
}

// FormatUpdate renders the changed fields as the human-readable message body
// posted into the thread.
func FormatUpdate(taskName string, changed map[string]interface{}) string {
	var lines []string
	for _, field := range fieldOrder {
		value, ok := changed[field]
		if !ok {
			continue
		}
		rendered := fmt.Sprintf("%v", value)
		if field == "priority" {
			if label, ok := priorityLabels[rendered]; ok {
				rendered = label
			}
		}
		lines = append(lines, fmt.Sprintf("*%s*: %s", fieldLabels[field], rendered))
	}

	msg := fmt.Sprintf("*Task Updated: %s*", taskName)
	if len(lines) > 0 {
		msg += "\n\n" + strings.Join(lines, "\n")
	}
	return msg
}

// changedFieldNames is only used for logging.
func changedFieldNames(changed map[string]interface{}) []string {
	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pushableThread rejects sends into bindings that have been disconnected.
// An inactive space means the project was unsynced; pushing there would post
// into a chat nobody is watching anymore.
func pushableThread(thread *database.Thread) error {
	if !thread.Active {
		return &errs.ConfigError{Reason: fmt.Sprintf("thread %s is no longer active", thread.ThreadKey)}
	}
	if !thread.Space.Active {
		return &errs.ConfigError{Reason: fmt.Sprintf("space %s is no longer synced", thread.Space.ExternalID)}
	}
	return nil
}

// PushUpdate announces a task change in its thread. The send is synchronous:
// a failure surfaces to the caller, which decides whether to log-and-continue
// or propagate.
func (m *Mapper) PushUpdate(ctx context.Context, threadID uint, changed map[string]interface{}) (*gateway.SentMessage, error) {
	var thread database.Thread
	q := m.DB.Preload("Task").Preload("Space").First(&thread, "id = ?", threadID)
	if q.Error != nil {
		return nil, fmt.Errorf("loading thread %d: %w", threadID, q.Error)
	}
	if err := pushableThread(&thread); err != nil {
		return nil, err
	}

	msg := gateway.Message{
		Text:      FormatUpdate(thread.Task.Name, changed),
		ThreadKey: thread.ThreadKey,
	}

	sent, err := m.Gateway.SendMessage(ctx, thread.Space.CredentialID, thread.Space.ExternalID, msg)
	if err != nil {
		m.Logger.Error("push update failed", "thread_key", thread.ThreadKey, "fields", changedFieldNames(changed), "error", err)
		return nil, err
	}

	updates := map[string]interface{}{
		"message_count":   thread.MessageCount + 1,
		"last_message_id": sent.Name,
	}
	if q := m.DB.Model(&thread).Updates(updates); q.Error != nil {
		return nil, fmt.Errorf("recording sent message: %w", q.Error)
	}

	return sent, nil
}

// SendCard posts a structured card message into a thread, e.g. a task
// summary with a link button.
func (m *Mapper) SendCard(ctx context.Context, threadID uint, card *gateway.Card) (*gateway.SentMessage, error) {
	var thread database.Thread
	q := m.DB.Preload("Space").First(&thread, "id = ?", threadID)
	if q.Error != nil {
		return nil, fmt.Errorf("loading thread %d: %w", threadID, q.Error)
	}
	if err := pushableThread(&thread); err != nil {
		return nil, err
	}

	msg := gateway.Message{
		Card:      card,
		ThreadKey: thread.ThreadKey,
	}
	sent, err := m.Gateway.SendMessage(ctx, thread.Space.CredentialID, thread.Space.ExternalID, msg)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"message_count":   thread.MessageCount + 1,
		"last_message_id": sent.Name,
	}
	if q := m.DB.Model(&thread).Updates(updates); q.Error != nil {
		return nil, fmt.Errorf("recording sent message: %w", q.Error)
	}
	return sent, nil
}
