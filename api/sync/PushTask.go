package sync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chatsync/database"
	"chatsync/errs"
)

type pushTaskRequest struct {
	// Changed names the fields to announce. Empty means the full field set.
	Changed []string `json:"changed,omitempty"`
}

// PushTask ensures the task has a thread in its project's space and
// announces the task's current state there.
//
//	@Summary      Push a task update into its thread
//	@Accept       json
//	@Produce      json
//	@Param        task_uuid path string true "Task UUID"
//	@Router       /api/v1/sync/tasks/{task_uuid} [post]
func (h *SyncHandler) PushTask(w http.ResponseWriter, r *http.Request) {
	taskUUID := r.PathValue("task_uuid")
	if taskUUID == "" {
		http.Error(w, "Invalid task UUID", http.StatusBadRequest)
		return
	}

	var req pushTaskRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	var task database.Task
	if q := h.DB.Preload("Assignee").Where("uuid = ?", taskUUID).First(&task); q.Error != nil {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	thread, err := h.Mapper.EnsureThread(r.Context(), task.ID)
	if err != nil {
		writeMapperError(w, h.Logger, "task sync", err)
		return
	}

	changed := taskFields(&task, req.Changed)
	sent, err := h.Mapper.PushUpdate(r.Context(), thread.ID, changed)
	if err != nil {
		writeMapperError(w, h.Logger, "task push", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"thread":  thread,
		"message": sent,
	})
}

// taskFields snapshots the task into the announce map, optionally limited to
// the named fields.
func taskFields(task *database.Task, only []string) map[string]interface{} {
	all := map[string]interface{}{
		"name":        task.Name,
		"stage":       task.Stage,
		"priority":    task.Priority,
		"description": task.Description,
		"tags":        task.Tags,
	}
	if task.Assignee != nil {
		all["assignee"] = task.Assignee.Name
	}
	if task.Deadline != nil {
		all["deadline"] = task.Deadline.Format("2006-01-02")
	}

	if len(only) == 0 {
		return all
	}
	changed := make(map[string]interface{}, len(only))
	for _, field := range only {
		if value, ok := all[field]; ok {
			changed[field] = value
		}
	}
	return changed
}

func writeMapperError(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	var configErr *errs.ConfigError
	if errors.As(err, &configErr) {
		http.Error(w, configErr.Reason, http.StatusConflict)
		return
	}
	var conflictErr *errs.ConflictError
	if errors.As(err, &conflictErr) {
		http.Error(w, conflictErr.Error(), http.StatusConflict)
		return
	}
	var authErr *errs.AuthError
	if errors.As(err, &authErr) {
		http.Error(w, "Provider authentication failed", http.StatusBadGateway)
		return
	}
	var apiErr *errs.ApiError
	if errors.As(err, &apiErr) {
		http.Error(w, "Provider request failed", http.StatusBadGateway)
		return
	}
	logger.Error(action+" failed", "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
