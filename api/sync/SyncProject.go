package sync

import (
	"encoding/json"
	"net/http"

	"chatsync/database"
)

// SyncProject binds a project to a chat space, creating the space and its
// event subscription on first call. Safe to repeat.
//
//	@Summary      Sync a project into a chat space
//	@Produce      json
//	@Param        project_uuid path string true "Project UUID"
//	@Router       /api/v1/sync/projects/{project_uuid} [post]
func (h *SyncHandler) SyncProject(w http.ResponseWriter, r *http.Request) {
	projectUUID := r.PathValue("project_uuid")
	if projectUUID == "" {
		http.Error(w, "Invalid project UUID", http.StatusBadRequest)
		return
	}

	var project database.Project
	if q := h.DB.Where("uuid = ?", projectUUID).First(&project); q.Error != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	space, err := h.Mapper.EnsureSpace(r.Context(), project.ID)
	if err != nil {
		writeMapperError(w, h.Logger, "project sync", err)
		return
	}

	subscription, err := h.Mapper.EnsureSubscription(r.Context(), space.ID, h.Topic)
	if err != nil {
		writeMapperError(w, h.Logger, "subscription setup", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"space":        space,
		"subscription": subscription,
	})
}
