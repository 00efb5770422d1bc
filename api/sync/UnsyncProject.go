package sync

import (
	"net/http"

	"chatsync/database"

	"gorm.io/gorm"
)

// UnsyncProject deactivates a project's space binding: the subscription is
// cancelled at the provider and the space and its threads marked inactive.
// The records and the event log stay.
//
//	@Summary      Disconnect a project from its chat space
//	@Param        project_uuid path string true "Project UUID"
//	@Router       /api/v1/sync/projects/{project_uuid} [delete]
func (h *SyncHandler) UnsyncProject(w http.ResponseWriter, r *http.Request) {
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

	space, err := database.ActiveSpaceForProject(h.DB, project.ID)
	if err != nil {
		h.Logger.Error("space lookup failed", "project", projectUUID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if space == nil {
		http.Error(w, "Project has no active space", http.StatusNotFound)
		return
	}

	var subs []database.Subscription
	if q := h.DB.Where("space_id = ?", space.ID).Find(&subs); q.Error != nil {
		h.Logger.Error("subscription lookup failed", "space", space.ExternalID, "error", q.Error)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	for _, sub := range subs {
		if err := h.Mapper.CancelSubscription(r.Context(), sub.ID); err != nil {
			writeMapperError(w, h.Logger, "subscription cancel", err)
			return
		}
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if q := tx.Model(&database.Thread{}).Where("space_id = ? AND active = ?", space.ID, true).Update("active", false); q.Error != nil {
			return q.Error
		}
		return tx.Model(space).Update("active", false).Error
	})
	if err != nil {
		h.Logger.Error("deactivating space failed", "space", space.ExternalID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
