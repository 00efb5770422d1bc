package database

import (
	"time"

	"gorm.io/gorm"
)

// Space binds one external group chat to one local project. The bijection
// holds among active rows only: deactivated bindings stay as history and a
// project can be bound again later. One-active-per-project is enforced at
// the creation boundary (mapper), ExternalID stays globally unique.
type Space struct {
	Model
	ProjectID    uint       `json:"-" gorm:"index"`
	Project      Project    `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CredentialID uint       `json:"-" gorm:"index"`
	Credential   Credential `json:"-" gorm:"foreignKey:CredentialID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:NO ACTION;"`

	ExternalID  string `json:"external_id" gorm:"uniqueIndex"`
	DisplayName string `json:"display_name"`
	SpaceType   string `json:"space_type" gorm:"default:'SPACE'"`
	Active      bool   `json:"active" gorm:"default:true"`

	LastSync   *time.Time `json:"last_sync,omitempty"`
	SyncStatus string     `json:"sync_status" gorm:"default:'idle'"`
}

// FindSpaceByExternalID looks an active space up by its provider identifier,
// e.g. "spaces/AAAA".
func FindSpaceByExternalID(db *gorm.DB, externalID string) (*Space, error) {
	if externalID == "" {
		return nil, nil
	}
	var space Space
	q := db.Where("external_id = ? AND active = ?", externalID, true).First(&space)
	if q.Error != nil {
		if q.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, q.Error
	}
	return &space, nil
}

// ActiveSpaceForProject returns the single active space bound to a project.
func ActiveSpaceForProject(db *gorm.DB, projectID uint) (*Space, error) {
	var space Space
	q := db.Where("project_id = ? AND active = ?", projectID, true).First(&space)
	if q.Error != nil {
		if q.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, q.Error
	}
	return &space, nil
}
