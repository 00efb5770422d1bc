package database

import "time"

const (
	MemberStateActive  = "active"
	MemberStateInvited = "invited"
	MemberStatePending = "pending"
	MemberStateRemoved = "removed"
)

// Member is an external participant of a space, optionally linked to a local
// contact. Email is unique per space.
type Member struct {
	Model
	SpaceID uint  `json:"-" gorm:"index;uniqueIndex:idx_members_space_email"`
	Space   Space `json:"-" gorm:"foreignKey:SpaceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Email        string `json:"email" gorm:"uniqueIndex:idx_members_space_email"`
	GoogleUserID string `json:"google_user_id"`
	Role         string `json:"role" gorm:"default:'MEMBER'"`
	State        string `json:"state" gorm:"default:'active'"`

	ContactID *uint    `json:"-" gorm:"index"`
	Contact   *Contact `json:"contact,omitempty" gorm:"foreignKey:ContactID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	LastSync *time.Time `json:"last_sync,omitempty"`
	IsBot    bool       `json:"is_bot" gorm:"default:false"`
}
