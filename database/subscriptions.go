package database

import "time"

const (
	SubscriptionStatusCreating = "creating"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusExpired  = "expired"
	SubscriptionStatusError    = "error"
	SubscriptionStatusDeleting = "deleting"
)

const (
	SubscriptionModePull = "pull"
	SubscriptionModePush = "push"
)

// Subscription is the provider-side event subscription feeding a space's
// inbound delivery, bound to a queue topic. Renewed before ExpiresAt,
// deleted when the space is deactivated.
type Subscription struct {
	Model
	CredentialID uint       `json:"-" gorm:"index"`
	Credential   Credential `json:"-" gorm:"foreignKey:CredentialID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:NO ACTION;"`
	SpaceID      uint       `json:"-" gorm:"index"`
	Space        Space      `json:"-" gorm:"foreignKey:SpaceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Topic            string `json:"topic"`
	SubscriptionName string `json:"subscription_name" gorm:"uniqueIndex"`
	// ExternalName is the provider resource name, e.g. "subscriptions/abc".
	ExternalName string `json:"external_name"`
	Mode         string `json:"mode" gorm:"default:'pull'"`
	Status       string `json:"status" gorm:"default:'creating'"`

	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	LastMessageID string     `json:"last_message_id"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	RetryCount    int        `json:"retry_count" gorm:"default:0"`
}

// IsExpiring reports whether the subscription expires within the window.
func (s *Subscription) IsExpiring(window time.Duration) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return !s.ExpiresAt.After(time.Now().Add(window))
}
