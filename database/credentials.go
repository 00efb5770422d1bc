package database

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	AuthModeServiceAccount = "service_account"
	AuthModeOAuth          = "oauth"
)

const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Credential holds the external account configuration for one company:
// the OAuth client material plus the current access token and expiry.
// At most one credential per company.
type Credential struct {
	Model
	Name      string `json:"name"`
	CompanyID uint   `json:"company_id" gorm:"uniqueIndex"`

	AuthMode  string `json:"auth_mode" gorm:"default:'service_account'"`
	SAKeyJSON []byte `json:"-"`

	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"-"`
	RefreshToken string     `json:"-"`
	AccessToken  string     `json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	Scopes       string     `json:"scopes" gorm:"default:'https://www.googleapis.com/auth/chat.messages'"`

	WebhookToken string `json:"-" gorm:"index"`
	Active       bool   `json:"active" gorm:"default:true"`

	LastSync     *time.Time `json:"last_sync,omitempty"`
	SyncStatus   string     `json:"sync_status" gorm:"default:'idle'"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// BeforeCreate assigns the UUID and a fresh webhook token when the
// credential is created without one.
func (c *Credential) BeforeCreate(tx *gorm.DB) (err error) {
	if err := c.Model.BeforeCreate(tx); err != nil {
		return err
	}
	if c.WebhookToken == "" {
		c.WebhookToken = GenerateWebhookToken(c.UUID)
	}
	return nil
}

// GenerateWebhookToken derives an opaque token for webhook authentication.
func GenerateWebhookToken(seed string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(seed), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}

	hasher := md5.New()
	hasher.Write(hash)
	return hex.EncodeToString(hasher.Sum(nil))
}

// FindCredentialByWebhookToken returns the active credential matching a
// webhook bearer token, or nil when none matches.
func FindCredentialByWebhookToken(db *gorm.DB, token string) (*Credential, error) {
	if token == "" {
		return nil, nil
	}
	var cred Credential
	q := db.Where("webhook_token = ? AND active = ?", token, true).First(&cred)
	if q.Error != nil {
		if q.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, q.Error
	}
	return &cred, nil
}

// ActiveCredentialForCompany returns the single active credential owned by a
// company, or nil when the company has none.
func ActiveCredentialForCompany(db *gorm.DB, companyID uint) (*Credential, error) {
	var cred Credential
	q := db.Where("company_id = ? AND active = ?", companyID, true).First(&cred)
	if q.Error != nil {
		if q.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, q.Error
	}
	return &cred, nil
}

// CountActiveCredentials is used by the webhook health endpoint.
func CountActiveCredentials(db *gorm.DB) (int64, error) {
	var count int64
	q := db.Model(&Credential{}).Where("active = ?", true).Count(&count)
	return count, q.Error
}
