package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatsync/database"
	"chatsync/errs"

	"gorm.io/gorm"
)

const GoogleTokenURL = "https://oauth2.googleapis.com/token"

// DefaultSafetyMargin is how long before the recorded expiry a token is
// already treated as expired.
const DefaultSafetyMargin = 5 * time.Minute

// Manager owns the OAuth credential lifecycle: it hands out valid bearer
// tokens and refreshes them when expired or rejected. Refresh calls against
// the provider are not idempotent (each may invalidate the previous token),
// so refreshes are mutually exclusive per credential: one caller refreshes,
// concurrent callers wait and reuse the result.
type Manager struct {
	DB           *gorm.DB
	TokenURL     string
	HTTPClient   *http.Client
	SafetyMargin time.Duration
	Logger       *slog.Logger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewManager(db *gorm.DB, logger *slog.Logger) *Manager {
	return &Manager{
		DB:           db,
		TokenURL:     GoogleTokenURL,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		SafetyMargin: DefaultSafetyMargin,
		Logger:       logger,
		locks:        make(map[uint]*sync.Mutex),
	}
}

func (m *Manager) lockFor(credentialID uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[credentialID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[credentialID] = lock
	}
	return lock
}

func (m *Manager) tokenValid(cred *database.Credential) bool {
	if cred.AccessToken == "" || cred.TokenExpiry == nil {
		return false
	}
	return time.Now().Before(cred.TokenExpiry.Add(-m.SafetyMargin))
}

func (m *Manager) loadCredential(credentialID uint) (*database.Credential, error) {
	var cred database.Credential
	if q := m.DB.First(&cred, "id = ?", credentialID); q.Error != nil {
		return nil, fmt.Errorf("loading credential %d: %w", credentialID, q.Error)
	}
	return &cred, nil
}

// GetValidToken returns a bearer token for the credential, refreshing it
// first when the cached one is absent or inside the safety margin.
func (m *Manager) GetValidToken(ctx context.Context, credentialID uint) (string, error) {
	cred, err := m.loadCredential(credentialID)
	if err != nil {
		return "", err
	}
	if cred.AuthMode != database.AuthModeOAuth {
		return "", &errs.AuthError{Reason: "credential is not in oauth mode"}
	}
	if m.tokenValid(cred) {
		return cred.AccessToken, nil
	}

	lock := m.lockFor(credentialID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	cred, err = m.loadCredential(credentialID)
	if err != nil {
		return "", err
	}
	if m.tokenValid(cred) {
		return cred.AccessToken, nil
	}

	return m.refresh(ctx, cred)
}

// ForceRefresh discards the token the caller observed being rejected and
// refreshes. staleToken lets a caller that raced a concurrent refresh reuse
// the newer token instead of refreshing twice.
func (m *Manager) ForceRefresh(ctx context.Context, credentialID uint, staleToken string) (string, error) {
	lock := m.lockFor(credentialID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.loadCredential(credentialID)
	if err != nil {
		return "", err
	}
	if cred.AccessToken != "" && cred.AccessToken != staleToken && m.tokenValid(cred) {
		return cred.AccessToken, nil
	}

	return m.refresh(ctx, cred)
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// refresh exchanges the refresh token for a new access token and persists it.
// Callers must hold the per-credential lock.
func (m *Manager) refresh(ctx context.Context, cred *database.Credential) (string, error) {
	if cred.RefreshToken == "" {
		return "", &errs.AuthError{Reason: "no refresh token and no valid access token"}
	}

	form := url.Values{
		"client_id":     {cred.ClientID},
		"client_secret": {cred.ClientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	tok, err := m.postTokenForm(ctx, form)
	if err != nil {
		var authErr *errs.AuthError
		if errors.As(err, &authErr) {
			m.markCredentialError(cred, authErr.Reason)
		}
		return "", err
	}

	expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	updates := map[string]interface{}{
		"access_token": tok.AccessToken,
		"token_expiry": expiry,
		"sync_status":  database.SyncStatusIdle,
	}
	if q := m.DB.Model(cred).Updates(updates); q.Error != nil {
		return "", fmt.Errorf("persisting refreshed token: %w", q.Error)
	}
	cred.AccessToken = tok.AccessToken
	cred.TokenExpiry = &expiry

	m.Logger.Info("refreshed access token", "credential", cred.UUID, "expires", expiry)
	return tok.AccessToken, nil
}

func (m *Manager) postTokenForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, &errs.ApiError{Kind: errs.KindNetwork, Detail: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.ApiError{Kind: errs.KindNetwork, Detail: "reading token response", Err: err}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &errs.ApiError{Kind: errs.KindProvider, Status: resp.StatusCode, Detail: "malformed token response"}
	}

	if tok.Error != "" {
		// invalid_grant means the refresh token itself is dead; only a human
		// re-authorization can fix that.
		if tok.Error == "invalid_grant" || tok.Error == "invalid_client" {
			return nil, &errs.AuthError{Reason: fmt.Sprintf("%s: %s", tok.Error, tok.ErrorDescription)}
		}
		return nil, &errs.ApiError{Kind: errs.KindProvider, Status: resp.StatusCode, Detail: tok.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.ApiError{Kind: errs.KindProvider, Status: resp.StatusCode, Detail: string(body)}
	}
	if tok.AccessToken == "" {
		return nil, &errs.ApiError{Kind: errs.KindProvider, Status: resp.StatusCode, Detail: "token response without access_token"}
	}
	return &tok, nil
}

func (m *Manager) markCredentialError(cred *database.Credential, detail string) {
	q := m.DB.Model(cred).Updates(map[string]interface{}{
		"sync_status":   database.SyncStatusError,
		"error_message": detail,
	})
	if q.Error != nil {
		m.Logger.Error("failed to record credential error", "credential", cred.UUID, "error", q.Error)
	}
}
