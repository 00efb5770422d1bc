package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"chatsync/database"
	"chatsync/errs"
)

const GoogleAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

// AuthURL builds the provider consent URL for a credential. Offline access
// and a forced consent prompt are required to receive a refresh token.
func AuthURL(cred *database.Credential, redirectURI string, state string) string {
	params := url.Values{
		"client_id":     {cred.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {"openid email profile " + cred.Scopes},
		"state":         {state},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	return GoogleAuthURL + "?" + params.Encode()
}

// ExchangeCode trades an authorization code for tokens and persists them on
// the credential. Used by the OAuth callback.
func (m *Manager) ExchangeCode(ctx context.Context, credentialID uint, code string, redirectURI string) error {
	lock := m.lockFor(credentialID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.loadCredential(credentialID)
	if err != nil {
		return err
	}
	if cred.ClientID == "" || cred.ClientSecret == "" {
		return &errs.AuthError{Reason: "credential has no oauth client configured"}
	}

	form := url.Values{
		"code":          {code},
		"client_id":     {cred.ClientID},
		"client_secret": {cred.ClientSecret},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}

	tok, err := m.postTokenForm(ctx, form)
	if err != nil {
		return err
	}

	expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	updates := map[string]interface{}{
		"access_token":  tok.AccessToken,
		"token_expiry":  expiry,
		"auth_mode":     database.AuthModeOAuth,
		"sync_status":   database.SyncStatusIdle,
		"error_message": "",
	}
	// The provider only returns a refresh token on the first consent; keep
	// the stored one when the response omits it.
	if tok.RefreshToken != "" {
		updates["refresh_token"] = tok.RefreshToken
	}
	if q := m.DB.Model(cred).Updates(updates); q.Error != nil {
		return fmt.Errorf("persisting exchanged tokens: %w", q.Error)
	}

	m.Logger.Info("authorized credential", "credential", cred.UUID, "expires", expiry)
	return nil
}
