package oauth

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"chatsync/auth"
	"chatsync/database"

	"gorm.io/gorm"
)

// OAuthHandler completes the provider authorization flow. The consent URL is
// built with the credential UUID as state, so the callback can find the
// credential the tokens belong to.
type OAuthHandler struct {
	DB     *gorm.DB
	Auth   *auth.Manager
	Logger *slog.Logger
	// RedirectURI must match the one used when building the consent URL.
	RedirectURI string
}

func NewOAuthHandler(db *gorm.DB, authManager *auth.Manager, redirectURI string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{DB: db, Auth: authManager, RedirectURI: redirectURI, Logger: logger}
}

func renderResult(w http.ResponseWriter, status int, title string, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<html><body><h2>%s</h2><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(detail))
}

// Callback handles the provider redirect with ?code&state&error.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		renderResult(w, http.StatusBadRequest, "Authorization failed", "The provider returned: "+providerErr)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		renderResult(w, http.StatusBadRequest, "Authorization failed", "Missing code or state parameter.")
		return
	}

	var cred database.Credential
	if q := h.DB.Where("uuid = ?", state).First(&cred); q.Error != nil {
		renderResult(w, http.StatusBadRequest, "Authorization failed", "Unknown configuration.")
		return
	}

	if err := h.Auth.ExchangeCode(r.Context(), cred.ID, code, h.RedirectURI); err != nil {
		h.Logger.Error("code exchange failed", "credential", cred.UUID, "error", err)
		renderResult(w, http.StatusInternalServerError, "Authorization failed", "Could not exchange the authorization code. Check the client configuration and try again.")
		return
	}

	renderResult(w, http.StatusOK, "Authorization successful",
		fmt.Sprintf("Configuration %q is now connected. You can close this window.", cred.Name))
}

// Login redirects the browser to the provider consent screen for a
// credential, identified by its UUID.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	credUUID := r.PathValue("credential_uuid")

	var cred database.Credential
	if q := h.DB.Where("uuid = ?", credUUID).First(&cred); q.Error != nil {
		http.Error(w, "Unknown configuration", http.StatusNotFound)
		return
	}
	if cred.ClientID == "" || cred.ClientSecret == "" {
		renderResult(w, http.StatusBadRequest, "Not configured", "Set the OAuth client id and secret first.")
		return
	}

	http.Redirect(w, r, auth.AuthURL(&cred, h.RedirectURI, cred.UUID), http.StatusFound)
}
