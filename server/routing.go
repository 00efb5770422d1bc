package server

import (
	"fmt"
	"log/slog"
	"net/http"

	apievents "chatsync/api/events"
	apioauth "chatsync/api/oauth"
	apisync "chatsync/api/sync"
	apiwebhook "chatsync/api/webhook"
	"chatsync/auth"
	"chatsync/events"
	"chatsync/mapper"

	"gorm.io/gorm"
)

var ServerStatus string = "unknown"

func BackendRouting(
	db *gorm.DB,
	authManager *auth.Manager,
	router *events.Router,
	m *mapper.Mapper,
	topic string,
	redirectURI string,
	adminToken string,
	logger *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()
	v1PrivateApis := http.NewServeMux()

	webhookHandler := apiwebhook.NewWebhookHandler(db, router, logger)
	oauthHandler := apioauth.NewOAuthHandler(db, authManager, redirectURI, logger)
	eventsHandler := apievents.NewEventsHandler(db, router, logger)
	syncHandler := apisync.NewSyncHandler(db, m, topic, logger)

	mux.HandleFunc("POST /webhook", webhookHandler.Receive)
	mux.HandleFunc("GET /webhook/health", webhookHandler.Health)

	mux.HandleFunc("GET /oauth/login/{credential_uuid}", oauthHandler.Login)
	mux.HandleFunc("GET /oauth/callback", oauthHandler.Callback)

	v1PrivateApis.HandleFunc("GET /events/list", eventsHandler.List)
	v1PrivateApis.HandleFunc("GET /events/{event_uuid}", eventsHandler.Get)
	v1PrivateApis.HandleFunc("POST /events/{event_uuid}/retry", eventsHandler.Retry)

	v1PrivateApis.HandleFunc("POST /sync/projects/{project_uuid}", syncHandler.SyncProject)
	v1PrivateApis.HandleFunc("DELETE /sync/projects/{project_uuid}", syncHandler.UnsyncProject)
	v1PrivateApis.HandleFunc("POST /sync/tasks/{task_uuid}", syncHandler.PushTask)
	v1PrivateApis.HandleFunc("POST /sync/spaces/{space_uuid}/members", syncHandler.AddMember)
	v1PrivateApis.HandleFunc("DELETE /sync/spaces/{space_uuid}/members/{member_uuid}", syncHandler.RemoveMember)

	mux.HandleFunc("GET /_health", func(w http.ResponseWriter, r *http.Request) {
		if ServerStatus != "running" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(fmt.Sprintf("Server is not running, status: %s", ServerStatus)))
		} else {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Server is running"))
		}
	})

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", AdminAuthMiddleware(adminToken)(v1PrivateApis)))

	return mux
}
