package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"chatsync/auth"
	"chatsync/events"
	"chatsync/mapper"

	"gorm.io/gorm"
)

func BackendServer(
	db *gorm.DB,
	authManager *auth.Manager,
	router *events.Router,
	m *mapper.Mapper,
	topic string,
	host string,
	port int64,
	ssl bool,
	adminToken string,
	logger *slog.Logger,
) (*http.Server, string) {
	var protocol string
	if ssl {
		protocol = "https"
	} else {
		protocol = "http"
	}

	fullHost := fmt.Sprintf("%s://%s:%d", protocol, host, port)
	redirectURI := fullHost + "/oauth/callback"

	mux := BackendRouting(db, authManager, router, m, topic, redirectURI, adminToken, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: CreateStack(Logging)(mux),
	}

	return srv, fullHost
}
