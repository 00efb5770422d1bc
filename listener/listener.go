package listener

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatsync/events"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Config is the pull-mode worker configuration, mirroring the CLI flags.
type Config struct {
	GCPProject       string
	SubscriptionName string
	SAKeyPath        string
	WebhookURL       string
	WebhookPath      string
	WebhookToken     string
	Timeout          time.Duration
	MaxMessages      int
}

// Listener pulls event messages from the queue, reformats each one into the
// webhook envelope and forwards it over the same contract the push mode
// uses. Ack only after the full pipeline succeeded; nack causes provider
// redelivery, which the router's dedup makes safe.
type Listener struct {
	cfg        Config
	client     *pubsub.Client
	httpClient *http.Client
	Logger     *slog.Logger
}

func NewListener(ctx context.Context, cfg Config, logger *slog.Logger) (*Listener, error) {
	var opts []option.ClientOption
	if cfg.SAKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.SAKeyPath))
	}

	client, err := pubsub.NewClient(ctx, cfg.GCPProject, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating queue client: %w", err)
	}

	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}
	cfg.WebhookURL = strings.TrimRight(cfg.WebhookURL, "/")

	return &Listener{
		cfg:        cfg,
		client:     client,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		Logger:     logger,
	}, nil
}

// Run blocks receiving messages until the context is cancelled. In-flight
// callbacks complete before Receive returns.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.client.Subscription(l.cfg.SubscriptionName)
	sub.ReceiveSettings.MaxOutstandingMessages = l.cfg.MaxMessages

	l.Logger.Info("listening for messages",
		"project", l.cfg.GCPProject,
		"subscription", l.cfg.SubscriptionName,
		"target", l.cfg.WebhookURL+l.cfg.WebhookPath)

	return sub.Receive(ctx, l.handleMessage)
}

func (l *Listener) Close() error {
	return l.client.Close()
}

func (l *Listener) handleMessage(ctx context.Context, msg *pubsub.Message) {
	env := events.Envelope{
		MessageID:   msg.ID,
		PublishTime: msg.PublishTime.Format(time.RFC3339),
		Attributes:  msg.Attributes,
		DataBase64:  base64.StdEncoding.EncodeToString(msg.Data),
	}

	status, err := l.forward(ctx, &env)
	if err != nil {
		l.Logger.Error("forward failed, message will be redelivered", "message_id", msg.ID, "error", err)
		msg.Nack()
		return
	}

	switch {
	case status == http.StatusOK:
		l.Logger.Info("message forwarded", "message_id", msg.ID)
		msg.Ack()
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		// Undecodable payloads and token mismatches will not improve on
		// redelivery; acking keeps the queue from looping on them.
		l.Logger.Warn("message rejected by webhook, dropping", "message_id", msg.ID, "status", status)
		msg.Ack()
	default:
		l.Logger.Warn("webhook returned failure, message will be redelivered", "message_id", msg.ID, "status", status)
		msg.Nack()
	}
}

func (l *Listener) forward(ctx context.Context, env *events.Envelope) (int, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("encoding envelope: %w", err)
	}

	url := l.cfg.WebhookURL + l.cfg.WebhookPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.cfg.WebhookToken)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
