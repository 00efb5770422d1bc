package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"chatsync/auth"
	"chatsync/errs"
)

const DefaultBaseURL = "https://chat.googleapis.com"

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 30 * time.Second

// Client is a thin authenticated HTTP client for the messaging provider.
// On a 401 it forces exactly one token refresh and retries once; every other
// failure is surfaced as an ApiError for the caller to decide on. Transient
// 5xx responses are deliberately not retried here to avoid duplicate side
// effects from partially-applied calls.
type Client struct {
	BaseURL    string
	EventsURL  string
	Auth       *auth.Manager
	HTTPClient *http.Client
	Logger     *slog.Logger

	// NetworkRetries additionally retries transport-level failures (never
	// provider responses). Zero keeps the fail-once behavior.
	NetworkRetries int
}

func NewClient(authManager *auth.Manager, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		EventsURL:  DefaultEventsURL,
		Auth:       authManager,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Logger:     logger,
	}
}

// Request performs one authenticated call against the provider API. path is
// absolute when it starts with http(s), otherwise relative to BaseURL.
func (c *Client) Request(ctx context.Context, credentialID uint, method string, path string, query url.Values, body interface{}) ([]byte, error) {
	token, err := c.Auth.GetValidToken(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	respBody, status, err := c.execute(ctx, token, method, path, query, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		// One forced refresh, one retry. A second 401 is final.
		token, err = c.Auth.ForceRefresh(ctx, credentialID, token)
		if err != nil {
			return nil, err
		}
		respBody, status, err = c.execute(ctx, token, method, path, query, body)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, &errs.ApiError{Kind: errs.KindProvider, Status: status, Detail: "unauthorized after token refresh"}
		}
	}

	if status < 200 || status >= 300 {
		return nil, &errs.ApiError{Kind: errs.KindProvider, Status: status, Detail: string(respBody)}
	}
	return respBody, nil
}

func (c *Client) execute(ctx context.Context, token string, method string, path string, query url.Values, body interface{}) ([]byte, int, error) {
	fullURL := path
	if len(path) == 0 || path[0] == '/' {
		fullURL = c.BaseURL + path
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request body: %w", err)
		}
	}

	attempts := 1 + c.NetworkRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, &errs.ApiError{Kind: errs.KindNetwork, Detail: "request cancelled", Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, 0, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = &errs.ApiError{Kind: errs.KindNetwork, Detail: fmt.Sprintf("%s %s", method, path), Err: err}
			c.Logger.Warn("provider request failed", "method", method, "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &errs.ApiError{Kind: errs.KindNetwork, Detail: "reading response body", Err: err}
			continue
		}
		return respBody, resp.StatusCode, nil
	}
	return nil, 0, lastErr
}
