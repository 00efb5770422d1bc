package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chatsync/auth"
	"chatsync/database"
	"chatsync/errs"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	return database.SetupDatabase("sqlite", dsn, false)
}

// testSetup wires a client against a fake provider and a fake token
// endpoint. The seeded credential starts with a valid cached token.
func testSetup(t *testing.T, provider http.HandlerFunc) (*Client, uint, *int64) {
	t.Helper()
	db := testDB(t)

	var refreshes int64
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshes, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", atomic.LoadInt64(&refreshes)),
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	providerSrv := httptest.NewServer(provider)
	t.Cleanup(providerSrv.Close)

	expiry := time.Now().Add(time.Hour)
	cred := database.Credential{
		CompanyID:    1,
		AuthMode:     database.AuthModeOAuth,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		AccessToken:  "token-0",
		TokenExpiry:  &expiry,
		Active:       true,
	}
	require.NoError(t, db.Create(&cred).Error)

	manager := auth.NewManager(db, slog.Default())
	manager.TokenURL = tokenSrv.URL

	client := NewClient(manager, slog.Default())
	client.BaseURL = providerSrv.URL

	return client, cred.ID, &refreshes
}

func TestRequestPassesBearerToken(t *testing.T) {
	var gotAuth string
	client, credID, refreshes := testSetup(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	})

	body, err := client.Request(context.Background(), credID, http.MethodGet, "/v1/spaces", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "Bearer token-0", gotAuth)
	assert.Equal(t, int64(0), *refreshes)
}

func TestRequestRetriesOnceAfter401(t *testing.T) {
	var calls int64
	client, credID, refreshes := testSetup(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	})

	_, err := client.Request(context.Background(), credID, http.MethodGet, "/v1/spaces", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls)
	assert.Equal(t, int64(1), *refreshes)
}

func TestRequestSecond401IsFinal(t *testing.T) {
	client, credID, refreshes := testSetup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Request(context.Background(), credID, http.MethodGet, "/v1/spaces", nil, nil)
	var apiErr *errs.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, errs.KindProvider, apiErr.Kind)
	assert.Equal(t, int64(1), *refreshes)
}

func TestRequestProviderFailureIsApiError(t *testing.T) {
	client, credID, _ := testSetup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad argument"}`))
	})

	_, err := client.Request(context.Background(), credID, http.MethodPost, "/v1/spaces", nil, map[string]string{})
	var apiErr *errs.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.False(t, apiErr.IsNetwork())
	assert.Contains(t, apiErr.Detail, "bad argument")
}

func TestRequestNetworkFailureIsNetworkKind(t *testing.T) {
	client, credID, _ := testSetup(t, func(w http.ResponseWriter, r *http.Request) {})
	client.BaseURL = "http://127.0.0.1:1" // nothing listens here

	_, err := client.Request(context.Background(), credID, http.MethodGet, "/v1/spaces", nil, nil)
	var apiErr *errs.ApiError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNetwork())
}

func TestSendMessageThreadsByKey(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody map[string]interface{}
	client, credID, _ := testSetup(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":   "spaces/AAA/messages/MMM",
			"thread": map[string]string{"name": "spaces/AAA/threads/task-1"},
		})
	})

	sent, err := client.SendMessage(context.Background(), credID, "spaces/AAA", Message{
		Text:      "hello",
		ThreadKey: "task-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "spaces/AAA/messages/MMM", sent.Name)
	assert.Equal(t, "/v1/spaces/AAA/messages", gotPath)
	assert.Contains(t, gotQuery, "messageReplyOption=REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD")
	assert.Equal(t, "hello", gotBody["text"])
	thread, ok := gotBody["thread"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "task-1", thread["threadKey"])
}

func TestCreateMembershipTargetsEmail(t *testing.T) {
	var gotBody map[string]interface{}
	client, credID, _ := testSetup(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name": "spaces/AAA/members/12345",
		})
	})

	membership, err := client.CreateMembership(context.Background(), credID, "spaces/AAA", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "spaces/AAA/members/12345", membership.Name)
	member, ok := gotBody["member"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "users/a@x.com", member["name"])
}
