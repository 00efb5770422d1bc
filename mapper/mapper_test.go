package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatsync/auth"
	"chatsync/database"
	"chatsync/errs"
	"chatsync/gateway"

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

// fakeProvider records requests and plays back canned responses per path
// prefix. Unmatched requests get an empty object.
type fakeProvider struct {
	requests []*http.Request
	bodies   []map[string]interface{}
	respond  map[string]interface{}
}

func (f *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		f.requests = append(f.requests, r)
		f.bodies = append(f.bodies, body)
		for prefix, resp := range f.respond {
			if len(r.URL.Path) >= len(prefix) && r.URL.Path[:len(prefix)] == prefix {
				json.NewEncoder(w).Encode(resp)
				return
			}
		}
		w.Write([]byte(`{}`))
	}
}

func testMapper(t *testing.T, provider *fakeProvider) (*Mapper, *gorm.DB) {
	t.Helper()
	db := testDB(t)

	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	manager := auth.NewManager(db, slog.Default())
	client := gateway.NewClient(manager, slog.Default())
	client.BaseURL = srv.URL
	client.EventsURL = srv.URL

	return NewMapper(db, client, slog.Default()), db
}

func seedProject(t *testing.T, db *gorm.DB, withCredential bool) *database.Project {
	t.Helper()
	if withCredential {
		expiry := time.Now().Add(time.Hour)
		cred := database.Credential{
			CompanyID:   1,
			AuthMode:    database.AuthModeOAuth,
			AccessToken: "cached-token",
			TokenExpiry: &expiry,
			Active:      true,
		}
		require.NoError(t, db.Create(&cred).Error)
	}
	project := database.Project{Name: "Website Redesign", CompanyID: 1}
	require.NoError(t, db.Create(&project).Error)
	return &project
}

func seedBoundSpace(t *testing.T, db *gorm.DB, project *database.Project) *database.Space {
	t.Helper()
	var cred database.Credential
	require.NoError(t, db.Where("company_id = ?", project.CompanyID).First(&cred).Error)
	space := database.Space{
		ProjectID:    project.ID,
		CredentialID: cred.ID,
		ExternalID:   "spaces/AAA",
		DisplayName:  project.Name,
		Active:       true,
	}
	require.NoError(t, db.Create(&space).Error)
	return &space
}

func TestEnsureSpaceCreatesOnFirstCall(t *testing.T) {
	provider := &fakeProvider{respond: map[string]interface{}{
		"/v1/spaces": map[string]interface{}{
			"name":        "spaces/AAA",
			"displayName": "Website Redesign",
			"spaceType":   "SPACE",
		},
	}}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)

	space, err := m.EnsureSpace(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "spaces/AAA", space.ExternalID)
	assert.True(t, space.Active)
	require.Len(t, provider.bodies, 1)
	assert.Equal(t, "Website Redesign", provider.bodies[0]["displayName"])
}

func TestEnsureSpaceIsIdempotent(t *testing.T) {
	provider := &fakeProvider{respond: map[string]interface{}{
		"/v1/spaces": map[string]interface{}{"name": "spaces/AAA", "spaceType": "SPACE"},
	}}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)

	first, err := m.EnsureSpace(context.Background(), project.ID)
	require.NoError(t, err)
	second, err := m.EnsureSpace(context.Background(), project.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, provider.requests, 1)
}

func TestEnsureSpaceWithoutCredentialIsConfigError(t *testing.T) {
	m, db := testMapper(t, &fakeProvider{})
	project := seedProject(t, db, false)

	_, err := m.EnsureSpace(context.Background(), project.ID)
	var configErr *errs.ConfigError
	require.True(t, errors.As(err, &configErr))
}

func TestEnsureSpaceResyncAfterDeactivation(t *testing.T) {
	provider := &fakeProvider{respond: map[string]interface{}{
		"/v1/spaces": map[string]interface{}{"name": "spaces/BBB", "spaceType": "SPACE"},
	}}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)

	// A project that was synced once and then disconnected keeps its old
	// binding as an inactive row. That history must not block binding the
	// project again.
	var cred database.Credential
	require.NoError(t, db.First(&cred).Error)
	stale := database.Space{ProjectID: project.ID, CredentialID: cred.ID, ExternalID: "spaces/AAA", Active: false}
	require.NoError(t, db.Create(&stale).Error)
	// GORM drops zero-valued fields carrying a `default` tag on insert, so
	// flip the flag explicitly (mirroring the production unsync path).
	require.NoError(t, db.Model(&stale).Update("active", false).Error)

	space, err := m.EnsureSpace(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "spaces/BBB", space.ExternalID)
	assert.True(t, space.Active)

	var count int64
	require.NoError(t, db.Model(&database.Space{}).Where("project_id = ?", project.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreateSpaceRecordRejectsSecondActiveBinding(t *testing.T) {
	m, db := testMapper(t, &fakeProvider{})
	project := seedProject(t, db, true)
	seedBoundSpace(t, db, project)

	var cred database.Credential
	require.NoError(t, db.First(&cred).Error)
	dup := database.Space{ProjectID: project.ID, CredentialID: cred.ID, ExternalID: "spaces/BBB", Active: true}
	err := m.createSpaceRecord(&dup)
	var conflictErr *errs.ConflictError
	require.True(t, errors.As(err, &conflictErr))
}

func TestEnsureThreadResyncAfterDeactivation(t *testing.T) {
	m, db := testMapper(t, &fakeProvider{})
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)
	// The stale thread carries the same deterministic key the new binding
	// will derive; only active rows contend for it.
	stale := database.Thread{TaskID: task.ID, SpaceID: space.ID, ThreadKey: fmt.Sprintf("task-%d", task.ID), Active: false}
	require.NoError(t, db.Create(&stale).Error)
	// GORM drops zero-valued fields carrying a `default` tag on insert, so
	// flip the flag explicitly (mirroring the production unsync path).
	require.NoError(t, db.Model(&stale).Update("active", false).Error)

	thread, err := m.EnsureThread(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, thread.Active)
	assert.NotEqual(t, stale.ID, thread.ID)
	assert.Equal(t, stale.ThreadKey, thread.ThreadKey)
}

func TestCreateThreadRecordRejectsSecondActiveBinding(t *testing.T) {
	m, db := testMapper(t, &fakeProvider{})
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)
	existing := database.Thread{TaskID: task.ID, SpaceID: space.ID, ThreadKey: fmt.Sprintf("task-%d", task.ID), Active: true}
	require.NoError(t, db.Create(&existing).Error)

	dup := database.Thread{TaskID: task.ID, SpaceID: space.ID, ThreadKey: existing.ThreadKey, Active: true}
	err := m.createThreadRecord(&dup)
	var conflictErr *errs.ConflictError
	require.True(t, errors.As(err, &conflictErr))
}

func TestEnsureThreadRequiresSpace(t *testing.T) {
	m, db := testMapper(t, &fakeProvider{})
	project := seedProject(t, db, true)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)

	_, err := m.EnsureThread(context.Background(), task.ID)
	var configErr *errs.ConfigError
	require.True(t, errors.As(err, &configErr))
}

func TestEnsureThreadBindsDeterministicKey(t *testing.T) {
	provider := &fakeProvider{}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	seedBoundSpace(t, db, project)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)

	thread, err := m.EnsureThread(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("task-%d", task.ID), thread.ThreadKey)
	// Binding only; no provider call until the first message.
	assert.Empty(t, provider.requests)

	again, err := m.EnsureThread(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, again.ID)
}

func TestFormatUpdateRendersLabels(t *testing.T) {
	msg := FormatUpdate("Fix login", map[string]interface{}{
		"priority": "2",
		"stage":    "In Progress",
	})

	assert.Contains(t, msg, "*Task Updated: Fix login*")
	assert.Contains(t, msg, "*Priority*: High")
	assert.Contains(t, msg, "*Stage*: In Progress")
}

func TestFormatUpdateIgnoresUnknownFields(t *testing.T) {
	msg := FormatUpdate("Fix login", map[string]interface{}{
		"priority":       "0",
		"internal_notes": "should not appear",
	})

	assert.Contains(t, msg, "*Priority*: Low")
	assert.NotContains(t, msg, "internal_notes")
	assert.NotContains(t, msg, "should not appear")
}

func TestPushUpdateSendsAndRecords(t *testing.T) {
	provider := &fakeProvider{respond: map[string]interface{}{
		"/v1/spaces/AAA/messages": map[string]interface{}{
			"name": "spaces/AAA/messages/MMM",
		},
	}}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)
	thread := database.Thread{TaskID: task.ID, SpaceID: space.ID, ThreadKey: "task-1", Active: true}
	require.NoError(t, db.Create(&thread).Error)

	sent, err := m.PushUpdate(context.Background(), thread.ID, map[string]interface{}{"priority": "2"})
	require.NoError(t, err)
	assert.Equal(t, "spaces/AAA/messages/MMM", sent.Name)

	require.Len(t, provider.bodies, 1)
	text, _ := provider.bodies[0]["text"].(string)
	assert.Contains(t, text, "*Priority*: High")

	var got database.Thread
	require.NoError(t, db.First(&got, thread.ID).Error)
	assert.Equal(t, 1, got.MessageCount)
	assert.Equal(t, "spaces/AAA/messages/MMM", got.LastMessageID)
}

func TestPushUpdateRejectsUnsyncedSpace(t *testing.T) {
	provider := &fakeProvider{}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)
	thread := database.Thread{TaskID: task.ID, SpaceID: space.ID, ThreadKey: "task-1", Active: true}
	require.NoError(t, db.Create(&thread).Error)

	// The project was disconnected; nothing may be posted into its space.
	require.NoError(t, db.Model(space).Update("active", false).Error)

	_, err := m.PushUpdate(context.Background(), thread.ID, map[string]interface{}{"stage": "Done"})
	var configErr *errs.ConfigError
	require.True(t, errors.As(err, &configErr))
	assert.Empty(t, provider.requests)
}

func TestPushUpdateRejectsInactiveThread(t *testing.T) {
	provider := &fakeProvider{}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)
	thread := database.Thread{TaskID: task.ID, SpaceID: space.ID, ThreadKey: "task-1", Active: false}
	require.NoError(t, db.Create(&thread).Error)
	// GORM drops zero-valued fields carrying a `default` tag on insert, so
	// flip the flag explicitly (mirroring the production unsync path).
	require.NoError(t, db.Model(&thread).Update("active", false).Error)

	_, err := m.PushUpdate(context.Background(), thread.ID, map[string]interface{}{"stage": "Done"})
	var configErr *errs.ConfigError
	require.True(t, errors.As(err, &configErr))
	assert.Empty(t, provider.requests)
}

func TestSendCardRendersStructuredMessage(t *testing.T) {
	provider := &fakeProvider{respond: map[string]interface{}{
		"/v1/spaces/AAA/messages": map[string]interface{}{
			"name": "spaces/AAA/messages/CCC",
		},
	}}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	task := database.Task{Name: "Fix login", ProjectID: project.ID}
	require.NoError(t, db.Create(&task).Error)
	thread := database.Thread{TaskID: task.ID, SpaceID: space.ID, ThreadKey: "task-1", Active: true}
	require.NoError(t, db.Create(&thread).Error)

	sent, err := m.SendCard(context.Background(), thread.ID, &gateway.Card{
		Title:     "Fix login",
		Subtitle:  "Website Redesign",
		ListItems: []string{"Stage: In Progress"},
		Button:    &gateway.CardButton{Text: "Open task", URL: "https://pm.example/task/1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "spaces/AAA/messages/CCC", sent.Name)

	require.Len(t, provider.bodies, 1)
	cards, ok := provider.bodies[0]["cardsV2"].([]interface{})
	require.True(t, ok)
	require.Len(t, cards, 1)
	raw, err := json.Marshal(cards[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Fix login")
	assert.Contains(t, string(raw), "Open task")
}

func TestInviteMemberTransitionsState(t *testing.T) {
	provider := &fakeProvider{respond: map[string]interface{}{
		"/v1/spaces/AAA/members": map[string]interface{}{
			"name":  "spaces/AAA/members/12345",
			"state": "INVITED",
		},
	}}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	member := database.Member{SpaceID: space.ID, Email: "a@x.com", State: database.MemberStatePending}
	require.NoError(t, db.Create(&member).Error)

	require.NoError(t, m.InviteMember(context.Background(), member.ID))

	var got database.Member
	require.NoError(t, db.First(&got, member.ID).Error)
	assert.Equal(t, database.MemberStateInvited, got.State)
	assert.Equal(t, "12345", got.GoogleUserID)
	require.NotNil(t, got.LastSync)
}

func TestRemoveMemberUsesProviderUserID(t *testing.T) {
	provider := &fakeProvider{}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	member := database.Member{SpaceID: space.ID, Email: "a@x.com", GoogleUserID: "12345", State: database.MemberStateInvited}
	require.NoError(t, db.Create(&member).Error)

	require.NoError(t, m.RemoveMember(context.Background(), member.ID))

	require.Len(t, provider.requests, 1)
	assert.Equal(t, http.MethodDelete, provider.requests[0].Method)
	assert.Equal(t, "/v1/spaces/AAA/members/12345", provider.requests[0].URL.Path)

	var got database.Member
	require.NoError(t, db.First(&got, member.ID).Error)
	assert.Equal(t, database.MemberStateRemoved, got.State)
}

func TestRemoveMemberFallsBackToEmail(t *testing.T) {
	provider := &fakeProvider{}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)
	// A pending member never got a provider user id from an invite response.
	member := database.Member{SpaceID: space.ID, Email: "a@x.com", State: database.MemberStatePending}
	require.NoError(t, db.Create(&member).Error)

	require.NoError(t, m.RemoveMember(context.Background(), member.ID))

	require.Len(t, provider.requests, 1)
	assert.Equal(t, "/v1/spaces/AAA/members/a@x.com", provider.requests[0].URL.Path)
}

func TestEnsureSubscriptionActivates(t *testing.T) {
	provider := &fakeProvider{respond: map[string]interface{}{
		"/v1/subscriptions": map[string]interface{}{
			"name":       "subscriptions/sub-1",
			"expireTime": time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
		},
	}}
	m, db := testMapper(t, provider)
	project := seedProject(t, db, true)
	space := seedBoundSpace(t, db, project)

	sub, err := m.EnsureSubscription(context.Background(), space.ID, "projects/p/topics/chat-events")
	require.NoError(t, err)
	assert.Equal(t, database.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "subscriptions/sub-1", sub.ExternalName)
	require.NotNil(t, sub.ExpiresAt)
	assert.True(t, sub.ExpiresAt.After(time.Now().Add(6*24*time.Hour)))

	again, err := m.EnsureSubscription(context.Background(), space.ID, "projects/p/topics/chat-events")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
}
