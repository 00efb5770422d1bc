package scheduler

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chatsync/auth"
	"chatsync/database"
	"chatsync/gateway"
	"chatsync/mapper"

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

func testService(t *testing.T) (*SchedulerService, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	logger := slog.Default()
	m := mapper.NewMapper(db, gateway.NewClient(auth.NewManager(db, logger), logger), logger)
	return NewSchedulerService(db, m, logger), db
}

func TestRegisterTasks(t *testing.T) {
	s, _ := testService(t)
	s.RegisterTasks()

	names := make(map[string]bool)
	for _, task := range s.ListTasks() {
		names[task.Name] = true
	}
	assert.True(t, names["renew_subscriptions"])
	assert.True(t, names["mark_expired_subscriptions"])
	assert.True(t, names["cleanup_expired_subscriptions"])

	task, ok := s.GetTaskByName("renew_subscriptions")
	require.True(t, ok)
	assert.NotEmpty(t, task.Schedule)

	_, ok = s.GetTaskByName("no-such-task")
	assert.False(t, ok)
}

func TestRunTaskNowUnknownTask(t *testing.T) {
	s, _ := testService(t)
	s.RegisterTasks()

	require.Error(t, s.RunTaskNow("no-such-task"))
}

func TestMarkExpiredSubscriptions(t *testing.T) {
	s, db := testService(t)
	s.RegisterTasks()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(48 * time.Hour)
	expired := database.Subscription{SubscriptionName: "sub-expired", Status: database.SubscriptionStatusActive, ExpiresAt: &past}
	live := database.Subscription{SubscriptionName: "sub-live", Status: database.SubscriptionStatusActive, ExpiresAt: &future}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&live).Error)

	require.NoError(t, s.RunTaskNow("mark_expired_subscriptions"))

	var got database.Subscription
	require.NoError(t, db.First(&got, expired.ID).Error)
	assert.Equal(t, database.SubscriptionStatusExpired, got.Status)
	got = database.Subscription{}
	require.NoError(t, db.First(&got, live.ID).Error)
	assert.Equal(t, database.SubscriptionStatusActive, got.Status)
}

func TestCleanupExpiredSubscriptions(t *testing.T) {
	s, db := testService(t)
	s.RegisterTasks()

	old := time.Now().Add(-8 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	stale := database.Subscription{SubscriptionName: "sub-stale", Status: database.SubscriptionStatusExpired, ExpiresAt: &old}
	fresh := database.Subscription{SubscriptionName: "sub-fresh", Status: database.SubscriptionStatusExpired, ExpiresAt: &recent}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&fresh).Error)

	require.NoError(t, s.RunTaskNow("cleanup_expired_subscriptions"))

	var count int64
	require.NoError(t, db.Model(&database.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
