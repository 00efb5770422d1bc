package scheduler

import (
	"context"
	"time"

	"chatsync/database"
	"chatsync/mapper"

	"gorm.io/gorm"
)

// Task represents a scheduled task
type Task struct {
	Name        string
	Description string
	Schedule    string
	Enabled     bool
	Handler     func() error
}

// renewWindow is how far ahead of expiry a subscription gets renewed.
const renewWindow = 24 * time.Hour

// SubscriptionTasks returns tasks keeping event subscriptions alive
func SubscriptionTasks(DB *gorm.DB, m *mapper.Mapper, ctx context.Context) []Task {
	return []Task{
		{
			Name:        "renew_subscriptions",
			Description: "Renew active subscriptions close to expiry",
			Schedule:    "0 * * * *", // every hour
			Enabled:     true,
			Handler: func() error {
				var subs []database.Subscription
				if err := DB.Where("status = ?", database.SubscriptionStatusActive).Find(&subs).Error; err != nil {
					return err
				}

				for _, sub := range subs {
					if !sub.IsExpiring(renewWindow) {
						continue
					}
					if err := m.RenewSubscription(ctx, sub.ID); err != nil {
						m.Logger.Error("subscription renewal failed", "subscription", sub.SubscriptionName, "error", err)
					}
				}

				return nil
			},
		},
		{
			Name:        "mark_expired_subscriptions",
			Description: "Flag subscriptions past their expiry",
			Schedule:    "30 * * * *", // every hour, offset from renewal
			Enabled:     true,
			Handler: func() error {
				return DB.Model(&database.Subscription{}).
					Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
						database.SubscriptionStatusActive, time.Now()).
					Update("status", database.SubscriptionStatusExpired).Error
			},
		},
	}
}

// DataMaintenanceTasks returns tasks related to data maintenance. The event
// log is deliberately not touched here: it is the audit trail.
func DataMaintenanceTasks(DB *gorm.DB) []Task {
	return []Task{
		{
			Name:        "cleanup_expired_subscriptions",
			Description: "Remove subscriptions expired for over a week",
			Schedule:    "0 4 * * *", // 4 AM every day
			Enabled:     true,
			Handler: func() error {
				cutoff := time.Now().Add(-7 * 24 * time.Hour)
				return DB.Where("status = ? AND expires_at < ?",
					database.SubscriptionStatusExpired, cutoff).
					Delete(&database.Subscription{}).Error
			},
		},
	}
}
