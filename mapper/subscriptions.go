package mapper

import (
	"context"
	"fmt"
	"time"

	"chatsync/database"
	"chatsync/gateway"
)

// EnsureSubscription makes sure the space has a live provider subscription
// feeding the queue topic. Called when a space first needs inbound delivery.
func (m *Mapper) EnsureSubscription(ctx context.Context, spaceID uint, topic string) (*database.Subscription, error) {
	var existing database.Subscription
	q := m.DB.Where("space_id = ? AND status IN ?", spaceID,
		[]string{database.SubscriptionStatusCreating, database.SubscriptionStatusActive}).First(&existing)
	if q.Error == nil {
		return &existing, nil
	}

	var space database.Space
	if q := m.DB.First(&space, "id = ?", spaceID); q.Error != nil {
		return nil, fmt.Errorf("loading space %d: %w", spaceID, q.Error)
	}

	sub := database.Subscription{
		CredentialID:     space.CredentialID,
		SpaceID:          space.ID,
		Topic:            topic,
		SubscriptionName: fmt.Sprintf("chatsync-%s", lastPathSegment(space.ExternalID)),
		Mode:             database.SubscriptionModePull,
		Status:           database.SubscriptionStatusCreating,
	}
	if q := m.DB.Create(&sub); q.Error != nil {
		return nil, fmt.Errorf("creating subscription record: %w", q.Error)
	}

	resource, err := m.Gateway.CreateSubscription(ctx, space.CredentialID, space.ExternalID, topic)
	if err != nil {
		m.markSubscriptionError(&sub, err)
		return nil, err
	}

	expiresAt := parseExpireTime(resource.ExpireTime)
	updates := map[string]interface{}{
		"status":        database.SubscriptionStatusActive,
		"external_name": resource.Name,
		"expires_at":    expiresAt,
		"error_message": "",
	}
	if q := m.DB.Model(&sub).Updates(updates); q.Error != nil {
		return nil, fmt.Errorf("activating subscription record: %w", q.Error)
	}
	sub.Status = database.SubscriptionStatusActive
	sub.ExternalName = resource.Name
	sub.ExpiresAt = &expiresAt

	m.Logger.Info("created subscription", "space", space.ExternalID, "subscription", resource.Name, "expires", expiresAt)
	return &sub, nil
}

// RenewSubscription extends the provider-side lifetime before it lapses.
func (m *Mapper) RenewSubscription(ctx context.Context, subscriptionID uint) error {
	var sub database.Subscription
	if q := m.DB.First(&sub, "id = ?", subscriptionID); q.Error != nil {
		return fmt.Errorf("loading subscription %d: %w", subscriptionID, q.Error)
	}

	resource, err := m.Gateway.RenewSubscription(ctx, sub.CredentialID, sub.ExternalName)
	if err != nil {
		m.markSubscriptionError(&sub, err)
		return err
	}

	expiresAt := parseExpireTime(resource.ExpireTime)
	updates := map[string]interface{}{
		"status":        database.SubscriptionStatusActive,
		"expires_at":    expiresAt,
		"error_message": "",
		"retry_count":   0,
	}
	if q := m.DB.Model(&sub).Updates(updates); q.Error != nil {
		return fmt.Errorf("recording subscription renewal: %w", q.Error)
	}

	m.Logger.Info("renewed subscription", "subscription", sub.SubscriptionName, "expires", expiresAt)
	return nil
}

// CancelSubscription deletes the provider subscription and removes the
// record. Called when a space is deactivated.
func (m *Mapper) CancelSubscription(ctx context.Context, subscriptionID uint) error {
	var sub database.Subscription
	if q := m.DB.First(&sub, "id = ?", subscriptionID); q.Error != nil {
		return fmt.Errorf("loading subscription %d: %w", subscriptionID, q.Error)
	}

	if q := m.DB.Model(&sub).Update("status", database.SubscriptionStatusDeleting); q.Error != nil {
		return fmt.Errorf("marking subscription for deletion: %w", q.Error)
	}

	if sub.ExternalName != "" {
		if err := m.Gateway.DeleteSubscription(ctx, sub.CredentialID, sub.ExternalName); err != nil {
			m.markSubscriptionError(&sub, err)
			return err
		}
	}

	if q := m.DB.Delete(&sub); q.Error != nil {
		return fmt.Errorf("deleting subscription record: %w", q.Error)
	}

	m.Logger.Info("cancelled subscription", "subscription", sub.SubscriptionName)
	return nil
}

func (m *Mapper) markSubscriptionError(sub *database.Subscription, err error) {
	q := m.DB.Model(sub).Updates(map[string]interface{}{
		"status":        database.SubscriptionStatusError,
		"error_message": err.Error(),
		"retry_count":   sub.RetryCount + 1,
	})
	if q.Error != nil {
		m.Logger.Error("failed to record subscription error", "subscription", sub.SubscriptionName, "error", q.Error)
	}
}

func parseExpireTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Now().Add(gateway.SubscriptionTTL)
}
