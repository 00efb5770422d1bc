package mapper

import (
	"context"
	"fmt"
	"time"

	"chatsync/database"
)

// InviteMember invites a member into the space through the provider and
// records the state transition. Any 2xx from the provider counts as success;
// no richer response contract is assumed.
func (m *Mapper) InviteMember(ctx context.Context, memberID uint) error {
	var member database.Member
	q := m.DB.Preload("Space").First(&member, "id = ?", memberID)
	if q.Error != nil {
		return fmt.Errorf("loading member %d: %w", memberID, q.Error)
	}

	membership, err := m.Gateway.CreateMembership(ctx, member.Space.CredentialID, member.Space.ExternalID, member.Email)
	if err != nil {
		return err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"state":          database.MemberStateInvited,
		"google_user_id": lastPathSegment(membership.Name),
		"last_sync":      now,
	}
	if q := m.DB.Model(&member).Updates(updates); q.Error != nil {
		return fmt.Errorf("recording member invite: %w", q.Error)
	}

	m.Logger.Info("invited member", "email", member.Email, "space", member.Space.ExternalID)
	return nil
}

// RemoveMember removes a member from the space through the provider and
// marks the record removed.
func (m *Mapper) RemoveMember(ctx context.Context, memberID uint) error {
	var member database.Member
	q := m.DB.Preload("Space").First(&member, "id = ?", memberID)
	if q.Error != nil {
		return fmt.Errorf("loading member %d: %w", memberID, q.Error)
	}

	// A member whose invite never completed has no provider user id yet;
	// the provider accepts the email as a membership alias.
	memberKey := member.GoogleUserID
	if memberKey == "" {
		memberKey = member.Email
	}
	membershipName := fmt.Sprintf("%s/members/%s", member.Space.ExternalID, memberKey)
	if err := m.Gateway.DeleteMembership(ctx, member.Space.CredentialID, membershipName); err != nil {
		return err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"state":     database.MemberStateRemoved,
		"last_sync": now,
	}
	if q := m.DB.Model(&member).Updates(updates); q.Error != nil {
		return fmt.Errorf("recording member removal: %w", q.Error)
	}

	m.Logger.Info("removed member", "email", member.Email, "space", member.Space.ExternalID)
	return nil
}

func lastPathSegment(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
