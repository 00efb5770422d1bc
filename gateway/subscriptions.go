package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const DefaultEventsURL = "https://workspaceevents.googleapis.com"

// SubscriptionTTL is the provider-side lifetime requested for event
// subscriptions; records are renewed well before it runs out.
const SubscriptionTTL = 7 * 24 * time.Hour

// SubscriptionResource is the workspace events subscription resource.
type SubscriptionResource struct {
	Name           string `json:"name"`
	TargetResource string `json:"targetResource"`
	ExpireTime     string `json:"expireTime"`
	State          string `json:"state"`
}

func (c *Client) eventsPath(path string) string {
	return c.EventsURL + path
}

// CreateSubscription subscribes a space's events to a queue topic. The
// provider pushes matching events to the topic; the listener pulls them.
func (c *Client) CreateSubscription(ctx context.Context, credentialID uint, externalSpaceID string, topic string) (*SubscriptionResource, error) {
	body := map[string]interface{}{
		"targetResource": "//chat.googleapis.com/" + externalSpaceID,
		"eventTypes": []string{
			"google.workspace.chat.message.v1.created",
			"google.workspace.chat.message.v1.updated",
			"google.workspace.chat.membership.v1.created",
			"google.workspace.chat.membership.v1.deleted",
		},
		"notificationEndpoint": map[string]string{
			"pubsubTopic": topic,
		},
		"ttl": fmt.Sprintf("%ds", int(SubscriptionTTL.Seconds())),
		"payloadOptions": map[string]bool{
			"includeResource": true,
		},
	}

	respBody, err := c.Request(ctx, credentialID, http.MethodPost, c.eventsPath("/v1/subscriptions"), nil, body)
	if err != nil {
		return nil, err
	}

	var sub SubscriptionResource
	if err := json.Unmarshal(respBody, &sub); err != nil {
		return nil, fmt.Errorf("decoding subscription response: %w", err)
	}
	return &sub, nil
}

// RenewSubscription extends a subscription's lifetime by the default TTL.
// name is the provider resource name ("subscriptions/abc").
func (c *Client) RenewSubscription(ctx context.Context, credentialID uint, name string) (*SubscriptionResource, error) {
	body := map[string]interface{}{
		"ttl": fmt.Sprintf("%ds", int(SubscriptionTTL.Seconds())),
	}
	query := url.Values{"updateMask": {"ttl"}}

	respBody, err := c.Request(ctx, credentialID, http.MethodPatch, c.eventsPath("/v1/"+name), query, body)
	if err != nil {
		return nil, err
	}

	var sub SubscriptionResource
	if err := json.Unmarshal(respBody, &sub); err != nil {
		return nil, fmt.Errorf("decoding subscription response: %w", err)
	}
	return &sub, nil
}

// DeleteSubscription removes the provider subscription.
func (c *Client) DeleteSubscription(ctx context.Context, credentialID uint, name string) error {
	_, err := c.Request(ctx, credentialID, http.MethodDelete, c.eventsPath("/v1/"+name), nil, nil)
	return err
}
