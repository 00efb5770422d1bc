package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Message is an outbound chat message: plain text, an optional structured
// card, and an optional thread key for threading.
type Message struct {
	Text      string `json:"text,omitempty"`
	Card      *Card  `json:"-"`
	ThreadKey string `json:"-"`
}

// Card is the structured message format the provider renders: a header,
// a list of items and an optional link button.
type Card struct {
	Title     string
	Subtitle  string
	ListItems []string
	Button    *CardButton
}

type CardButton struct {
	Text string
	URL  string
}

type chatThread struct {
	ThreadKey string `json:"threadKey,omitempty"`
}

type chatMessageBody struct {
	Text    string            `json:"text,omitempty"`
	CardsV2 []json.RawMessage `json:"cardsV2,omitempty"`
	Thread  *chatThread       `json:"thread,omitempty"`
}

// SentMessage is the subset of the provider message resource the sync needs.
type SentMessage struct {
	Name   string `json:"name"`
	Thread struct {
		Name      string `json:"name"`
		ThreadKey string `json:"threadKey"`
	} `json:"thread"`
	CreateTime string `json:"createTime"`
}

// SpaceResource is the provider space resource returned on creation.
type SpaceResource struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	SpaceType   string `json:"spaceType"`
}

// MembershipResource is the provider membership resource.
type MembershipResource struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func (c *Card) encode() json.RawMessage {
	items := make([]map[string]interface{}, 0, len(c.ListItems))
	for _, item := range c.ListItems {
		items = append(items, map[string]interface{}{
			"textParagraph": map[string]string{"text": item},
		})
	}
	if c.Button != nil {
		items = append(items, map[string]interface{}{
			"buttonList": map[string]interface{}{
				"buttons": []map[string]interface{}{
					{
						"text": c.Button.Text,
						"onClick": map[string]interface{}{
							"openLink": map[string]string{"url": c.Button.URL},
						},
					},
				},
			},
		})
	}

	card := map[string]interface{}{
		"card": map[string]interface{}{
			"header": map[string]string{
				"title":    c.Title,
				"subtitle": c.Subtitle,
			},
			"sections": []map[string]interface{}{
				{"widgets": items},
			},
		},
	}
	raw, _ := json.Marshal(card)
	return raw
}

// SendMessage posts a message to a space, threading it by the message's
// thread key when set. The external thread is created implicitly by the
// first message carrying its key.
func (c *Client) SendMessage(ctx context.Context, credentialID uint, externalSpaceID string, msg Message) (*SentMessage, error) {
	body := chatMessageBody{Text: msg.Text}
	if msg.Card != nil {
		body.CardsV2 = []json.RawMessage{msg.Card.encode()}
	}

	query := url.Values{}
	if msg.ThreadKey != "" {
		body.Thread = &chatThread{ThreadKey: msg.ThreadKey}
		query.Set("messageReplyOption", "REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD")
	}

	path := fmt.Sprintf("/v1/%s/messages", externalSpaceID)
	respBody, err := c.Request(ctx, credentialID, http.MethodPost, path, query, body)
	if err != nil {
		return nil, err
	}

	var sent SentMessage
	if err := json.Unmarshal(respBody, &sent); err != nil {
		return nil, fmt.Errorf("decoding message response: %w", err)
	}
	return &sent, nil
}

// CreateSpace creates a named group space and returns the provider resource.
func (c *Client) CreateSpace(ctx context.Context, credentialID uint, displayName string) (*SpaceResource, error) {
	body := map[string]string{
		"displayName": displayName,
		"spaceType":   "SPACE",
	}
	respBody, err := c.Request(ctx, credentialID, http.MethodPost, "/v1/spaces", nil, body)
	if err != nil {
		return nil, err
	}

	var space SpaceResource
	if err := json.Unmarshal(respBody, &space); err != nil {
		return nil, fmt.Errorf("decoding space response: %w", err)
	}
	return &space, nil
}

// CreateMembership invites a user into a space. Any 2xx is success; nothing
// beyond the membership name is assumed about the response.
func (c *Client) CreateMembership(ctx context.Context, credentialID uint, externalSpaceID string, email string) (*MembershipResource, error) {
	body := map[string]interface{}{
		"member": map[string]string{
			"name": "users/" + email,
			"type": "HUMAN",
		},
	}
	path := fmt.Sprintf("/v1/%s/members", externalSpaceID)
	respBody, err := c.Request(ctx, credentialID, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}

	var membership MembershipResource
	if err := json.Unmarshal(respBody, &membership); err != nil {
		return nil, fmt.Errorf("decoding membership response: %w", err)
	}
	return &membership, nil
}

// DeleteMembership removes a member by membership resource name
// ("spaces/AAA/members/BBB").
func (c *Client) DeleteMembership(ctx context.Context, credentialID uint, membershipName string) error {
	_, err := c.Request(ctx, credentialID, http.MethodDelete, "/v1/"+membershipName, nil, nil)
	return err
}
