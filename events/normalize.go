package events

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"chatsync/errs"
)

// Envelope is the delivery wrapper shared by both ingress modes: the webhook
// POST body and the reformatted queue message carry the same shape.
type Envelope struct {
	MessageID   string            `json:"message_id"`
	PublishTime string            `json:"publish_time"`
	Attributes  map[string]string `json:"attributes"`
	DataBase64  string            `json:"data_base64"`
}

// EventType is the closed set of event kinds the router dispatches on.
// Anything else is carried as Unknown and ends up skipped, never errored.
type EventType int

const (
	MessageCreated EventType = iota
	MessageUpdated
	MemberAdded
	MemberRemoved
	Unknown
)

func ParseEventType(raw string) EventType {
	switch raw {
	case "MESSAGE_CREATED":
		return MessageCreated
	case "MESSAGE_UPDATED":
		return MessageUpdated
	case "MEMBER_ADDED":
		return MemberAdded
	case "MEMBER_REMOVED":
		return MemberRemoved
	default:
		return Unknown
	}
}

func (t EventType) String() string {
	switch t {
	case MessageCreated:
		return "MESSAGE_CREATED"
	case MessageUpdated:
		return "MESSAGE_UPDATED"
	case MemberAdded:
		return "MEMBER_ADDED"
	case MemberRemoved:
		return "MEMBER_REMOVED"
	default:
		return "UNKNOWN"
	}
}

// NormalizedEvent is the canonical event record, independent of how the
// envelope was delivered.
type NormalizedEvent struct {
	ExternalEventID string
	PublishTime     time.Time
	Type            EventType
	// RawType preserves the provider's type string for unknown events.
	RawType string

	SpaceName  string
	ThreadName string
	UserEmail  string

	MessageText  string
	MemberEmail  string
	MemberUserID string
	MemberRole   string

	RawPayload []byte
}

type eventPayload struct {
	EventType string `json:"eventType"`
	Space     struct {
		Name string `json:"name"`
	} `json:"space"`
	Thread struct {
		Name string `json:"name"`
	} `json:"thread"`
	User struct {
		Email string `json:"email"`
	} `json:"user"`
	Message struct {
		Text  string `json:"text"`
		Cards []struct {
			Header struct {
				Title string `json:"title"`
			} `json:"header"`
		} `json:"cards"`
	} `json:"message"`
	Member struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"member"`
}

// Normalize decodes an envelope into a canonical event. A missing message id
// or an undecodable payload is a DecodeError: without an identity there is
// nothing to deduplicate on, so such events never reach the router.
func Normalize(env *Envelope) (*NormalizedEvent, error) {
	if env.MessageID == "" {
		return nil, &errs.DecodeError{Reason: "envelope without message_id"}
	}

	raw, err := base64.StdEncoding.DecodeString(env.DataBase64)
	if err != nil {
		return nil, &errs.DecodeError{Reason: "invalid base64 payload", Err: err}
	}

	publishTime := time.Now()
	if env.PublishTime != "" {
		if t, err := time.Parse(time.RFC3339, env.PublishTime); err == nil {
			publishTime = t
		}
	}

	return normalizeRaw(env.MessageID, publishTime, raw)
}

// normalizeRaw parses the decoded payload. Retries reuse it to replay the
// stored payload of an errored event.
func normalizeRaw(externalID string, publishTime time.Time, raw []byte) (*NormalizedEvent, error) {
	var payload eventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &errs.DecodeError{Reason: "payload is not valid JSON", Err: err}
	}

	rawType := payload.EventType
	if rawType == "" {
		rawType = "UNKNOWN"
	}

	event := &NormalizedEvent{
		ExternalEventID: externalID,
		PublishTime:     publishTime,
		Type:            ParseEventType(rawType),
		RawType:         rawType,
		SpaceName:       payload.Space.Name,
		ThreadName:      payload.Thread.Name,
		UserEmail:       payload.User.Email,
		MessageText:     extractMessageText(&payload),
		MemberEmail:     payload.Member.Email,
		MemberUserID:    lastSegment(payload.Member.Name),
		MemberRole:      payload.Member.Role,
		RawPayload:      raw,
	}
	return event, nil
}

func extractMessageText(payload *eventPayload) string {
	if payload.Message.Text != "" {
		return payload.Message.Text
	}
	for _, card := range payload.Message.Cards {
		if card.Header.Title != "" {
			return card.Header.Title
		}
	}
	return ""
}

func lastSegment(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
