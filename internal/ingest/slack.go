package ingest

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/model"
	"github.com/edgard/slackarchive/internal/timeline"
)

// SlackSource labels events decoded from the Slack Events API.
const SlackSource = "slack"

// Envelope is the outer Slack Events API payload.
type Envelope struct {
	Type      string          `json:"type"`
	Token     string          `json:"token"`
	Challenge string          `json:"challenge"`
	TeamID    string          `json:"team_id"`
	EventID   string          `json:"event_id"`
	Event     json.RawMessage `json:"event"`
}

const (
	EnvelopeURLVerification = "url_verification"
	EnvelopeEventCallback   = "event_callback"
)

// ParseEnvelope decodes the outer Events API payload.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, apperrors.NewValidationError("malformed events payload", err)
	}
	if env.Type == "" {
		return env, apperrors.NewValidationError("events payload has no type", nil)
	}
	return env, nil
}

type slackEventHeader struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Channel string `json:"channel"`
}

type slackChangedMessage struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

type slackReaction struct {
	User     string `json:"user"`
	Reaction string `json:"reaction"`
	Item     struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	} `json:"item"`
}

type slackTeamJoin struct {
	User json.RawMessage `json:"user"`
}

// DecodeSlackEvent converts an inner Events API event into live events.
// Deletions and thread-broadcast notices produce no events; message_changed
// becomes an edit of the embedded message; reactions apply only to messages.
func DecodeSlackEvent(raw json.RawMessage) ([]Event, error) {
	var hdr slackEventHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, apperrors.NewValidationError("malformed slack event", err)
	}

	switch hdr.Type {
	case "message":
		return decodeSlackMessage(hdr, raw)

	case "reaction_added", "reaction_removed":
		var r slackReaction
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, apperrors.NewValidationError("malformed reaction event", err)
		}
		if r.Item.Type != "message" {
			return nil, nil
		}
		ts, err := timeline.ParseTimestamp(r.Item.TS)
		if err != nil {
			return nil, err
		}
		typ := EventReactionAdded
		if hdr.Type == "reaction_removed" {
			typ = EventReactionRemoved
		}
		return []Event{{
			Type:     typ,
			Channel:  r.Item.Channel,
			TS:       ts,
			Reaction: r.Reaction,
			User:     r.User,
		}}, nil

	case "team_join":
		var tj slackTeamJoin
		if err := json.Unmarshal(raw, &tj); err != nil {
			return nil, apperrors.NewValidationError("malformed team_join event", err)
		}
		u, err := DecodeUser(tj.User)
		if err != nil {
			return nil, err
		}
		return []Event{{Type: EventUserJoined, Member: &u}}, nil

	default:
		return nil, nil
	}
}

func decodeSlackMessage(hdr slackEventHeader, raw json.RawMessage) ([]Event, error) {
	switch hdr.Subtype {
	case "message_deleted", "message_replied":
		return nil, nil

	case "message_changed":
		var changed slackChangedMessage
		if err := json.Unmarshal(raw, &changed); err != nil {
			return nil, apperrors.NewValidationError("malformed message_changed event", err)
		}
		var inner struct {
			TS   string `json:"ts"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(changed.Message, &inner); err != nil {
			return nil, apperrors.NewValidationError("malformed edited message", err)
		}
		ts, err := timeline.ParseTimestamp(inner.TS)
		if err != nil {
			return nil, err
		}
		return []Event{{Type: EventEdit, Channel: changed.Channel, TS: ts, Text: inner.Text}}, nil

	default:
		var record timeline.Raw
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, apperrors.NewValidationError("malformed message event", err)
		}
		delete(record, "event_ts")
		delete(record, "channel_type")
		return []Event{{Type: EventMessage, Channel: hdr.Channel, Record: record}}, nil
	}
}

// DecodeUser reads a Slack user object, keeping the raw record.
func DecodeUser(raw json.RawMessage) (model.User, error) {
	var u struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			RealName string `json:"real_name"`
		} `json:"profile"`
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.User{}, apperrors.NewValidationError("malformed user", err)
	}
	if u.ID == "" {
		return model.User{}, apperrors.NewValidationError(fmt.Sprintf("user without id: %s", raw), nil)
	}
	realName := u.RealName
	if realName == "" {
		realName = u.Profile.RealName
	}
	return model.User{ID: u.ID, Name: u.Name, RealName: realName, Raw: raw}, nil
}

// DecodeChannel reads a Slack channel object, keeping the raw record.
func DecodeChannel(raw json.RawMessage) (model.Channel, error) {
	var c struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		IsArchived bool   `json:"is_archived"`
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Channel{}, apperrors.NewValidationError("malformed channel", err)
	}
	if c.ID == "" {
		return model.Channel{}, apperrors.NewValidationError(fmt.Sprintf("channel without id: %s", raw), nil)
	}
	return model.Channel{ID: c.ID, Name: c.Name, IsArchived: c.IsArchived, Raw: raw}, nil
}
