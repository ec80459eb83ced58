package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/model"
)

// Raw is an undecoded chat record keyed by field name.
type Raw = map[string]json.RawMessage

// ephemeralFields are dropped from every record before storage. Replies are
// rebuilt from the replies themselves; the rest is client or read state.
var ephemeralFields = []string{"replies", "unread_count", "client_msg_id", "edited", "parent_user_id"}

// coreFields are lifted into typed Message fields.
var coreFields = []string{"channel", "ts", "thread_ts", "user", "text", "reactions"}

// Normalize converts a raw record into a Message. The record's own channel
// wins over fallbackChannel. Timestamps must parse as finite, non-negative
// numbers; anything else yields ErrInvalidTimestamp. Fields not lifted into
// the Message are kept verbatim in Extra.
func Normalize(raw Raw, fallbackChannel string) (model.Message, error) {
	var m model.Message

	channel, err := stringField(raw, "channel")
	if err != nil {
		return m, apperrors.NewValidationError("malformed channel field", err)
	}
	if channel == "" {
		channel = fallbackChannel
	}
	if channel == "" {
		return m, apperrors.NewMissingChannelError()
	}
	m.Channel = channel

	tsRaw, ok := raw["ts"]
	if !ok {
		return m, apperrors.NewInvalidTimestampError("ts", "", nil)
	}
	if m.TS, err = parseTimestampJSON("ts", tsRaw); err != nil {
		return m, err
	}

	if threadRaw, ok := raw["thread_ts"]; ok && !isNull(threadRaw) {
		threadTS, err := parseTimestampJSON("thread_ts", threadRaw)
		if err != nil {
			return m, err
		}
		m.ThreadTS = &threadTS
	}

	if m.User, err = stringField(raw, "user"); err != nil {
		return m, apperrors.NewValidationError("malformed user field", err)
	}
	if m.Text, err = stringField(raw, "text"); err != nil {
		return m, apperrors.NewValidationError("malformed text field", err)
	}

	if reactionsRaw, ok := raw["reactions"]; ok && !isNull(reactionsRaw) {
		var rs []model.Reaction
		if err := json.Unmarshal(reactionsRaw, &rs); err != nil {
			return m, apperrors.NewValidationError("malformed reactions field", err)
		}
		m.Reactions = NormalizeReactions(rs)
	}

	m.Extra = make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		m.Extra[k] = v
	}
	for _, k := range ephemeralFields {
		delete(m.Extra, k)
	}
	for _, k := range coreFields {
		delete(m.Extra, k)
	}
	return m, nil
}

// ParseTimestamp parses a Slack-style timestamp such as "1546300800.000200".
func ParseTimestamp(s string) (float64, error) {
	return parseTimestamp("ts", s)
}

func parseTimestamp(field, s string) (float64, error) {
	ts, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperrors.NewInvalidTimestampError(field, s, err)
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
		return 0, apperrors.NewInvalidTimestampError(field, s, nil)
	}
	return ts, nil
}

// FormatTimestamp renders ts in the shortest form that parses back to ts.
func FormatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

// parseTimestampJSON accepts either a JSON string or a JSON number.
func parseTimestampJSON(field string, raw json.RawMessage) (float64, error) {
	var s string
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, apperrors.NewInvalidTimestampError(field, string(raw), err)
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, apperrors.NewInvalidTimestampError(field, string(raw), err)
		}
		s = n.String()
	}

	return parseTimestamp(field, s)
}

func stringField(raw Raw, key string) (string, error) {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("field %q: %w", key, err)
	}
	return s, nil
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
