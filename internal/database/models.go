package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/edgard/slackarchive/internal/model"
)

// messageRow mirrors the messages table.
type messageRow struct {
	Channel   string          `db:"channel"`
	TS        float64         `db:"ts"`
	User      string          `db:"user_id"`
	Text      string          `db:"text"`
	ThreadTS  sql.NullFloat64 `db:"thread_ts"`
	Reactions string          `db:"reactions"`
	Extra     string          `db:"extra"`
}

// replyRow mirrors the replies table.
type replyRow struct {
	Channel   string  `db:"channel"`
	TS        float64 `db:"ts"`
	ParentTS  float64 `db:"parent_ts"`
	User      string  `db:"user_id"`
	Text      string  `db:"text"`
	Reactions string  `db:"reactions"`
	Extra     string  `db:"extra"`
}

type channelRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	IsArchived bool   `db:"is_archived"`
	Pages      int    `db:"pages"`
	Raw        string `db:"raw"`
}

type userRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	RealName string `db:"real_name"`
	Raw      string `db:"raw"`
}

func newMessageRow(m *model.Message) (messageRow, error) {
	reactions, extra, err := encodeJSONColumns(m.Reactions, m.Extra)
	if err != nil {
		return messageRow{}, err
	}
	row := messageRow{
		Channel:   m.Channel,
		TS:        m.TS,
		User:      m.User,
		Text:      m.Text,
		Reactions: reactions,
		Extra:     extra,
	}
	if m.ThreadTS != nil {
		row.ThreadTS = sql.NullFloat64{Float64: *m.ThreadTS, Valid: true}
	}
	return row, nil
}

func (r messageRow) toModel() (model.Message, error) {
	m := model.Message{
		Channel: r.Channel,
		TS:      r.TS,
		User:    r.User,
		Text:    r.Text,
	}
	if r.ThreadTS.Valid {
		ts := r.ThreadTS.Float64
		m.ThreadTS = &ts
	}
	if err := decodeJSONColumns(r.Reactions, r.Extra, &m.Reactions, &m.Extra); err != nil {
		return model.Message{}, fmt.Errorf("message %s/%v: %w", r.Channel, r.TS, err)
	}
	return m, nil
}

func newReplyRow(r *model.Reply) (replyRow, error) {
	reactions, extra, err := encodeJSONColumns(r.Reactions, r.Extra)
	if err != nil {
		return replyRow{}, err
	}
	return replyRow{
		Channel:   r.Channel,
		TS:        r.TS,
		ParentTS:  r.ParentTS,
		User:      r.User,
		Text:      r.Text,
		Reactions: reactions,
		Extra:     extra,
	}, nil
}

func (r replyRow) toModel() (model.Reply, error) {
	reply := model.Reply{
		Channel:  r.Channel,
		TS:       r.TS,
		ParentTS: r.ParentTS,
		User:     r.User,
		Text:     r.Text,
	}
	if err := decodeJSONColumns(r.Reactions, r.Extra, &reply.Reactions, &reply.Extra); err != nil {
		return model.Reply{}, fmt.Errorf("reply %s/%v: %w", r.Channel, r.TS, err)
	}
	return reply, nil
}

func (r channelRow) toModel() model.Channel {
	return model.Channel{
		ID:         r.ID,
		Name:       r.Name,
		IsArchived: r.IsArchived,
		Pages:      r.Pages,
		Raw:        json.RawMessage(r.Raw),
	}
}

func (r userRow) toModel() model.User {
	return model.User{
		ID:       r.ID,
		Name:     r.Name,
		RealName: r.RealName,
		Raw:      json.RawMessage(r.Raw),
	}
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func encodeJSONColumns(reactions []model.Reaction, extra map[string]json.RawMessage) (string, string, error) {
	if reactions == nil {
		reactions = []model.Reaction{}
	}
	rb, err := json.Marshal(reactions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode reactions: %w", err)
	}
	if extra == nil {
		extra = map[string]json.RawMessage{}
	}
	eb, err := json.Marshal(extra)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode extra fields: %w", err)
	}
	return string(rb), string(eb), nil
}

func decodeJSONColumns(reactions, extra string, rs *[]model.Reaction, ex *map[string]json.RawMessage) error {
	if err := json.Unmarshal([]byte(reactions), rs); err != nil {
		return fmt.Errorf("failed to decode reactions: %w", err)
	}
	if err := json.Unmarshal([]byte(extra), ex); err != nil {
		return fmt.Errorf("failed to decode extra fields: %w", err)
	}
	if len(*rs) == 0 {
		*rs = nil
	}
	return nil
}
