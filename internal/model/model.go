// Package model defines the archive's core records: messages, replies,
// reactions, pages, channels, and users.
package model

import (
	"encoding/json"
	"fmt"
)

// Reaction is an aggregated emoji reaction on a message or reply.
// Count always equals len(Users); a reaction with no users is never kept.
type Reaction struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// Message is a top-level channel message. Replies hang off it in arrival order.
type Message struct {
	Channel   string
	TS        float64
	ThreadTS  *float64
	User      string
	Text      string
	Reactions []Reaction
	Replies   []Reply

	// Extra holds every other field of the source record verbatim.
	Extra map[string]json.RawMessage
}

// IsTopLevel reports whether m starts its own thread rather than replying to one.
func (m *Message) IsTopLevel() bool {
	return m.ThreadTS == nil || *m.ThreadTS == m.TS
}

// AsReply converts a threaded message into a reply of its parent.
func (m *Message) AsReply() Reply {
	r := Reply{
		Channel:   m.Channel,
		TS:        m.TS,
		User:      m.User,
		Text:      m.Text,
		Reactions: m.Reactions,
		Extra:     m.Extra,
	}
	if m.ThreadTS != nil {
		r.ParentTS = *m.ThreadTS
	}
	return r
}

// MarshalJSON renders the message as its original record with the
// mutable fields overlaid.
func (m Message) MarshalJSON() ([]byte, error) {
	fields := map[string]any{
		"channel":   m.Channel,
		"ts":        m.TS,
		"user":      m.User,
		"text":      m.Text,
		"reactions": nonNilReactions(m.Reactions),
	}
	if m.ThreadTS != nil {
		fields["thread_ts"] = *m.ThreadTS
	}
	if len(m.Replies) > 0 {
		fields["replies"] = m.Replies
	}
	return overlay(m.Extra, fields)
}

// Reply is a message posted into another message's thread.
type Reply struct {
	Channel   string
	TS        float64
	ParentTS  float64
	User      string
	Text      string
	Reactions []Reaction
	Extra     map[string]json.RawMessage
}

// MarshalJSON renders the reply like a message with thread_ts set to its parent.
func (r Reply) MarshalJSON() ([]byte, error) {
	return overlay(r.Extra, map[string]any{
		"channel":   r.Channel,
		"ts":        r.TS,
		"thread_ts": r.ParentTS,
		"user":      r.User,
		"text":      r.Text,
		"reactions": nonNilReactions(r.Reactions),
	})
}

// Page is one fixed-capacity slice of a channel's top-level timeline.
// EndTS is nil while the page is still open.
type Page struct {
	Channel string   `db:"channel"  json:"channel"`
	Page    int      `db:"page"     json:"page"`
	StartTS float64  `db:"start_ts" json:"start_ts"`
	EndTS   *float64 `db:"end_ts"   json:"end_ts,omitempty"`
}

// Closed reports whether the page has a fixed upper bound.
func (p Page) Closed() bool {
	return p.EndTS != nil
}

// Contains reports whether ts falls inside the page's bounds.
func (p Page) Contains(ts float64) bool {
	if ts < p.StartTS {
		return false
	}
	return p.EndTS == nil || ts <= *p.EndTS
}

// Channel describes a conversation. Pages caches the highest page number.
type Channel struct {
	ID         string
	Name       string
	IsArchived bool
	Pages      int
	Raw        json.RawMessage
}

// MarshalJSON renders the channel's source record with the page count overlaid.
func (c Channel) MarshalJSON() ([]byte, error) {
	return overlay(rawFields(c.Raw), map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"is_archived": c.IsArchived,
		"pages":       c.Pages,
	})
}

// User is a workspace member.
type User struct {
	ID       string
	Name     string
	RealName string
	Raw      json.RawMessage
}

// MarshalJSON renders the user's source record.
func (u User) MarshalJSON() ([]byte, error) {
	return overlay(rawFields(u.Raw), map[string]any{
		"id":        u.ID,
		"name":      u.Name,
		"real_name": u.RealName,
	})
}

func nonNilReactions(rs []Reaction) []Reaction {
	if rs == nil {
		return []Reaction{}
	}
	return rs
}

func rawFields(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

func overlay(base map[string]json.RawMessage, fields map[string]any) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %q: %w", k, err)
		}
		out[k] = b
	}
	return json.Marshal(out)
}
