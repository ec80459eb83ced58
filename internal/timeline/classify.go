package timeline

import "github.com/edgard/slackarchive/internal/model"

// Batch is a set of normalized messages split into top-level messages and
// thread replies grouped by parent.
type Batch struct {
	TopLevel []model.Message
	Replies  map[ReplyKey][]model.Reply
	// ParentOrder lists reply groups in the order their first reply appeared.
	ParentOrder []ReplyKey
}

// ReplyKey identifies a thread parent.
type ReplyKey struct {
	Channel  string
	ParentTS float64
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	n := len(b.TopLevel)
	for _, rs := range b.Replies {
		n += len(rs)
	}
	return n
}

// Classify separates top-level messages from replies, preserving input order
// within each group. A message whose thread_ts equals its own ts is a thread
// parent and therefore top-level.
func Classify(msgs []model.Message) Batch {
	b := Batch{Replies: make(map[ReplyKey][]model.Reply)}
	for i := range msgs {
		m := &msgs[i]
		if m.IsTopLevel() {
			b.TopLevel = append(b.TopLevel, *m)
			continue
		}
		key := ReplyKey{Channel: m.Channel, ParentTS: *m.ThreadTS}
		if _, seen := b.Replies[key]; !seen {
			b.ParentOrder = append(b.ParentOrder, key)
		}
		b.Replies[key] = append(b.Replies[key], m.AsReply())
	}
	return b
}
