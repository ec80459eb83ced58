package timeline

import (
	"context"
	"sort"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/model"
)

// InsertReport describes the outcome of Insert. Duplicates and orphans are
// per-record results, not batch failures.
type InsertReport struct {
	Messages   int
	Replies    int
	Duplicates []error
	Orphaned   []error
	// Channels lists, sorted, every channel that gained a top-level message.
	Channels []string
}

// Insert stores a classified batch: top-level messages first, then each reply
// group in first-seen order appended to its parent's thread. A reply whose
// parent does not exist is reported in Orphaned and dropped. Storage failures
// abort the batch and are returned. Insert does not advance pagination; the
// caller decides when to run Advance for the reported channels.
func (e *Engine) Insert(ctx context.Context, b Batch) (InsertReport, error) {
	var report InsertReport
	touched := make(map[string]struct{})

	for i := range b.TopLevel {
		m := &b.TopLevel[i]
		ok, err := e.insertMessage(ctx, m)
		if err != nil {
			return report, err
		}
		if !ok {
			e.metrics.Duplicate("message")
			report.Duplicates = append(report.Duplicates, apperrors.NewDuplicateTimestampError(m.Channel, m.TS))
			e.log.Debug().Str("channel", m.Channel).Float64("ts", m.TS).Msg("Skipping duplicate message")
			continue
		}
		e.metrics.Inserted("message")
		report.Messages++
		touched[m.Channel] = struct{}{}
	}

	for _, key := range b.ParentOrder {
		if err := e.insertReplies(ctx, key, b.Replies[key], &report); err != nil {
			return report, err
		}
	}

	for ch := range touched {
		report.Channels = append(report.Channels, ch)
	}
	sort.Strings(report.Channels)
	return report, nil
}

func (e *Engine) insertMessage(ctx context.Context, m *model.Message) (bool, error) {
	unlock := e.writeLocks.Lock(m.Channel)
	defer unlock()
	return e.store.InsertMessage(ctx, m)
}

func (e *Engine) insertReplies(ctx context.Context, key ReplyKey, replies []model.Reply, report *InsertReport) error {
	unlock := e.writeLocks.Lock(key.Channel)
	defer unlock()

	exists, err := e.store.MessageExists(ctx, key.Channel, key.ParentTS)
	if err != nil {
		return err
	}
	if !exists {
		for i := range replies {
			e.metrics.Orphaned()
			report.Orphaned = append(report.Orphaned,
				apperrors.NewOrphanedReplyError(key.Channel, replies[i].TS, key.ParentTS))
		}
		e.log.Warn().
			Str("channel", key.Channel).
			Float64("parent_ts", key.ParentTS).
			Int("replies", len(replies)).
			Msg("Dropping replies for unknown parent")
		return nil
	}

	for i := range replies {
		r := &replies[i]
		ok, err := e.store.InsertReply(ctx, r)
		if err != nil {
			return err
		}
		if !ok {
			e.metrics.Duplicate("reply")
			report.Duplicates = append(report.Duplicates, apperrors.NewDuplicateTimestampError(r.Channel, r.TS))
			continue
		}
		e.metrics.Inserted("reply")
		report.Replies++
	}
	return nil
}

// LocationKind tags where a timestamp was found.
type LocationKind int

const (
	NotFound LocationKind = iota
	TopLevel
	InReply
)

func (k LocationKind) String() string {
	switch k {
	case TopLevel:
		return "top_level"
	case InReply:
		return "reply"
	default:
		return "not_found"
	}
}

// Location is the result of resolving (channel, ts) to a stored record.
// Exactly one of Message and Reply is set unless Kind is NotFound.
type Location struct {
	Kind    LocationKind
	Message *model.Message
	Reply   *model.Reply
}

// Locate finds the record with the given timestamp, checking top-level
// messages before replies.
func (e *Engine) Locate(ctx context.Context, channel string, ts float64) (Location, error) {
	m, err := e.store.GetMessage(ctx, channel, ts)
	if err != nil {
		return Location{}, err
	}
	if m != nil {
		return Location{Kind: TopLevel, Message: m}, nil
	}

	r, err := e.store.GetReply(ctx, channel, ts)
	if err != nil {
		return Location{}, err
	}
	if r != nil {
		return Location{Kind: InReply, Reply: r}, nil
	}
	return Location{Kind: NotFound}, nil
}

// Edit replaces the text of the message or reply at (channel, ts).
func (e *Engine) Edit(ctx context.Context, channel string, ts float64, text string) error {
	unlock := e.writeLocks.Lock(channel)
	defer unlock()

	loc, err := e.Locate(ctx, channel, ts)
	if err != nil {
		return err
	}

	switch loc.Kind {
	case TopLevel:
		loc.Message.Text = text
		err = e.store.UpdateMessage(ctx, loc.Message)
	case InReply:
		loc.Reply.Text = text
		err = e.store.UpdateReply(ctx, loc.Reply)
	default:
		e.metrics.NotFound()
		return apperrors.NewTargetNotFoundError(channel, ts)
	}
	if err != nil {
		return err
	}

	e.metrics.Edited()
	e.log.Debug().Str("channel", channel).Float64("ts", ts).Stringer("target", loc.Kind).Msg("Edit applied")
	return nil
}

// ApplyReaction adds or removes user's reaction name on the record at
// (channel, ts). Re-adding a present user and removing an absent one leave
// the record untouched.
func (e *Engine) ApplyReaction(ctx context.Context, channel string, ts float64, name, user string, add bool) error {
	unlock := e.writeLocks.Lock(channel)
	defer unlock()

	loc, err := e.Locate(ctx, channel, ts)
	if err != nil {
		return err
	}

	apply := RemoveReaction
	if add {
		apply = AddReaction
	}

	var changed bool
	switch loc.Kind {
	case TopLevel:
		if loc.Message.Reactions, changed = apply(loc.Message.Reactions, name, user); changed {
			err = e.store.UpdateMessage(ctx, loc.Message)
		}
	case InReply:
		if loc.Reply.Reactions, changed = apply(loc.Reply.Reactions, name, user); changed {
			err = e.store.UpdateReply(ctx, loc.Reply)
		}
	default:
		e.metrics.NotFound()
		return apperrors.NewTargetNotFoundError(channel, ts)
	}
	if err != nil {
		return err
	}

	if changed {
		e.metrics.Reaction(add)
	}
	e.log.Debug().
		Str("channel", channel).
		Float64("ts", ts).
		Str("reaction", name).
		Bool("add", add).
		Bool("changed", changed).
		Stringer("target", loc.Kind).
		Msg("Reaction applied")
	return nil
}
