// Package ingest feeds the timeline from live chat events and bulk exports.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/database"
	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/metrics"
	"github.com/edgard/slackarchive/internal/model"
	"github.com/edgard/slackarchive/internal/timeline"
)

// EventType names a live event.
type EventType string

const (
	EventMessage         EventType = "message"
	EventEdit            EventType = "edit"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventUserJoined      EventType = "user_joined"
)

// Event is one source-independent live change.
type Event struct {
	Type    EventType
	Channel string

	// Record is the raw message for EventMessage.
	Record timeline.Raw

	// TS targets an existing record for edits and reactions.
	TS       float64
	Text     string
	Reaction string
	User     string

	// Member is set for EventUserJoined.
	Member *model.User
}

// Live applies live events to the timeline.
type Live struct {
	engine  *timeline.Engine
	store   database.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewLive creates a Live applier. m may be nil.
func NewLive(engine *timeline.Engine, store database.Store, log zerolog.Logger, m *metrics.Metrics) *Live {
	return &Live{
		engine:  engine,
		store:   store,
		log:     log.With().Str("component", "live").Logger(),
		metrics: m,
	}
}

// Apply routes ev to the timeline. An edit or reaction whose target is
// unknown, a duplicate message, and an orphaned reply are logged and
// swallowed; only malformed events and storage failures are returned.
func (l *Live) Apply(ctx context.Context, source string, ev Event) error {
	l.metrics.Event(source, string(ev.Type))

	switch ev.Type {
	case EventMessage:
		return l.applyMessage(ctx, ev)
	case EventEdit:
		return l.swallowNotFound(l.engine.Edit(ctx, ev.Channel, ev.TS, ev.Text), ev)
	case EventReactionAdded, EventReactionRemoved:
		err := l.engine.ApplyReaction(ctx, ev.Channel, ev.TS, ev.Reaction, ev.User, ev.Type == EventReactionAdded)
		return l.swallowNotFound(err, ev)
	case EventUserJoined:
		if ev.Member == nil {
			return apperrors.NewValidationError("user event without member", nil)
		}
		if err := l.store.UpsertUser(ctx, ev.Member); err != nil {
			return err
		}
		l.log.Info().Str("user", ev.Member.ID).Str("name", ev.Member.Name).Msg("User joined")
		return nil
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown event type %q", ev.Type), nil)
	}
}

func (l *Live) applyMessage(ctx context.Context, ev Event) error {
	m, err := timeline.Normalize(ev.Record, ev.Channel)
	if err != nil {
		return err
	}

	report, err := l.engine.Insert(ctx, timeline.Classify([]model.Message{m}))
	if err != nil {
		return err
	}
	for _, dup := range report.Duplicates {
		l.log.Debug().Err(dup).Msg("Ignoring duplicate live message")
	}
	for _, orphan := range report.Orphaned {
		l.log.Warn().Err(orphan).Msg("Live reply has no parent")
	}

	for _, ch := range report.Channels {
		if _, err := l.engine.Advance(ctx, ch); err != nil {
			return fmt.Errorf("failed to advance pages for channel %s: %w", ch, err)
		}
	}
	return nil
}

func (l *Live) swallowNotFound(err error, ev Event) error {
	if errors.Is(err, apperrors.ErrTargetNotFound) {
		l.log.Warn().
			Str("type", string(ev.Type)).
			Str("channel", ev.Channel).
			Str("ts", timeline.FormatTimestamp(ev.TS)).
			Msg("Live event target not found")
		return nil
	}
	return err
}
