package telegram

import (
	"context"
	"encoding/json"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/ingest"
	"github.com/edgard/slackarchive/internal/timeline"
)

// Applier applies one live event; *ingest.Live satisfies it.
type Applier interface {
	Apply(ctx context.Context, source string, ev ingest.Event) error
}

// Handler translates updates and applies them to the archive.
type Handler struct {
	live   Applier
	engine *timeline.Engine
	log    zerolog.Logger
}

// NewHandler creates a Handler. engine is used to resolve replies to replies
// onto their thread root and may be nil.
func NewHandler(live Applier, engine *timeline.Engine, log zerolog.Logger) *Handler {
	return &Handler{live: live, engine: engine, log: log.With().Str("component", "telegram_handler").Logger()}
}

// Handle is the bot's default handler.
func (h *Handler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = &h.log
	}

	for _, ev := range Translate(update) {
		if ev.Type == ingest.EventMessage {
			h.resolveThreadRoot(ctx, &ev)
		}
		if err := h.live.Apply(ctx, Source, ev); err != nil {
			log.Error().Err(err).Str("type", string(ev.Type)).Str("channel", ev.Channel).Msg("Failed to apply telegram update")
		}
	}
}

// resolveThreadRoot points a reply to a reply at the thread's root message,
// since threads are one level deep.
func (h *Handler) resolveThreadRoot(ctx context.Context, ev *ingest.Event) {
	raw, ok := ev.Record["thread_ts"]
	if !ok || h.engine == nil {
		return
	}
	var parent string
	if err := json.Unmarshal(raw, &parent); err != nil {
		return
	}
	ts, err := timeline.ParseTimestamp(parent)
	if err != nil {
		return
	}

	loc, err := h.engine.Locate(ctx, ev.Channel, ts)
	if err != nil || loc.Kind != timeline.InReply {
		return
	}
	ev.Record["thread_ts"] = mustJSON(timeline.FormatTimestamp(loc.Reply.ParentTS))
}
