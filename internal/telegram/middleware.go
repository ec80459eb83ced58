package telegram

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/logger"
)

// Middleware logs each incoming update and how long handling took.
func Middleware(log zerolog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()

			lc := log.With().Int64("update_id", update.ID)
			switch {
			case update.Message != nil:
				lc = lc.Str("update_type", "message").
					Int("message_id", update.Message.ID).
					Int64("chat_id", update.Message.Chat.ID).
					Str("text_preview", logger.Truncate(update.Message.Text, 50))
			case update.EditedMessage != nil:
				lc = lc.Str("update_type", "edited_message").
					Int("message_id", update.EditedMessage.ID).
					Int64("chat_id", update.EditedMessage.Chat.ID)
			case update.MessageReaction != nil:
				lc = lc.Str("update_type", "message_reaction").
					Int("message_id", update.MessageReaction.MessageID).
					Int64("chat_id", update.MessageReaction.Chat.ID)
			default:
				lc = lc.Str("update_type", "other")
			}
			updateLog := lc.Logger()

			updateLog.Debug().Msg("Processing update")
			next(updateLog.WithContext(ctx), b, update)
			updateLog.Debug().Dur("duration", time.Since(start)).Msg("Finished processing update")
		}
	}
}
