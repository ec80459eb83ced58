// Package telegram feeds the archive from a Telegram bot: group messages,
// edits, reactions and new members become live archive events.
package telegram

import (
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/logger"
)

// allowedUpdates are the update kinds the archive consumes. Reaction updates
// are only delivered when requested explicitly.
var allowedUpdates = bot.AllowedUpdates{"message", "edited_message", "message_reaction"}

// NewTelegramBot creates a long-polling bot that routes every update to handler.
func NewTelegramBot(token string, log zerolog.Logger, handler bot.HandlerFunc, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	log = logger.Component(log, "telegram_bot")

	opts = append([]bot.Option{
		bot.WithMiddlewares(Middleware(log)),
		bot.WithDefaultHandler(handler),
		bot.WithAllowedUpdates(allowedUpdates),
	}, opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info().Str("token_prefix", logger.Truncate(token, 11)).Msg("Telegram bot instance created")
	return b, nil
}
