// Package app wires the archive's long-running components and manages their
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/slackarchive/internal/api"
	"github.com/edgard/slackarchive/internal/logger"
)

// App runs the HTTP server, the scheduler and, when configured, the
// Telegram listener until the context is cancelled or one of them fails.
type App struct {
	log             zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
	scheduler       *Scheduler
	telegram        *tgbot.Bot
}

// New creates an App. tg may be nil.
func New(log zerolog.Logger, server *http.Server, shutdownTimeout time.Duration, scheduler *Scheduler, tg *tgbot.Bot) *App {
	return &App{
		log:             logger.Component(log, "app"),
		server:          server,
		shutdownTimeout: shutdownTimeout,
		scheduler:       scheduler,
		telegram:        tg,
	}
}

// Run blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().Msg("Starting archive")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return api.Serve(gCtx, a.server, a.log, a.shutdownTimeout)
	})

	if a.telegram != nil {
		g.Go(func() error {
			a.log.Info().Msg("Starting Telegram listener")
			a.telegram.Start(gCtx)
			if gCtx.Err() == nil {
				return fmt.Errorf("telegram listener stopped unexpectedly")
			}
			a.log.Info().Msg("Telegram listener stopped")
			return nil
		})
	}

	if a.scheduler != nil {
		g.Go(func() error {
			if err := a.scheduler.Start(gCtx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gCtx.Done()
			return a.scheduler.Stop()
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("Archive stopped due to error")
		return err
	}

	a.log.Info().Msg("Archive stopped gracefully")
	return nil
}
