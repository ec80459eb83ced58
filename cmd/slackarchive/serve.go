package main

import (
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/edgard/slackarchive/internal/api"
	"github.com/edgard/slackarchive/internal/app"
	"github.com/edgard/slackarchive/internal/ingest"
	"github.com/edgard/slackarchive/internal/tasks"
	"github.com/edgard/slackarchive/internal/telegram"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and ingest live events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			cfg := rt.cfg
			live := ingest.NewLive(rt.engine, rt.store, rt.log, rt.metrics)
			srv := api.NewServer(rt.engine, rt.store, live, rt.metrics, cfg.Slack, rt.log).NewHTTPServer(cfg.HTTP)

			var tg *tgbot.Bot
			if cfg.Telegram.Enabled {
				handler := telegram.NewHandler(live, rt.engine, rt.log)
				tg, err = telegram.NewTelegramBot(cfg.Telegram.Token, rt.log, handler.Handle)
				if err != nil {
					return err
				}
				me, err := tg.GetMe(ctx)
				if err != nil {
					return fmt.Errorf("failed to get telegram bot info: %w", err)
				}
				rt.log.Info().Int64("bot_id", me.ID).Str("bot_username", me.Username).Msg("Retrieved bot info")
			}

			taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: rt.log, Store: rt.store, Engine: rt.engine})
			sched, err := app.NewScheduler(rt.log, cfg.Scheduler, taskMap)
			if err != nil {
				return err
			}

			return app.New(rt.log, srv, cfg.HTTP.ShutdownTimeout, sched, tg).Run(ctx)
		},
	}
}
