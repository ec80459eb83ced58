package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/config"
	"github.com/edgard/slackarchive/internal/database"
	"github.com/edgard/slackarchive/internal/logger"
	"github.com/edgard/slackarchive/internal/metrics"
	"github.com/edgard/slackarchive/internal/timeline"
)

// components are the pieces shared by every subcommand.
type components struct {
	cfg     *config.Config
	log     zerolog.Logger
	db      *sqlx.DB
	store   database.Store
	metrics *metrics.Metrics
	engine  *timeline.Engine
}

func bootstrap(opts *rootOptions) (*components, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	log.Info().Str("level", cfg.Log.Level).Bool("json", cfg.Log.JSON).Msg("Logger initialized")

	db, err := database.NewDB(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	store := database.NewStore(db, log)
	m := metrics.New()
	return &components{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   store,
		metrics: m,
		engine:  timeline.NewEngine(store, log, m),
	}, nil
}

func (rt *components) close() {
	database.CloseDB(rt.db, rt.log)
}
