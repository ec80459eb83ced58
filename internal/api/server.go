// Package api serves the archive's read endpoints and the Slack Events API
// webhook over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/config"
	"github.com/edgard/slackarchive/internal/database"
	"github.com/edgard/slackarchive/internal/ingest"
	"github.com/edgard/slackarchive/internal/logger"
	"github.com/edgard/slackarchive/internal/metrics"
	"github.com/edgard/slackarchive/internal/timeline"
)

const contentSecurityPolicy = "default-src 'self' cdnjs.cloudflare.com fonts.googleapis.com fonts.gstatic.com; img-src http: https: data:"

// Server wires the HTTP routes to the timeline.
type Server struct {
	engine  *timeline.Engine
	store   database.Store
	live    *ingest.Live
	metrics *metrics.Metrics
	slack   config.SlackConfig
	log     zerolog.Logger
}

// NewServer creates a Server. m may be nil, in which case /metrics is not served.
func NewServer(
	engine *timeline.Engine,
	store database.Store,
	live *ingest.Live,
	m *metrics.Metrics,
	slack config.SlackConfig,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  engine,
		store:   store,
		live:    live,
		metrics: m,
		slack:   slack,
		log:     logger.Component(log, "api"),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logger.Middleware(s.log), securityHeaders)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)
	api.HandleFunc("/channels", s.listChannels).Methods(http.MethodGet)
	api.HandleFunc("/channel/{channel}/{page:[0-9]+}", s.getPage).Methods(http.MethodGet)
	api.HandleFunc("/search", s.search).Methods(http.MethodGet)
	api.HandleFunc("/ts/{channel}/{ts}", s.resolveTimestamp).Methods(http.MethodGet)
	if s.slack.EventsEnabled {
		api.HandleFunc("/events", s.slackEvents).Methods(http.MethodPost)
	}

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// NewHTTPServer wraps the router in an http.Server with the configured timeouts.
func (s *Server) NewHTTPServer(cfg config.HTTPConfig) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down within timeout.
func Serve(ctx context.Context, srv *http.Server, log zerolog.Logger, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return <-errCh
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		w.Header().Set("Content-Security-Policy", contentSecurityPolicy)
		next.ServeHTTP(w, r)
	})
}
