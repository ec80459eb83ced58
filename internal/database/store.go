package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/edgard/slackarchive/internal/model"
)

// Store defines the archive's persistence operations.
// Single-record getters return nil, nil when the record does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// InsertMessage stores a top-level message. It reports false without error
	// when a message with the same (channel, ts) already exists.
	InsertMessage(ctx context.Context, m *model.Message) (bool, error)
	// InsertReply appends a reply to its parent's thread. It reports false
	// without error when a reply with the same (channel, ts) already exists.
	InsertReply(ctx context.Context, r *model.Reply) (bool, error)
	MessageExists(ctx context.Context, channel string, ts float64) (bool, error)
	GetMessage(ctx context.Context, channel string, ts float64) (*model.Message, error)
	GetReply(ctx context.Context, channel string, ts float64) (*model.Reply, error)
	UpdateMessage(ctx context.Context, m *model.Message) error
	UpdateReply(ctx context.Context, r *model.Reply) error

	// ListTimestampsFrom returns up to limit top-level timestamps >= from, ascending.
	ListTimestampsFrom(ctx context.Context, channel string, from float64, limit int) ([]float64, error)
	// ListMessagesInRange returns top-level messages with from <= ts (<= to when
	// to is non-nil), ascending, each with its replies attached.
	ListMessagesInRange(ctx context.Context, channel string, from float64, to *float64) ([]model.Message, error)
	// SearchMessages returns top-level messages whose text, or any reply's
	// text, contains query. Oldest first.
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)

	GetOpenPage(ctx context.Context, channel string) (*model.Page, error)
	GetPage(ctx context.Context, channel string, page int) (*model.Page, error)
	ListPages(ctx context.Context, channel string) ([]model.Page, error)
	// SavePage upserts an open page and records it as the channel's last page.
	SavePage(ctx context.Context, p model.Page) error
	// SplitPage closes a full page and opens its successor in one transaction.
	SplitPage(ctx context.Context, closed, next model.Page) error

	UpsertUser(ctx context.Context, u *model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)
	UpsertChannel(ctx context.Context, c *model.Channel) error
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	ListChannels(ctx context.Context) ([]model.Channel, error)
	// ListChannelIDs returns every channel that has messages or a channel record.
	ListChannelIDs(ctx context.Context) ([]string, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store on SQLite through sqlx.
type sqlxStore struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// NewStore creates a Store backed by a connected sqlx.DB.
func NewStore(db *sqlx.DB, log zerolog.Logger) Store {
	return &sqlxStore{
		db:  db,
		log: log.With().Str("component", "store").Logger(),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunSQLMaintenance runs VACUUM and refreshes planner statistics.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.log.Info().Msg("Running SQL maintenance")

	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}

	s.log.Info().Msg("SQL maintenance completed")
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *sqlxStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.log.Warn().Err(rollbackErr).Msg("Error rolling back transaction")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
