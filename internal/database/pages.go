package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/model"
)

const pageColumns = "channel, page, start_ts, end_ts"

func (s *sqlxStore) GetOpenPage(ctx context.Context, channel string) (*model.Page, error) {
	var p model.Page
	err := s.db.GetContext(ctx, &p, `
        SELECT `+pageColumns+` FROM pages
        WHERE channel = ? AND end_ts IS NULL
        ORDER BY page DESC LIMIT 1;
    `, channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open page (channel %s): %w", channel, err)
	}
	return &p, nil
}

func (s *sqlxStore) GetPage(ctx context.Context, channel string, page int) (*model.Page, error) {
	var p model.Page
	err := s.db.GetContext(ctx, &p,
		`SELECT `+pageColumns+` FROM pages WHERE channel = ? AND page = ?;`, channel, page)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get page %d (channel %s): %w", page, channel, err)
	}
	return &p, nil
}

func (s *sqlxStore) ListPages(ctx context.Context, channel string) ([]model.Page, error) {
	var pages []model.Page
	err := s.db.SelectContext(ctx, &pages,
		`SELECT `+pageColumns+` FROM pages WHERE channel = ? ORDER BY page ASC;`, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages (channel %s): %w", channel, err)
	}
	return pages, nil
}

func (s *sqlxStore) SavePage(ctx context.Context, p model.Page) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := ensureStillOpen(ctx, tx, p.Channel, p.Page); err != nil {
			return err
		}
		if err := upsertPage(ctx, tx, p); err != nil {
			return err
		}
		return setChannelPages(ctx, tx, p.Channel, p.Page)
	})
}

func (s *sqlxStore) SplitPage(ctx context.Context, closed, next model.Page) error {
	if closed.EndTS == nil {
		return fmt.Errorf("page %d (channel %s) has no end_ts to close with", closed.Page, closed.Channel)
	}
	if next.Page != closed.Page+1 || next.Channel != closed.Channel {
		return fmt.Errorf("page %d (channel %s) is not the successor of page %d", next.Page, next.Channel, closed.Page)
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := ensureStillOpen(ctx, tx, closed.Channel, closed.Page); err != nil {
			return err
		}
		if err := upsertPage(ctx, tx, closed); err != nil {
			return err
		}
		if err := upsertPage(ctx, tx, next); err != nil {
			return err
		}
		return setChannelPages(ctx, tx, next.Channel, next.Page)
	})
	if err != nil {
		return err
	}

	s.log.Debug().
		Str("channel", closed.Channel).
		Int("closed_page", closed.Page).
		Float64("end_ts", *closed.EndTS).
		Float64("next_start_ts", next.StartTS).
		Msg("Page split committed")
	return nil
}

// ensureStillOpen fails with a page conflict when page was closed, or a later
// page was opened, after the caller read it. Writers in other processes share
// the database, so the check runs inside the writing transaction.
func ensureStillOpen(ctx context.Context, tx *sqlx.Tx, channel string, page int) error {
	var n int
	err := tx.GetContext(ctx, &n, `
        SELECT COUNT(*) FROM pages
        WHERE channel = ? AND (page > ? OR (page = ? AND end_ts IS NOT NULL));
    `, channel, page, page)
	if err != nil {
		return fmt.Errorf("failed to check page %d (channel %s): %w", page, channel, err)
	}
	if n > 0 {
		return apperrors.NewPageConflictError(channel, page)
	}
	return nil
}

// upsertPage never reopens a closed page.
func upsertPage(ctx context.Context, ex namedExecer, p model.Page) error {
	_, err := ex.NamedExecContext(ctx, `
        INSERT INTO pages (`+pageColumns+`)
        VALUES (:channel, :page, :start_ts, :end_ts)
        ON CONFLICT (channel, page) DO UPDATE SET
            start_ts = excluded.start_ts,
            end_ts = excluded.end_ts
        WHERE pages.end_ts IS NULL;
    `, p)
	if err != nil {
		return fmt.Errorf("failed to save page %d (channel %s): %w", p.Page, p.Channel, err)
	}
	return nil
}

func setChannelPages(ctx context.Context, ex namedExecer, channel string, pages int) error {
	_, err := ex.NamedExecContext(ctx, `
        INSERT INTO channels (id, pages) VALUES (:id, :pages)
        ON CONFLICT (id) DO UPDATE SET pages = excluded.pages;
    `, map[string]any{"id": channel, "pages": pages})
	if err != nil {
		return fmt.Errorf("failed to update page count (channel %s): %w", channel, err)
	}
	return nil
}
