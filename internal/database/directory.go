package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edgard/slackarchive/internal/model"
)

func (s *sqlxStore) UpsertUser(ctx context.Context, u *model.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user must have an id")
	}
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO users (id, name, real_name, raw)
        VALUES (:id, :name, :real_name, :raw)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            real_name = excluded.real_name,
            raw = excluded.raw;
    `, userRow{ID: u.ID, Name: u.Name, RealName: u.RealName, Raw: rawOrEmpty(u.Raw)})
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

func (s *sqlxStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, real_name, raw FROM users ORDER BY name ASC;`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toModel())
	}
	return users, nil
}

// UpsertChannel saves channel metadata. The cached page count is owned by
// pagination and is never overwritten here.
func (s *sqlxStore) UpsertChannel(ctx context.Context, c *model.Channel) error {
	if c == nil || c.ID == "" {
		return errors.New("channel must have an id")
	}
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO channels (id, name, is_archived, raw)
        VALUES (:id, :name, :is_archived, :raw)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            is_archived = excluded.is_archived,
            raw = excluded.raw;
    `, channelRow{ID: c.ID, Name: c.Name, IsArchived: c.IsArchived, Raw: rawOrEmpty(c.Raw)})
	if err != nil {
		return fmt.Errorf("failed to save channel %s: %w", c.ID, err)
	}
	return nil
}

func (s *sqlxStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	var row channelRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, is_archived, pages, raw FROM channels WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get channel %s: %w", id, err)
	}
	c := row.toModel()
	return &c, nil
}

// ListChannels returns active channels before archived ones, each group by name.
func (s *sqlxStore) ListChannels(ctx context.Context) ([]model.Channel, error) {
	var rows []channelRow
	err := s.db.SelectContext(ctx, &rows, `
        SELECT id, name, is_archived, pages, raw FROM channels
        ORDER BY is_archived ASC, name ASC, id ASC;
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	channels := make([]model.Channel, 0, len(rows))
	for _, row := range rows {
		channels = append(channels, row.toModel())
	}
	return channels, nil
}

func (s *sqlxStore) ListChannelIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
        SELECT id FROM channels
        UNION
        SELECT DISTINCT channel FROM messages
        ORDER BY 1;
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel ids: %w", err)
	}
	return ids, nil
}
