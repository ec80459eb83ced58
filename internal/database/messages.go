package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/slackarchive/internal/model"
)

const messageColumns = "channel, ts, user_id, text, thread_ts, reactions, extra"

const replyColumns = "channel, ts, parent_ts, user_id, text, reactions, extra"

func (s *sqlxStore) InsertMessage(ctx context.Context, m *model.Message) (bool, error) {
	if m == nil {
		return false, errors.New("cannot insert nil message")
	}
	row, err := newMessageRow(m)
	if err != nil {
		return false, err
	}

	res, err := s.db.NamedExecContext(ctx, `
        INSERT INTO messages (`+messageColumns+`)
        VALUES (:channel, :ts, :user_id, :text, :thread_ts, :reactions, :extra)
        ON CONFLICT (channel, ts) DO NOTHING;
    `, row)
	if err != nil {
		return false, fmt.Errorf("failed to insert message (channel %s, ts %v): %w", m.Channel, m.TS, err)
	}
	return inserted(res)
}

func (s *sqlxStore) InsertReply(ctx context.Context, r *model.Reply) (bool, error) {
	if r == nil {
		return false, errors.New("cannot insert nil reply")
	}
	row, err := newReplyRow(r)
	if err != nil {
		return false, err
	}

	res, err := s.db.NamedExecContext(ctx, `
        INSERT INTO replies (`+replyColumns+`)
        VALUES (:channel, :ts, :parent_ts, :user_id, :text, :reactions, :extra)
        ON CONFLICT (channel, ts) DO NOTHING;
    `, row)
	if err != nil {
		return false, fmt.Errorf("failed to insert reply (channel %s, ts %v): %w", r.Channel, r.TS, err)
	}
	return inserted(res)
}

func (s *sqlxStore) MessageExists(ctx context.Context, channel string, ts float64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE channel = ? AND ts = ?);`, channel, ts)
	if err != nil {
		return false, fmt.Errorf("failed to check message (channel %s, ts %v): %w", channel, ts, err)
	}
	return exists, nil
}

func (s *sqlxStore) GetMessage(ctx context.Context, channel string, ts float64) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+messageColumns+` FROM messages WHERE channel = ? AND ts = ?;`, channel, ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message (channel %s, ts %v): %w", channel, ts, err)
	}
	m, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *sqlxStore) GetReply(ctx context.Context, channel string, ts float64) (*model.Reply, error) {
	var row replyRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+replyColumns+` FROM replies WHERE channel = ? AND ts = ?;`, channel, ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reply (channel %s, ts %v): %w", channel, ts, err)
	}
	r, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqlxStore) UpdateMessage(ctx context.Context, m *model.Message) error {
	row, err := newMessageRow(m)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
        UPDATE messages SET text = :text, reactions = :reactions, extra = :extra
        WHERE channel = :channel AND ts = :ts;
    `, row)
	if err != nil {
		return fmt.Errorf("failed to update message (channel %s, ts %v): %w", m.Channel, m.TS, err)
	}
	return nil
}

func (s *sqlxStore) UpdateReply(ctx context.Context, r *model.Reply) error {
	row, err := newReplyRow(r)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
        UPDATE replies SET text = :text, reactions = :reactions, extra = :extra
        WHERE channel = :channel AND ts = :ts;
    `, row)
	if err != nil {
		return fmt.Errorf("failed to update reply (channel %s, ts %v): %w", r.Channel, r.TS, err)
	}
	return nil
}

func (s *sqlxStore) ListTimestampsFrom(ctx context.Context, channel string, from float64, limit int) ([]float64, error) {
	var tss []float64
	err := s.db.SelectContext(ctx, &tss, `
        SELECT ts FROM messages
        WHERE channel = ? AND ts >= ?
        ORDER BY ts ASC
        LIMIT ?;
    `, channel, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list timestamps (channel %s): %w", channel, err)
	}
	return tss, nil
}

func (s *sqlxStore) ListMessagesInRange(ctx context.Context, channel string, from float64, to *float64) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel = ? AND ts >= ?`
	args := []any{channel, from}
	if to != nil {
		query += ` AND ts <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY ts ASC;`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list messages (channel %s): %w", channel, err)
	}

	msgs, err := toMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	var replyRows []replyRow
	err = s.db.SelectContext(ctx, &replyRows, `
        SELECT `+replyColumns+` FROM replies
        WHERE channel = ? AND parent_ts >= ? AND parent_ts <= ?
        ORDER BY parent_ts ASC, rowid ASC;
    `, channel, msgs[0].TS, msgs[len(msgs)-1].TS)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies (channel %s): %w", channel, err)
	}
	if err := attachReplies(msgs, replyRows); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *sqlxStore) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(query) + "%"

	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
        SELECT `+messageColumns+` FROM messages m
        WHERE m.text LIKE ? ESCAPE '\'
           OR EXISTS (
                SELECT 1 FROM replies r
                WHERE r.channel = m.channel AND r.parent_ts = m.ts AND r.text LIKE ? ESCAPE '\'
           )
        ORDER BY m.ts ASC
        LIMIT ?;
    `, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	msgs, err := toMessages(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadReplies(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// loadReplies attaches replies to messages from arbitrary channels.
func (s *sqlxStore) loadReplies(ctx context.Context, msgs []model.Message) error {
	for i := range msgs {
		var rows []replyRow
		err := s.db.SelectContext(ctx, &rows,
			`SELECT `+replyColumns+` FROM replies WHERE channel = ? AND parent_ts = ? ORDER BY rowid ASC;`,
			msgs[i].Channel, msgs[i].TS)
		if err != nil {
			return fmt.Errorf("failed to list replies (channel %s): %w", msgs[i].Channel, err)
		}
		if err := attachReplies(msgs[i:i+1], rows); err != nil {
			return err
		}
	}
	return nil
}

func toMessages(rows []messageRow) ([]model.Message, error) {
	msgs := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func attachReplies(msgs []model.Message, rows []replyRow) error {
	if len(rows) == 0 {
		return nil
	}
	byTS := make(map[float64]int, len(msgs))
	for i := range msgs {
		byTS[msgs[i].TS] = i
	}
	for _, row := range rows {
		idx, ok := byTS[row.ParentTS]
		if !ok {
			continue
		}
		r, err := row.toModel()
		if err != nil {
			return err
		}
		msgs[idx].Replies = append(msgs[idx].Replies, r)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// namedExecer is satisfied by both *sqlx.DB and *sqlx.Tx.
type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

var (
	_ namedExecer = (*sqlx.DB)(nil)
	_ namedExecer = (*sqlx.Tx)(nil)
)
