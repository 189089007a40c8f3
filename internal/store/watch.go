package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/snapetech/iptv-catalog/internal/catalog"
)

// WatchState fetches progress for one content id; nil when none recorded.
func (s *Store) WatchState(ctx context.Context, contentID string) (*catalog.WatchState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_id, position_secs, duration_secs, updated_at
		 FROM watch_state WHERE content_id = ?`, contentID)

	var (
		ws catalog.WatchState
		at int64
	)
	err := row.Scan(&ws.ContentID, &ws.PositionSecs, &ws.DurationSecs, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ws.UpdatedAt = time.Unix(at, 0).UTC()
	return &ws, nil
}

func (s *Store) WatchStates(ctx context.Context) ([]catalog.WatchState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_id, position_secs, duration_secs, updated_at FROM watch_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.WatchState
	for rows.Next() {
		var (
			ws catalog.WatchState
			at int64
		)
		if err := rows.Scan(&ws.ContentID, &ws.PositionSecs, &ws.DurationSecs, &at); err != nil {
			return nil, err
		}
		ws.UpdatedAt = time.Unix(at, 0).UTC()
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *Store) UpsertWatchState(ctx context.Context, ws catalog.WatchState) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO watch_state
			(content_id, position_secs, duration_secs, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(content_id) DO UPDATE SET
				position_secs = excluded.position_secs,
				duration_secs = excluded.duration_secs,
				updated_at = excluded.updated_at`,
			ws.ContentID, ws.PositionSecs, ws.DurationSecs, ws.UpdatedAt.Unix())
		return err
	})
}

// Preferences returns the device preferences record; nil when never set.
// The record is stored as one JSON blob in a single-row table.
func (s *Store) Preferences(ctx context.Context) (*catalog.Preferences, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM preferences WHERE id = 1`)

	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p catalog.Preferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SetPreferences(ctx context.Context, p catalog.Preferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO preferences (id, data)
			VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(raw))
		return err
	})
}
