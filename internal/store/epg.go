package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/snapetech/iptv-catalog/internal/catalog"
)

// UpsertEPGEntries writes guide entries keyed by (channel id, start); a
// re-imported slot replaces the earlier row. Returns how many were written.
func (s *Store) UpsertEPGEntries(ctx context.Context, entries []catalog.EPGEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	var n int
	err := s.Write(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO epg_entries
			(channel_id, start, end, title, description, category, icon_url)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(channel_id, start) DO UPDATE SET
				end = excluded.end, title = excluded.title,
				description = excluded.description, category = excluded.category,
				icon_url = excluded.icon_url`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ChannelID, e.Start, e.End,
				e.Title, e.Description, e.Category, e.IconURL); err != nil {
				return fmt.Errorf("upsert guide entry %s@%d: %w", e.ChannelID, e.Start, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PurgeEPGBefore removes entries that ended before cutoff (epoch seconds).
func (s *Store) PurgeEPGBefore(ctx context.Context, cutoff int64) (int, error) {
	var n int64
	err := s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM epg_entries WHERE end < ?`, cutoff)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

// EPGEntries lists one guide channel's entries overlapping [from, to).
func (s *Store) EPGEntries(ctx context.Context, channelID string, from, to int64) ([]catalog.EPGEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, start, end, title, description, category, icon_url
		 FROM epg_entries
		 WHERE channel_id = ? AND end > ? AND start < ?
		 ORDER BY start`, channelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list guide entries: %w", err)
	}
	defer rows.Close()

	var out []catalog.EPGEntry
	for rows.Next() {
		var e catalog.EPGEntry
		if err := rows.Scan(&e.ChannelID, &e.Start, &e.End, &e.Title,
			&e.Description, &e.Category, &e.IconURL); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
