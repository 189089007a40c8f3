package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snapetech/iptv-catalog/internal/catalog"
)

const playlistCols = `id, name, kind, url, credential_ref, epg_url,
	refresh_secs, last_sync_at, last_hash, epg_last_sync_at`

func scanPlaylist(row interface{ Scan(...any) error }) (catalog.Playlist, error) {
	var (
		p       catalog.Playlist
		refresh int64
		syncAt  sql.NullInt64
		epgAt   sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Kind, &p.URL, &p.CredentialRef, &p.EpgURL,
		&refresh, &syncAt, &p.LastHash, &epgAt)
	if err != nil {
		return catalog.Playlist{}, err
	}
	p.RefreshEvery = time.Duration(refresh) * time.Second
	if syncAt.Valid {
		p.LastSyncAt = time.Unix(syncAt.Int64, 0).UTC()
	}
	if epgAt.Valid {
		p.EpgLastSyncAt = time.Unix(epgAt.Int64, 0).UTC()
	}
	return p, nil
}

// UpsertPlaylist inserts or fully replaces one playlist row.
func (s *Store) UpsertPlaylist(ctx context.Context, p catalog.Playlist) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO playlists
			(id, name, kind, url, credential_ref, epg_url, refresh_secs,
			 last_sync_at, last_hash, epg_last_sync_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, kind = excluded.kind, url = excluded.url,
				credential_ref = excluded.credential_ref, epg_url = excluded.epg_url,
				refresh_secs = excluded.refresh_secs`,
			p.ID, p.Name, p.Kind, p.URL, p.CredentialRef, p.EpgURL,
			int64(p.RefreshEvery/time.Second),
			nullTime(p.LastSyncAt), p.LastHash, nullTime(p.EpgLastSyncAt))
		return err
	})
}

func (s *Store) Playlist(ctx context.Context, id string) (catalog.Playlist, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+playlistCols+` FROM playlists WHERE id = ?`, id)
	return scanPlaylist(row)
}

func (s *Store) Playlists(ctx context.Context) ([]catalog.Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playlistCols+` FROM playlists ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer rows.Close()

	var out []catalog.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePlaylist removes the playlist and everything imported from it.
func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM channels WHERE playlist_id = ?`,
			`DELETE FROM vod_items WHERE playlist_id = ?`,
			`DELETE FROM playlists WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkPlaylistSynced records a successful import: its time and content hash.
func (s *Store) MarkPlaylistSynced(ctx context.Context, id string, at time.Time, hash string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE playlists SET last_sync_at = ?, last_hash = ? WHERE id = ?`,
			at.Unix(), hash, id)
		return err
	})
}

func (s *Store) MarkPlaylistEpgSynced(ctx context.Context, id string, at time.Time) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE playlists SET epg_last_sync_at = ? WHERE id = ?`, at.Unix(), id)
		return err
	})
}
