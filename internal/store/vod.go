package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/snapetech/iptv-catalog/internal/catalog"
)

const vodCols = `id, playlist_id, kind, provider_id, series_id, name,
	stream_url, logo_url, genre, year, rating, season, episode`

func scanVod(row interface{ Scan(...any) error }) (catalog.VodItem, error) {
	var v catalog.VodItem
	err := row.Scan(&v.ID, &v.PlaylistID, &v.Kind, &v.ProviderID, &v.SeriesID,
		&v.Name, &v.StreamURL, &v.LogoURL, &v.Genre, &v.Year, &v.Rating,
		&v.Season, &v.Episode)
	return v, err
}

// ReplaceVod swaps the playlist's whole VOD catalog for items in one
// transaction. VOD rows carry no favorites or soft-delete state, so a full
// replace is the reconciliation. Items without an id get one minted here.
func (s *Store) ReplaceVod(ctx context.Context, playlistID string, items []catalog.VodItem) (added, removed int, err error) {
	err = s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM vod_items WHERE playlist_id = ?`, playlistID)
		if err != nil {
			return fmt.Errorf("clear vod: %w", err)
		}
		n, _ := res.RowsAffected()
		removed = int(n)

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO vod_items
			(`+vodCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, v := range items {
			if v.ID == "" {
				v.ID = uuid.NewString()
			}
			v.PlaylistID = playlistID
			if _, err := stmt.ExecContext(ctx, v.ID, v.PlaylistID, v.Kind,
				v.ProviderID, v.SeriesID, v.Name, v.StreamURL, v.LogoURL,
				v.Genre, v.Year, v.Rating, v.Season, v.Episode); err != nil {
				return fmt.Errorf("insert vod %q: %w", v.Name, err)
			}
		}
		added = len(items)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return added, removed, nil
}

// Vod lists a playlist's items of one kind; kind "" lists everything.
func (s *Store) Vod(ctx context.Context, playlistID string, kind catalog.VodKind) ([]catalog.VodItem, error) {
	q := `SELECT ` + vodCols + ` FROM vod_items WHERE playlist_id = ?`
	args := []any{playlistID}
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY name, season, episode`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list vod: %w", err)
	}
	defer rows.Close()

	var out []catalog.VodItem
	for rows.Next() {
		v, err := scanVod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SeriesEpisodes lists the episodes of one series ordered by season/episode.
func (s *Store) SeriesEpisodes(ctx context.Context, seriesID string) ([]catalog.VodItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vodCols+` FROM vod_items
		WHERE series_id = ? AND kind = ? ORDER BY season, episode`,
		seriesID, catalog.VodEpisode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.VodItem
	for rows.Next() {
		v, err := scanVod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DistinctVodGenres splits the comma-joined genre strings at read time and
// returns the sorted distinct set.
func (s *Store) DistinctVodGenres(ctx context.Context, playlistID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT genre FROM vod_items WHERE playlist_id = ? AND genre != ''`,
		playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	for rows.Next() {
		var joined string
		if err := rows.Scan(&joined); err != nil {
			return nil, err
		}
		for _, g := range strings.Split(joined, ",") {
			if g = strings.TrimSpace(g); g != "" {
				seen[g] = struct{}{}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, nil
}
