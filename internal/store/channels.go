package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/snapetech/iptv-catalog/internal/catalog"
)

const channelCols = `id, playlist_id, provider_id, tvg_id, name, group_name,
	stream_url, logo_url, channel_number, favorite, deleted, deleted_at`

func scanChannel(row interface{ Scan(...any) error }) (catalog.Channel, error) {
	var (
		ch        catalog.Channel
		provider  sql.NullString
		tvg       sql.NullString
		deletedAt sql.NullInt64
	)
	err := row.Scan(&ch.ID, &ch.PlaylistID, &provider, &tvg, &ch.Name, &ch.Group,
		&ch.StreamURL, &ch.LogoURL, &ch.ChannelNumber, &ch.Favorite, &ch.Deleted, &deletedAt)
	if err != nil {
		return catalog.Channel{}, err
	}
	ch.ProviderID = provider.String
	ch.TvgID = tvg.String
	if deletedAt.Valid {
		ch.DeletedAt = time.Unix(deletedAt.Int64, 0).UTC()
	}
	return ch, nil
}

// nullStr maps "" to NULL so the partial match-key indexes stay sparse.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

// ChannelsTx loads every channel of one playlist, deleted rows included.
// The reconciler calls this inside its import transaction.
func ChannelsTx(ctx context.Context, tx *sql.Tx, playlistID string) ([]catalog.Channel, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+channelCols+` FROM channels WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	defer rows.Close()

	var out []catalog.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func InsertChannelTx(ctx context.Context, tx *sql.Tx, ch catalog.Channel) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO channels
		(id, playlist_id, provider_id, tvg_id, name, group_name,
		 stream_url, logo_url, channel_number, favorite, deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.PlaylistID, nullStr(ch.ProviderID), nullStr(ch.TvgID),
		ch.Name, ch.Group, ch.StreamURL, ch.LogoURL, ch.ChannelNumber,
		ch.Favorite, ch.Deleted, nullTime(ch.DeletedAt))
	return err
}

// UpdateChannelTx rewrites every row field except the canonical id and the
// favorite flag; favorite is device state, not import state.
func UpdateChannelTx(ctx context.Context, tx *sql.Tx, ch catalog.Channel) error {
	_, err := tx.ExecContext(ctx, `UPDATE channels SET
		provider_id = ?, tvg_id = ?, name = ?, group_name = ?,
		stream_url = ?, logo_url = ?, channel_number = ?, deleted = ?, deleted_at = ?
		WHERE id = ?`,
		nullStr(ch.ProviderID), nullStr(ch.TvgID), ch.Name, ch.Group,
		ch.StreamURL, ch.LogoURL, ch.ChannelNumber, ch.Deleted, nullTime(ch.DeletedAt),
		ch.ID)
	return err
}

func SoftDeleteChannelsTx(ctx context.Context, tx *sql.Tx, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, now.Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	q := `UPDATE channels SET deleted = 1, deleted_at = ? WHERE id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// Channels lists a playlist's active channels ordered by number then name.
func (s *Store) Channels(ctx context.Context, playlistID string) ([]catalog.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+channelCols+` FROM channels
		WHERE playlist_id = ? AND deleted = 0
		ORDER BY channel_number, name`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []catalog.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Channel fetches one channel by canonical id; sql.ErrNoRows when absent.
func (s *Store) Channel(ctx context.Context, id string) (catalog.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelCols+` FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

func (s *Store) SetFavorite(ctx context.Context, id string, fav bool) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE channels SET favorite = ? WHERE id = ?`, fav, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// SetChannelTvgID adopts a guide id for one channel.
func (s *Store) SetChannelTvgID(ctx context.Context, id, tvgID string) error {
	return s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE channels SET tvg_id = ? WHERE id = ?`, nullStr(tvgID), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// FavoriteChannelIDs returns the canonical ids currently flagged favorite.
func (s *Store) FavoriteChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM channels WHERE favorite = 1 AND deleted = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PurgeDeletedChannels hard-removes channels soft-deleted before the cutoff,
// across all playlists. Returns the number of rows removed.
func (s *Store) PurgeDeletedChannels(ctx context.Context, olderThan time.Time) (int, error) {
	var n int64
	err := s.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM channels WHERE deleted = 1 AND deleted_at < ?`, olderThan.Unix())
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}
