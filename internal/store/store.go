// Package store persists the catalog in SQLite.
//
// Writes are serialized: every mutation runs inside Write, which holds the
// store's write lock for the duration of one transaction. Readers go
// straight to the pool and observe either the pre- or post-state of a
// transaction, never a partial one.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/snapetech/iptv-catalog/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS playlists (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	kind             TEXT NOT NULL DEFAULT 'm3u',
	url              TEXT NOT NULL,
	credential_ref   TEXT NOT NULL DEFAULT '',
	epg_url          TEXT NOT NULL DEFAULT '',
	refresh_secs     INTEGER NOT NULL DEFAULT 43200,
	last_sync_at     INTEGER,
	last_hash        TEXT NOT NULL DEFAULT '',
	epg_last_sync_at INTEGER
);

CREATE TABLE IF NOT EXISTS channels (
	id             TEXT PRIMARY KEY,
	playlist_id    TEXT NOT NULL,
	provider_id    TEXT,
	tvg_id         TEXT,
	name           TEXT NOT NULL,
	group_name     TEXT NOT NULL DEFAULT '',
	stream_url     TEXT NOT NULL,
	logo_url       TEXT NOT NULL DEFAULT '',
	channel_number INTEGER NOT NULL DEFAULT 0,
	favorite       INTEGER NOT NULL DEFAULT 0,
	deleted        INTEGER NOT NULL DEFAULT 0,
	deleted_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_channels_provider ON channels(playlist_id, provider_id);
CREATE INDEX IF NOT EXISTS idx_channels_tvg      ON channels(playlist_id, tvg_id);
CREATE INDEX IF NOT EXISTS idx_channels_name     ON channels(playlist_id, name, group_name);

CREATE TABLE IF NOT EXISTS vod_items (
	id          TEXT PRIMARY KEY,
	playlist_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	provider_id TEXT NOT NULL DEFAULT '',
	series_id   TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	stream_url  TEXT NOT NULL DEFAULT '',
	logo_url    TEXT NOT NULL DEFAULT '',
	genre       TEXT NOT NULL DEFAULT '',
	year        INTEGER NOT NULL DEFAULT 0,
	rating      REAL NOT NULL DEFAULT 0,
	season      INTEGER NOT NULL DEFAULT 0,
	episode     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_vod_playlist ON vod_items(playlist_id, kind);
CREATE INDEX IF NOT EXISTS idx_vod_series   ON vod_items(series_id);

CREATE TABLE IF NOT EXISTS watch_state (
	content_id    TEXT PRIMARY KEY,
	position_secs INTEGER NOT NULL DEFAULT 0,
	duration_secs INTEGER NOT NULL DEFAULT 0,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS epg_entries (
	channel_id  TEXT NOT NULL,
	start       INTEGER NOT NULL,
	end         INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	icon_url    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (channel_id, start)
);
CREATE INDEX IF NOT EXISTS idx_epg_end ON epg_entries(end);

CREATE TABLE IF NOT EXISTS preferences (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT NOT NULL
);
`

// Store is the SQLite-backed catalog.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
	log     zerolog.Logger
}

// Open opens (creating if needed) the catalog database at path and applies
// the schema. The DDL is idempotent; there is no migration machinery here.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &Store{db: db, log: logging.For("store")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for read-only queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Write runs fn inside the single write transaction. Only one Write is in
// flight at a time; fn returning an error rolls everything back.
func (s *Store) Write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write: %w", err)
	}
	return nil
}
