package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RemoteStore is the shared state all devices sync through.
type RemoteStore interface {
	Playlists(ctx context.Context) ([]PlaylistRecord, error)
	PutPlaylist(ctx context.Context, r PlaylistRecord) error

	Favorites(ctx context.Context) ([]FavoriteRecord, error)
	PutFavorite(ctx context.Context, r FavoriteRecord) error

	WatchStates(ctx context.Context) ([]WatchRecord, error)
	PutWatchState(ctx context.Context, r WatchRecord) error

	Preferences(ctx context.Context) (*PrefsRecord, error)
	PutPreferences(ctx context.Context, r PrefsRecord) error
}

const (
	keyPlaylists = "sync:playlists"
	keyFavorites = "sync:favorites"
	keyWatch     = "sync:watch"
	keyPrefs     = "sync:prefs"
)

// RedisStore keeps each record class in one hash keyed by record id, with
// JSON values. Preferences is a single JSON string.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func hashRecords[T any](ctx context.Context, rdb *redis.Client, key string) ([]T, error) {
	raw, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := make([]T, 0, len(raw))
	for field, val := range raw {
		var rec T
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("decode %s[%s]: %w", key, field, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func putHashRecord(ctx context.Context, rdb *redis.Client, key, field string, rec any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := rdb.HSet(ctx, key, field, raw).Err(); err != nil {
		return fmt.Errorf("write %s[%s]: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) Playlists(ctx context.Context) ([]PlaylistRecord, error) {
	return hashRecords[PlaylistRecord](ctx, s.rdb, keyPlaylists)
}

func (s *RedisStore) PutPlaylist(ctx context.Context, r PlaylistRecord) error {
	return putHashRecord(ctx, s.rdb, keyPlaylists, r.ID, r)
}

func (s *RedisStore) Favorites(ctx context.Context) ([]FavoriteRecord, error) {
	return hashRecords[FavoriteRecord](ctx, s.rdb, keyFavorites)
}

func (s *RedisStore) PutFavorite(ctx context.Context, r FavoriteRecord) error {
	return putHashRecord(ctx, s.rdb, keyFavorites, r.ChannelID, r)
}

func (s *RedisStore) WatchStates(ctx context.Context) ([]WatchRecord, error) {
	return hashRecords[WatchRecord](ctx, s.rdb, keyWatch)
}

func (s *RedisStore) PutWatchState(ctx context.Context, r WatchRecord) error {
	return putHashRecord(ctx, s.rdb, keyWatch, r.ContentID, r)
}

func (s *RedisStore) Preferences(ctx context.Context) (*PrefsRecord, error) {
	raw, err := s.rdb.Get(ctx, keyPrefs).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", keyPrefs, err)
	}
	var rec PrefsRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", keyPrefs, err)
	}
	return &rec, nil
}

func (s *RedisStore) PutPreferences(ctx context.Context, r PrefsRecord) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keyPrefs, raw, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", keyPrefs, err)
	}
	return nil
}
