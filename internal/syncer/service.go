package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/logging"
	"github.com/snapetech/iptv-catalog/internal/store"
)

// PullStats counts what one pull changed locally.
type PullStats struct {
	PlaylistsApplied int
	PlaylistsRemoved int
	FavoritesApplied int
	WatchApplied     int
	PrefsApplied     bool
}

// PushStats counts what one push wrote remotely.
type PushStats struct {
	PlaylistsPushed int
	FavoritesPushed int
	WatchPushed     int
	PrefsPushed     bool
}

// Service owns all sync traffic for one device. Every operation funnels
// through a single goroutine, so pulls, pushes, and write-throughs never
// interleave.
type Service struct {
	store    *store.Store
	remote   RemoteStore
	deviceID string
	log      zerolog.Logger

	cmds chan func()
	quit chan struct{}
	done chan struct{}
}

func New(st *store.Store, remote RemoteStore, deviceID string) *Service {
	s := &Service{
		store:    st,
		remote:   remote,
		deviceID: deviceID,
		log:      logging.For("syncer"),
		cmds:     make(chan func()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Service) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			return
		}
	}
}

// Close stops the service goroutine. In-flight operations finish first.
func (s *Service) Close() {
	close(s.quit)
	<-s.done
}

// do runs fn on the service goroutine and waits for it.
func (s *Service) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	wrapped := func() { errc <- fn() }
	select {
	case s.cmds <- wrapped:
	case <-s.quit:
		return errors.New("syncer: closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pull fetches all four record classes concurrently, then applies them to
// the local catalog. Remote playlist configs and tombstones win outright;
// watch progress is last-writer-wins with ties keeping the local value;
// preferences replace wholesale when remotely newer. A record that cannot
// be applied is logged and skipped, never failing the pull.
func (s *Service) Pull(ctx context.Context) (PullStats, error) {
	var stats PullStats
	err := s.do(ctx, func() error {
		var err error
		stats, err = s.pull(ctx)
		return err
	})
	return stats, err
}

func (s *Service) pull(ctx context.Context) (PullStats, error) {
	var (
		playlists []PlaylistRecord
		favorites []FavoriteRecord
		watch     []WatchRecord
		prefs     *PrefsRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { playlists, err = s.remote.Playlists(gctx); return })
	g.Go(func() (err error) { favorites, err = s.remote.Favorites(gctx); return })
	g.Go(func() (err error) { watch, err = s.remote.WatchStates(gctx); return })
	g.Go(func() (err error) { prefs, err = s.remote.Preferences(gctx); return })
	if err := g.Wait(); err != nil {
		return PullStats{}, fmt.Errorf("fetch remote state: %w", err)
	}

	var stats PullStats

	local, err := s.store.Playlists(ctx)
	if err != nil {
		return stats, err
	}
	byID := make(map[string]catalog.Playlist, len(local))
	for _, p := range local {
		byID[p.ID] = p
	}
	for _, r := range playlists {
		if r.Deleted {
			if _, ok := byID[r.ID]; !ok {
				continue
			}
			if err := s.store.DeletePlaylist(ctx, r.ID); err != nil {
				s.log.Warn().Err(err).Str("playlist", r.ID).Msg("tombstone apply failed")
				continue
			}
			stats.PlaylistsRemoved++
			continue
		}
		want := r.playlist()
		if have, ok := byID[r.ID]; ok && samePlaylistConfig(have, want) {
			continue
		}
		if err := s.store.UpsertPlaylist(ctx, want); err != nil {
			s.log.Warn().Err(err).Str("playlist", r.ID).Msg("playlist apply failed")
			continue
		}
		stats.PlaylistsApplied++
	}

	favIDs, err := s.store.FavoriteChannelIDs(ctx)
	if err != nil {
		return stats, err
	}
	isFav := make(map[string]bool, len(favIDs))
	for _, id := range favIDs {
		isFav[id] = true
	}
	for _, r := range favorites {
		if isFav[r.ChannelID] == r.Favorite {
			continue
		}
		err := s.store.SetFavorite(ctx, r.ChannelID, r.Favorite)
		if errors.Is(err, sql.ErrNoRows) {
			// Channel not imported on this device yet.
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("channel", r.ChannelID).Msg("favorite apply failed")
			continue
		}
		stats.FavoritesApplied++
	}

	for _, r := range watch {
		have, err := s.store.WatchState(ctx, r.ContentID)
		if err != nil {
			s.log.Warn().Err(err).Str("content", r.ContentID).Msg("watch state read failed")
			continue
		}
		if have != nil && r.UpdatedAt <= have.UpdatedAt.Unix() {
			continue
		}
		if err := s.store.UpsertWatchState(ctx, r.watchState()); err != nil {
			s.log.Warn().Err(err).Str("content", r.ContentID).Msg("watch state apply failed")
			continue
		}
		stats.WatchApplied++
	}

	// The remote preferences row replaces local wholesale whenever it
	// exists; only the push direction compares timestamps.
	if prefs != nil {
		if err := s.store.SetPreferences(ctx, prefs.Preferences); err != nil {
			return stats, err
		}
		stats.PrefsApplied = true
	}

	s.log.Info().
		Int("playlists", stats.PlaylistsApplied).
		Int("removed", stats.PlaylistsRemoved).
		Int("favorites", stats.FavoritesApplied).
		Int("watch", stats.WatchApplied).
		Bool("prefs", stats.PrefsApplied).
		Msg("pull complete")
	return stats, nil
}

func samePlaylistConfig(a, b catalog.Playlist) bool {
	return a.Name == b.Name && a.Kind == b.Kind && a.URL == b.URL &&
		a.CredentialRef == b.CredentialRef && a.EpgURL == b.EpgURL &&
		a.RefreshEvery == b.RefreshEvery
}

// Push writes local state to the remote store: playlist configs that differ
// (never over a tombstone), favorites this device holds that the remote does
// not, watch states where local is strictly newer, and preferences when
// locally newer.
func (s *Service) Push(ctx context.Context) (PushStats, error) {
	var stats PushStats
	err := s.do(ctx, func() error {
		var err error
		stats, err = s.push(ctx)
		return err
	})
	return stats, err
}

func (s *Service) push(ctx context.Context) (PushStats, error) {
	now := time.Now()
	var stats PushStats

	remotePls, err := s.remote.Playlists(ctx)
	if err != nil {
		return stats, err
	}
	remoteByID := make(map[string]PlaylistRecord, len(remotePls))
	for _, r := range remotePls {
		remoteByID[r.ID] = r
	}
	local, err := s.store.Playlists(ctx)
	if err != nil {
		return stats, err
	}
	for _, p := range local {
		if r, ok := remoteByID[p.ID]; ok {
			if r.Deleted || samePlaylistConfig(r.playlist(), p) {
				continue
			}
		}
		if err := s.remote.PutPlaylist(ctx, playlistRecord(p, s.deviceID, now)); err != nil {
			s.log.Warn().Err(err).Str("playlist", p.ID).Msg("playlist push failed")
			continue
		}
		stats.PlaylistsPushed++
	}

	remoteFavs, err := s.remote.Favorites(ctx)
	if err != nil {
		return stats, err
	}
	remoteFav := make(map[string]bool, len(remoteFavs))
	for _, r := range remoteFavs {
		remoteFav[r.ChannelID] = r.Favorite
	}
	favIDs, err := s.store.FavoriteChannelIDs(ctx)
	if err != nil {
		return stats, err
	}
	for _, id := range favIDs {
		if remoteFav[id] {
			continue
		}
		rec := FavoriteRecord{ChannelID: id, Favorite: true, UpdatedAt: now.Unix(), DeviceID: s.deviceID}
		if err := s.remote.PutFavorite(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("channel", id).Msg("favorite push failed")
			continue
		}
		stats.FavoritesPushed++
	}

	remoteWatch, err := s.remote.WatchStates(ctx)
	if err != nil {
		return stats, err
	}
	remoteAt := make(map[string]int64, len(remoteWatch))
	for _, r := range remoteWatch {
		remoteAt[r.ContentID] = r.UpdatedAt
	}
	states, err := s.store.WatchStates(ctx)
	if err != nil {
		return stats, err
	}
	for _, ws := range states {
		if at, ok := remoteAt[ws.ContentID]; ok && ws.UpdatedAt.Unix() <= at {
			continue
		}
		rec := WatchRecord{
			ContentID:    ws.ContentID,
			PositionSecs: ws.PositionSecs,
			DurationSecs: ws.DurationSecs,
			UpdatedAt:    ws.UpdatedAt.Unix(),
			DeviceID:     s.deviceID,
		}
		if err := s.remote.PutWatchState(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("content", ws.ContentID).Msg("watch push failed")
			continue
		}
		stats.WatchPushed++
	}

	prefs, err := s.store.Preferences(ctx)
	if err != nil {
		return stats, err
	}
	if prefs != nil {
		remotePrefs, err := s.remote.Preferences(ctx)
		if err != nil {
			return stats, err
		}
		if remotePrefs == nil || prefs.UpdatedAt > remotePrefs.UpdatedAt {
			if err := s.remote.PutPreferences(ctx, PrefsRecord{Preferences: *prefs, DeviceID: s.deviceID}); err != nil {
				return stats, err
			}
			stats.PrefsPushed = true
		}
	}

	s.log.Info().
		Int("playlists", stats.PlaylistsPushed).
		Int("favorites", stats.FavoritesPushed).
		Int("watch", stats.WatchPushed).
		Bool("prefs", stats.PrefsPushed).
		Msg("push complete")
	return stats, nil
}

// SetFavorite flips a channel's flag locally and writes the record through
// to the remote in the same serialized operation, so an unfavorite never
// gets resurrected by the next pull.
func (s *Service) SetFavorite(ctx context.Context, channelID string, fav bool) error {
	return s.do(ctx, func() error {
		if err := s.store.SetFavorite(ctx, channelID, fav); err != nil {
			return err
		}
		rec := FavoriteRecord{
			ChannelID: channelID,
			Favorite:  fav,
			UpdatedAt: time.Now().Unix(),
			DeviceID:  s.deviceID,
		}
		if err := s.remote.PutFavorite(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("channel", channelID).Msg("favorite write-through failed")
		}
		return nil
	})
}

// DeletePlaylist removes the playlist locally and leaves a tombstone in the
// remote store so other devices drop it too.
func (s *Service) DeletePlaylist(ctx context.Context, id string) error {
	return s.do(ctx, func() error {
		if err := s.store.DeletePlaylist(ctx, id); err != nil {
			return err
		}
		rec := PlaylistRecord{
			ID:        id,
			Deleted:   true,
			UpdatedAt: time.Now().Unix(),
			DeviceID:  s.deviceID,
		}
		return s.remote.PutPlaylist(ctx, rec)
	})
}
