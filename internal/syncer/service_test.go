package syncer

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/store"
)

type device struct {
	st  *store.Store
	svc *Service
}

func newDevice(t *testing.T, remote RemoteStore, id string) device {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	svc := New(st, remote, id)
	t.Cleanup(func() {
		svc.Close()
		st.Close()
	})
	return device{st: st, svc: svc}
}

func newRemote(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb)
}

func TestPlaylistConfigPropagates(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")
	b := newDevice(t, remote, "dev-b")

	require.NoError(t, a.st.UpsertPlaylist(ctx, catalog.Playlist{
		ID: "pl1", Name: "Provider", Kind: "m3u", URL: "http://x/list.m3u",
		RefreshEvery: 12 * time.Hour,
	}))

	push, err := a.svc.Push(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, push.PlaylistsPushed)

	pull, err := b.svc.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pull.PlaylistsApplied)

	got, err := b.st.Playlist(ctx, "pl1")
	require.NoError(t, err)
	require.Equal(t, "Provider", got.Name)
	require.Equal(t, 12*time.Hour, got.RefreshEvery)
}

func TestPlaylistTombstoneWins(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")
	b := newDevice(t, remote, "dev-b")

	pl := catalog.Playlist{ID: "pl1", Name: "P", Kind: "m3u", URL: "u"}
	require.NoError(t, a.st.UpsertPlaylist(ctx, pl))
	require.NoError(t, b.st.UpsertPlaylist(ctx, pl))

	require.NoError(t, a.svc.DeletePlaylist(ctx, "pl1"))

	pull, err := b.svc.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pull.PlaylistsRemoved)

	_, err = b.st.Playlist(ctx, "pl1")
	require.ErrorIs(t, err, sql.ErrNoRows)

	// The deleting device pushing afterwards must not resurrect it.
	push, err := a.svc.Push(ctx)
	require.NoError(t, err)
	require.Zero(t, push.PlaylistsPushed)
}

func TestWatchStateLastWriterWins(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")
	b := newDevice(t, remote, "dev-b")

	// Device A recorded progress at t=100, device B at t=200.
	require.NoError(t, a.st.UpsertWatchState(ctx, catalog.WatchState{
		ContentID: "movie-1", PositionSecs: 300, UpdatedAt: time.Unix(100, 0),
	}))
	require.NoError(t, b.st.UpsertWatchState(ctx, catalog.WatchState{
		ContentID: "movie-1", PositionSecs: 900, UpdatedAt: time.Unix(200, 0),
	}))

	_, err := a.svc.Push(ctx)
	require.NoError(t, err)
	_, err = b.svc.Push(ctx)
	require.NoError(t, err)

	// B's record is newer, so both devices converge on position 900.
	pull, err := a.svc.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pull.WatchApplied)

	ws, err := a.st.WatchState(ctx, "movie-1")
	require.NoError(t, err)
	require.Equal(t, 900, ws.PositionSecs)

	// B pulls too; the remote record equals its local one, ties keep local.
	pull, err = b.svc.Pull(ctx)
	require.NoError(t, err)
	require.Zero(t, pull.WatchApplied)
}

func TestOlderPushDoesNotClobberNewerRemote(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")

	require.NoError(t, remote.PutWatchState(ctx, WatchRecord{
		ContentID: "movie-1", PositionSecs: 900, UpdatedAt: 200, DeviceID: "dev-b",
	}))
	require.NoError(t, a.st.UpsertWatchState(ctx, catalog.WatchState{
		ContentID: "movie-1", PositionSecs: 300, UpdatedAt: time.Unix(100, 0),
	}))

	push, err := a.svc.Push(ctx)
	require.NoError(t, err)
	require.Zero(t, push.WatchPushed)

	recs, err := remote.WatchStates(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 900, recs[0].PositionSecs)
}

func TestFavoriteSyncAndUnfavorite(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")
	b := newDevice(t, remote, "dev-b")

	ch := catalog.Channel{ID: "c1", PlaylistID: "pl1", Name: "One", StreamURL: "u"}
	for _, d := range []device{a, b} {
		require.NoError(t, d.st.Write(ctx, func(tx *sql.Tx) error {
			return store.InsertChannelTx(ctx, tx, ch)
		}))
	}

	require.NoError(t, a.svc.SetFavorite(ctx, "c1", true))

	pull, err := b.svc.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pull.FavoritesApplied)
	ids, _ := b.st.FavoriteChannelIDs(ctx)
	require.Equal(t, []string{"c1"}, ids)

	// Unfavorite on B propagates back to A.
	require.NoError(t, b.svc.SetFavorite(ctx, "c1", false))
	pull, err = a.svc.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pull.FavoritesApplied)
	ids, _ = a.st.FavoriteChannelIDs(ctx)
	require.Empty(t, ids)
}

func TestFavoriteForUnknownChannelSkipped(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")

	require.NoError(t, remote.PutFavorite(ctx, FavoriteRecord{
		ChannelID: "not-here", Favorite: true, UpdatedAt: 100, DeviceID: "dev-b",
	}))

	pull, err := a.svc.Pull(ctx)
	require.NoError(t, err)
	require.Zero(t, pull.FavoritesApplied)
}

func TestPreferencesRemoteReplacesWholesale(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")
	b := newDevice(t, remote, "dev-b")

	require.NoError(t, a.st.SetPreferences(ctx, catalog.Preferences{
		DeviceName: "living-room", PreferredQuality: "1080p", UpdatedAt: 100,
	}))
	_, err := a.svc.Push(ctx)
	require.NoError(t, err)

	pull, err := b.svc.Pull(ctx)
	require.NoError(t, err)
	require.True(t, pull.PrefsApplied)

	// B sets older prefs locally; pull must not regress, push must not clobber.
	require.NoError(t, b.st.SetPreferences(ctx, catalog.Preferences{
		DeviceName: "bedroom", UpdatedAt: 50,
	}))
	push, err := b.svc.Push(ctx)
	require.NoError(t, err)
	require.False(t, push.PrefsPushed)

	pull, err = b.svc.Pull(ctx)
	require.NoError(t, err)
	require.True(t, pull.PrefsApplied)
	prefs, _ := b.st.Preferences(ctx)
	require.Equal(t, "living-room", prefs.DeviceName)

	// Pull replaces wholesale: even a locally-newer row yields to the
	// remote one, as long as it was never pushed.
	require.NoError(t, b.st.SetPreferences(ctx, catalog.Preferences{
		DeviceName: "den", UpdatedAt: 999,
	}))
	pull, err = b.svc.Pull(ctx)
	require.NoError(t, err)
	require.True(t, pull.PrefsApplied)
	prefs, _ = b.st.Preferences(ctx)
	require.Equal(t, "living-room", prefs.DeviceName)
}

func TestPullIdempotent(t *testing.T) {
	remote := newRemote(t)
	ctx := context.Background()
	a := newDevice(t, remote, "dev-a")
	b := newDevice(t, remote, "dev-b")

	require.NoError(t, a.st.UpsertPlaylist(ctx, catalog.Playlist{ID: "pl1", Name: "P", Kind: "m3u", URL: "u"}))
	require.NoError(t, a.st.UpsertWatchState(ctx, catalog.WatchState{ContentID: "m1", PositionSecs: 10, UpdatedAt: time.Unix(100, 0)}))
	_, err := a.svc.Push(ctx)
	require.NoError(t, err)

	_, err = b.svc.Pull(ctx)
	require.NoError(t, err)

	second, err := b.svc.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, PullStats{}, second)
}
