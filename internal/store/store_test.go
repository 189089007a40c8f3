package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapetech/iptv-catalog/internal/catalog"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlaylistRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	p := catalog.Playlist{
		ID:           "pl1",
		Name:         "Provider A",
		Kind:         catalog.PlaylistKindXtream,
		URL:          "http://panel.example.com",
		RefreshEvery: 6 * time.Hour,
	}
	require.NoError(t, s.UpsertPlaylist(ctx, p))

	got, err := s.Playlist(ctx, "pl1")
	require.NoError(t, err)
	require.Equal(t, "Provider A", got.Name)
	require.Equal(t, 6*time.Hour, got.RefreshEvery)
	require.True(t, got.LastSyncAt.IsZero())

	at := time.Unix(1700000000, 0).UTC()
	require.NoError(t, s.MarkPlaylistSynced(ctx, "pl1", at, "abcd"))

	got, err = s.Playlist(ctx, "pl1")
	require.NoError(t, err)
	require.Equal(t, at, got.LastSyncAt)
	require.Equal(t, "abcd", got.LastHash)

	// Upserting the config again must not clobber sync bookkeeping.
	p.Name = "Provider A (renamed)"
	require.NoError(t, s.UpsertPlaylist(ctx, p))
	got, err = s.Playlist(ctx, "pl1")
	require.NoError(t, err)
	require.Equal(t, "Provider A (renamed)", got.Name)
	require.Equal(t, "abcd", got.LastHash)
}

func TestChannelsOrderingAndFavorite(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	chans := []catalog.Channel{
		{ID: "c2", PlaylistID: "pl1", Name: "Beta", ChannelNumber: 2, StreamURL: "u2"},
		{ID: "c1", PlaylistID: "pl1", Name: "Alpha", ChannelNumber: 1, StreamURL: "u1", ProviderID: "101"},
		{ID: "c3", PlaylistID: "pl1", Name: "Gone", StreamURL: "u3", Deleted: true, DeletedAt: time.Unix(1000, 0)},
	}
	require.NoError(t, s.Write(ctx, func(tx *sql.Tx) error {
		for _, ch := range chans {
			if err := InsertChannelTx(ctx, tx, ch); err != nil {
				return err
			}
		}
		return nil
	}))

	active, err := s.Channels(ctx, "pl1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "Alpha", active[0].Name)

	require.NoError(t, s.SetFavorite(ctx, "c1", true))
	ids, err := s.FavoriteChannelIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, ids)

	require.ErrorIs(t, s.SetFavorite(ctx, "nope", true), sql.ErrNoRows)
}

func TestChannelTxLoadIncludesDeleted(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, func(tx *sql.Tx) error {
		if err := InsertChannelTx(ctx, tx, catalog.Channel{ID: "a", PlaylistID: "pl1", Name: "A", StreamURL: "u"}); err != nil {
			return err
		}
		return InsertChannelTx(ctx, tx, catalog.Channel{
			ID: "b", PlaylistID: "pl1", Name: "B", StreamURL: "u",
			Deleted: true, DeletedAt: time.Unix(5000, 0),
		})
	}))

	var all []catalog.Channel
	require.NoError(t, s.Write(ctx, func(tx *sql.Tx) error {
		var err error
		all, err = ChannelsTx(ctx, tx, "pl1")
		return err
	}))
	require.Len(t, all, 2)
}

func TestPurgeDeletedChannels(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Unix(2000000000, 0).UTC()

	require.NoError(t, s.Write(ctx, func(tx *sql.Tx) error {
		old := catalog.Channel{ID: "old", PlaylistID: "pl1", Name: "Old", StreamURL: "u",
			Deleted: true, DeletedAt: now.Add(-31 * 24 * time.Hour)}
		fresh := catalog.Channel{ID: "fresh", PlaylistID: "pl1", Name: "Fresh", StreamURL: "u",
			Deleted: true, DeletedAt: now.Add(-24 * time.Hour)}
		live := catalog.Channel{ID: "live", PlaylistID: "pl1", Name: "Live", StreamURL: "u"}
		for _, ch := range []catalog.Channel{old, fresh, live} {
			if err := InsertChannelTx(ctx, tx, ch); err != nil {
				return err
			}
		}
		return nil
	}))

	n, err := s.PurgeDeletedChannels(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.Channel(ctx, "old")
	require.ErrorIs(t, err, sql.ErrNoRows)
	_, err = s.Channel(ctx, "fresh")
	require.NoError(t, err)
}

func TestReplaceVodAndGenres(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	added, removed, err := s.ReplaceVod(ctx, "pl1", []catalog.VodItem{
		{Kind: catalog.VodMovie, Name: "Heat", Genre: "Crime, Thriller", Year: 1995},
		{Kind: catalog.VodMovie, Name: "Ronin", Genre: "Thriller,Action", Year: 1998},
	})
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 0, removed)

	// Wholesale replace: the second import fully supersedes the first.
	added, removed, err = s.ReplaceVod(ctx, "pl1", []catalog.VodItem{
		{Kind: catalog.VodMovie, Name: "Heat", Genre: "Crime", Year: 1995},
	})
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, 2, removed)

	items, err := s.Vod(ctx, "pl1", catalog.VodMovie)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotEmpty(t, items[0].ID)

	genres, err := s.DistinctVodGenres(ctx, "pl1")
	require.NoError(t, err)
	require.Equal(t, []string{"Crime"}, genres)
}

func TestDistinctVodGenresSplitsJoined(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, _, err := s.ReplaceVod(ctx, "pl1", []catalog.VodItem{
		{Kind: catalog.VodMovie, Name: "A", Genre: "Crime, Thriller"},
		{Kind: catalog.VodMovie, Name: "B", Genre: "Action,Crime"},
		{Kind: catalog.VodMovie, Name: "C", Genre: ""},
	})
	require.NoError(t, err)

	genres, err := s.DistinctVodGenres(ctx, "pl1")
	require.NoError(t, err)
	require.Equal(t, []string{"Action", "Crime", "Thriller"}, genres)
}

func TestSeriesEpisodesOrdered(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, _, err := s.ReplaceVod(ctx, "pl1", []catalog.VodItem{
		{Kind: catalog.VodSeries, ProviderID: "s1", Name: "Show"},
		{Kind: catalog.VodEpisode, SeriesID: "s1", Name: "S02E01", Season: 2, Episode: 1},
		{Kind: catalog.VodEpisode, SeriesID: "s1", Name: "S01E02", Season: 1, Episode: 2},
		{Kind: catalog.VodEpisode, SeriesID: "s1", Name: "S01E01", Season: 1, Episode: 1},
	})
	require.NoError(t, err)

	eps, err := s.SeriesEpisodes(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, eps, 3)
	require.Equal(t, "S01E01", eps[0].Name)
	require.Equal(t, "S02E01", eps[2].Name)
}

func TestEPGUpsertReplacesSlot(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	n, err := s.UpsertEPGEntries(ctx, []catalog.EPGEntry{
		{ChannelID: "bbc.uk", Start: 1000, End: 2000, Title: "Early Cut"},
		{ChannelID: "bbc.uk", Start: 2000, End: 3000, Title: "Next"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Same (channel, start) slot: the re-import wins.
	_, err = s.UpsertEPGEntries(ctx, []catalog.EPGEntry{
		{ChannelID: "bbc.uk", Start: 1000, End: 2000, Title: "Final Cut"},
	})
	require.NoError(t, err)

	entries, err := s.EPGEntries(ctx, "bbc.uk", 0, 5000)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Final Cut", entries[0].Title)
}

func TestPurgeEPGBefore(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.UpsertEPGEntries(ctx, []catalog.EPGEntry{
		{ChannelID: "a", Start: 100, End: 200, Title: "old"},
		{ChannelID: "a", Start: 900, End: 1100, Title: "spanning"},
		{ChannelID: "a", Start: 2000, End: 3000, Title: "future"},
	})
	require.NoError(t, err)

	n, err := s.PurgeEPGBefore(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	entries, err := s.EPGEntries(ctx, "a", 0, 10000)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "spanning", entries[0].Title)
}

func TestWatchStateAndPreferences(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	ws, err := s.WatchState(ctx, "movie-1")
	require.NoError(t, err)
	require.Nil(t, ws)

	want := catalog.WatchState{
		ContentID: "movie-1", PositionSecs: 120, DurationSecs: 5400,
		UpdatedAt: time.Unix(1700000100, 0).UTC(),
	}
	require.NoError(t, s.UpsertWatchState(ctx, want))

	ws, err = s.WatchState(ctx, "movie-1")
	require.NoError(t, err)
	require.Equal(t, want, *ws)

	prefs, err := s.Preferences(ctx)
	require.NoError(t, err)
	require.Nil(t, prefs)

	wantP := catalog.Preferences{DeviceName: "living-room", PreferredQuality: "1080p", UpdatedAt: 100}
	require.NoError(t, s.SetPreferences(ctx, wantP))
	prefs, err = s.Preferences(ctx)
	require.NoError(t, err)
	require.Equal(t, wantP, *prefs)
}

func TestDeletePlaylistCascades(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPlaylist(ctx, catalog.Playlist{ID: "pl1", Name: "P", Kind: "m3u", URL: "u"}))
	require.NoError(t, s.Write(ctx, func(tx *sql.Tx) error {
		return InsertChannelTx(ctx, tx, catalog.Channel{ID: "c1", PlaylistID: "pl1", Name: "A", StreamURL: "u"})
	}))
	_, _, err := s.ReplaceVod(ctx, "pl1", []catalog.VodItem{{Kind: catalog.VodMovie, Name: "M"}})
	require.NoError(t, err)

	require.NoError(t, s.DeletePlaylist(ctx, "pl1"))

	_, err = s.Playlist(ctx, "pl1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	chans, err := s.Channels(ctx, "pl1")
	require.NoError(t, err)
	require.Empty(t, chans)
	items, err := s.Vod(ctx, "pl1", "")
	require.NoError(t, err)
	require.Empty(t, items)
}
