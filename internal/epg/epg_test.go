package epg

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/store"
)

const sampleGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="one.uk">
    <display-name>One</display-name>
  </channel>
  <programme channel="one.uk" start="20240301120000 +0000" stop="20240301130000 +0000">
    <title>Lunch News</title>
  </programme>
  <programme channel="one.uk" start="20240301130000 +0000" stop="20240301140000 +0000">
    <title>Afternoon Film</title>
  </programme>
  <programme channel="one.uk" start="20240301140000 +0000">
    <desc>no title, no stop</desc>
  </programme>
</tv>`

func newTest(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestImportPlainGuide(t *testing.T) {
	st := newTest(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleGuide))
	}))
	defer srv.Close()

	require.NoError(t, st.UpsertPlaylist(context.Background(), catalog.Playlist{
		ID: "pl1", Name: "P", Kind: "m3u", URL: "u", EpgURL: srv.URL + "/guide.xml",
	}))

	svc := New(st)
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	stats, err := svc.Import(context.Background(), catalog.Playlist{ID: "pl1", EpgURL: srv.URL + "/guide.xml"}, now)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ChannelsSeen)
	require.Equal(t, 2, stats.ProgramsImported)
	require.Equal(t, 1, stats.ParseErrorCount)

	entries, err := st.EPGEntries(context.Background(), "one.uk", 0, now.Add(24*time.Hour).Unix())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Lunch News", entries[0].Title)

	p, err := st.Playlist(context.Background(), "pl1")
	require.NoError(t, err)
	require.Equal(t, now, p.EpgLastSyncAt)
}

func TestImportGzipGuideBySniff(t *testing.T) {
	st := newTest(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Mislabeled: gzip bytes, no Content-Encoding, no .gz suffix.
		w.Header().Set("Content-Type", "application/octet-stream")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(sampleGuide))
		gz.Close()
	}))
	defer srv.Close()

	svc := New(st)
	stats, err := svc.Import(context.Background(), catalog.Playlist{ID: "pl1", EpgURL: srv.URL + "/guide"},
		time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, stats.ProgramsImported)
}

func TestImportPurgesOutsideRetention(t *testing.T) {
	st := newTest(t)
	ctx := context.Background()

	// An entry that ended long before the retention window.
	_, err := st.UpsertEPGEntries(ctx, []catalog.EPGEntry{
		{ChannelID: "one.uk", Start: 1000, End: 2000, Title: "ancient"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleGuide))
	}))
	defer srv.Close()

	svc := New(st)
	stats, err := svc.Import(ctx, catalog.Playlist{ID: "pl1", EpgURL: srv.URL},
		time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, stats.ProgramsPurged)
}

func TestRetentionOverrideFromPreferences(t *testing.T) {
	st := newTest(t)
	ctx := context.Background()

	require.NoError(t, st.SetPreferences(ctx, catalog.Preferences{EpgRetentionDays: 1}))

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	_, err := st.UpsertEPGEntries(ctx, []catalog.EPGEntry{
		// Two days old: inside the 7-day default, outside the 1-day override.
		{ChannelID: "one.uk", Start: now.Add(-49 * time.Hour).Unix(), End: now.Add(-48 * time.Hour).Unix(), Title: "stale"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleGuide))
	}))
	defer srv.Close()

	svc := New(st)
	stats, err := svc.Import(ctx, catalog.Playlist{ID: "pl1", EpgURL: srv.URL}, now)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ProgramsPurged)
}

func TestImportRetriesTransientFailure(t *testing.T) {
	st := newTest(t)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(sampleGuide))
	}))
	defer srv.Close()

	svc := New(st)
	stats, err := svc.Import(context.Background(), catalog.Playlist{ID: "pl1", EpgURL: srv.URL},
		time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, stats.ProgramsImported)
}

func TestImportNoGuideURL(t *testing.T) {
	svc := New(newTest(t))
	_, err := svc.Import(context.Background(), catalog.Playlist{ID: "pl1"}, time.Now())
	require.ErrorIs(t, err, ErrNoGuideURL)
}
