package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/store"
)

func newTest(t *testing.T) (*Reconciler, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

var now = time.Unix(1700000000, 0).UTC()

func TestReconcileFreshImport(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "One", Group: "News", StreamURL: "http://x/101"},
		{TvgID: "two.uk", Name: "Two", StreamURL: "http://x/102"},
		{Name: "Three", Group: "Sports", StreamURL: "http://x/103"},
	}, now)
	require.NoError(t, err)
	require.Equal(t, Result{Added: 3}, res)

	chans, err := st.Channels(ctx, "pl1")
	require.NoError(t, err)
	require.Len(t, chans, 3)
	for _, ch := range chans {
		require.NotEmpty(t, ch.ID)
		require.Equal(t, "pl1", ch.PlaylistID)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	r, _ := newTest(t)
	ctx := context.Background()

	batch := []catalog.Channel{
		{ProviderID: "101", Name: "One", StreamURL: "http://x/101"},
		{Name: "Two", Group: "News", StreamURL: "http://x/102"},
	}
	_, err := r.Reconcile(ctx, "pl1", batch, now)
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, "pl1", batch, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, Result{Unchanged: 2}, res)
}

func TestReconcileMixedBatch(t *testing.T) {
	r, _ := newTest(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "1", Name: "C1", StreamURL: "u1"},
		{ProviderID: "2", Name: "C2", StreamURL: "u2"},
		{ProviderID: "3", Name: "C3", StreamURL: "u3"},
	}, now)
	require.NoError(t, err)

	// C1 untouched, C2 renamed, C3 missing, C4 new.
	res, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "1", Name: "C1", StreamURL: "u1"},
		{ProviderID: "2", Name: "C2 HD", StreamURL: "u2"},
		{ProviderID: "4", Name: "C4", StreamURL: "u4"},
	}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, Result{Added: 1, Updated: 1, SoftDeleted: 1, Unchanged: 1}, res)
}

func TestIdentitySurvivesRenameByProviderID(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "Old Name", Group: "A", StreamURL: "u"},
	}, now)
	require.NoError(t, err)

	before, err := st.Channels(ctx, "pl1")
	require.NoError(t, err)
	require.NoError(t, st.SetFavorite(ctx, before[0].ID, true))

	res, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "New Name", Group: "B", StreamURL: "u2"},
	}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, Result{Updated: 1}, res)

	after, err := st.Channels(ctx, "pl1")
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, before[0].ID, after[0].ID)
	require.Equal(t, "New Name", after[0].Name)
	require.True(t, after[0].Favorite, "favorite flag must survive the rename")
}

func TestTvgTierMatchWhenProviderIDAbsent(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{TvgID: "bbc.uk", Name: "BBC One", StreamURL: "u"},
	}, now)
	require.NoError(t, err)
	before, _ := st.Channels(ctx, "pl1")

	res, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{TvgID: "bbc.uk", Name: "BBC One FHD", StreamURL: "u2"},
	}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, Result{Updated: 1}, res)

	after, _ := st.Channels(ctx, "pl1")
	require.Equal(t, before[0].ID, after[0].ID)
}

func TestNameGroupTierIsLastResort(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{Name: "Local TV", Group: "Regional", StreamURL: "u"},
	}, now)
	require.NoError(t, err)
	before, _ := st.Channels(ctx, "pl1")

	// Same name+group but now carrying a provider id: adopt it, keep identity.
	res, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "55", Name: "Local TV", Group: "Regional", StreamURL: "u"},
	}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, Result{Updated: 1}, res)

	after, _ := st.Channels(ctx, "pl1")
	require.Equal(t, before[0].ID, after[0].ID)
	require.Equal(t, "55", after[0].ProviderID)
}

func TestSoftDeletedChannelRevives(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "One", StreamURL: "u"},
	}, now)
	require.NoError(t, err)

	// Disappears, then comes back.
	_, err = r.Reconcile(ctx, "pl1", nil, now.Add(time.Hour))
	require.NoError(t, err)
	chans, _ := st.Channels(ctx, "pl1")
	require.Empty(t, chans)

	res, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "One", StreamURL: "u"},
	}, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, Result{Updated: 1}, res)

	chans, _ = st.Channels(ctx, "pl1")
	require.Len(t, chans, 1)
	require.False(t, chans[0].Deleted)
}

func TestDuplicateProviderIDLastEntryWins(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "First", StreamURL: "u1"},
		{ProviderID: "101", Name: "Second", StreamURL: "u2"},
	}, now)
	require.NoError(t, err)
	require.Equal(t, Result{Added: 1}, res)

	chans, _ := st.Channels(ctx, "pl1")
	require.Len(t, chans, 1)
	require.Equal(t, "Second", chans[0].Name)
	require.Equal(t, "u2", chans[0].StreamURL)
}

func TestPlaylistsDoNotCrossMatch(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "One", StreamURL: "u"},
	}, now)
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, "pl2", []catalog.Channel{
		{ProviderID: "101", Name: "One", StreamURL: "u"},
	}, now)
	require.NoError(t, err)
	require.Equal(t, Result{Added: 1}, res)

	a, _ := st.Channels(ctx, "pl1")
	b, _ := st.Channels(ctx, "pl2")
	require.NotEqual(t, a[0].ID, b[0].ID)
}

func TestPurgeRemovesOnlyStaleDeletes(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, "pl1", []catalog.Channel{
		{ProviderID: "101", Name: "One", StreamURL: "u"},
	}, now)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, "pl1", nil, now)
	require.NoError(t, err)

	// Too fresh to purge.
	n, err := r.Purge(ctx, now.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = r.Purge(ctx, now.Add(31*24*time.Hour), 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = st.Channel(ctx, "101")
	require.Error(t, err)
}

func TestImportVodReplaces(t *testing.T) {
	r, st := newTest(t)
	ctx := context.Background()

	added, removed, err := r.ImportVod(ctx, "pl1", []catalog.VodItem{
		{Kind: catalog.VodMovie, Name: "Heat", Year: 1995},
		{Kind: catalog.VodMovie, Name: "Ronin", Year: 1998},
	})
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Zero(t, removed)

	added, removed, err = r.ImportVod(ctx, "pl1", []catalog.VodItem{
		{Kind: catalog.VodMovie, Name: "Heat", Year: 1995},
	})
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, 2, removed)

	items, err := st.Vod(ctx, "pl1", catalog.VodMovie)
	require.NoError(t, err)
	require.Len(t, items, 1)
}
