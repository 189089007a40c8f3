// Package ingest orchestrates playlist imports: fetch the source, parse it,
// convert to catalog records, and reconcile into the store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/epg"
	"github.com/snapetech/iptv-catalog/internal/httpclient"
	"github.com/snapetech/iptv-catalog/internal/logging"
	"github.com/snapetech/iptv-catalog/internal/metrics"
	"github.com/snapetech/iptv-catalog/internal/playlist"
	"github.com/snapetech/iptv-catalog/internal/reconcile"
	"github.com/snapetech/iptv-catalog/internal/store"
	"github.com/snapetech/iptv-catalog/internal/xtream"
)

const logParseErrorCap = 25

// ErrEmptySource means the provider returned a playlist with no entries at
// all. Treated as a provider fault: reconciling it would soft-delete the
// whole catalog, so the import aborts and the catalog stays untouched.
var ErrEmptySource = errors.New("ingest: source returned no entries")

// CredentialResolver turns a playlist's opaque credential handle into the
// provider login. Raw credentials never live in the catalog.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (user, pass string, err error)
}

type CredentialResolverFunc func(ctx context.Context, ref string) (string, string, error)

func (f CredentialResolverFunc) Resolve(ctx context.Context, ref string) (string, string, error) {
	return f(ctx, ref)
}

// Summary reports what one playlist import did.
type Summary struct {
	Channels   reconcile.Result
	VodAdded   int
	VodRemoved int
	// Skipped is set when the playlist content hash matches the last
	// successful import and reconciliation was bypassed.
	Skipped     bool
	ParseErrors int
}

type Orchestrator struct {
	store *store.Store
	rec   *reconcile.Reconciler
	epg   *epg.Service
	creds CredentialResolver
	httpc *http.Client

	providerRate   float64
	defaultRefresh time.Duration
	purgeOlderThan time.Duration
	log            zerolog.Logger
}

type Option func(*Orchestrator)

func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.httpc = c }
}

// WithProviderRateLimit caps player_api request rate, requests per second.
func WithProviderRateLimit(perSec float64) Option {
	return func(o *Orchestrator) { o.providerRate = perSec }
}

func WithDefaultRefresh(d time.Duration) Option {
	return func(o *Orchestrator) { o.defaultRefresh = d }
}

func WithPurgeAfter(d time.Duration) Option {
	return func(o *Orchestrator) { o.purgeOlderThan = d }
}

func New(st *store.Store, rec *reconcile.Reconciler, epgSvc *epg.Service, creds CredentialResolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:          st,
		rec:            rec,
		epg:            epgSvc,
		creds:          creds,
		httpc:          httpclient.WithTimeout(2 * time.Minute),
		defaultRefresh: 12 * time.Hour,
		purgeOlderThan: reconcile.DefaultPurgeAfter,
		log:            logging.For("ingest"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Import runs one full import of the playlist, dispatching on its kind.
// A VOD failure after a successful channel import is logged, not returned:
// the live catalog should not be held hostage by the movie list.
func (o *Orchestrator) Import(ctx context.Context, p catalog.Playlist, now time.Time) (Summary, error) {
	var (
		sum Summary
		err error
	)
	switch p.Kind {
	case catalog.PlaylistKindM3U:
		sum, err = o.importM3U(ctx, p, now)
	case catalog.PlaylistKindXtream:
		sum, err = o.importXtream(ctx, p, now)
	default:
		err = fmt.Errorf("ingest: unknown playlist kind %q", p.Kind)
	}
	if err != nil {
		metrics.ImportsTotal.WithLabelValues("error").Inc()
		return Summary{}, err
	}
	if sum.Skipped {
		metrics.ImportsTotal.WithLabelValues("unchanged").Inc()
	} else {
		metrics.ImportsTotal.WithLabelValues("ok").Inc()
	}
	metrics.ChannelsAdded.Add(float64(sum.Channels.Added))
	metrics.ChannelsUpdated.Add(float64(sum.Channels.Updated))
	metrics.ChannelsSoftDeleted.Add(float64(sum.Channels.SoftDeleted))
	metrics.VodItemsImported.Add(float64(sum.VodAdded))

	// Purge follows every reconciliation in its own transaction; failure
	// does not fail the import.
	if !sum.Skipped {
		if n, purgeErr := o.rec.Purge(ctx, now, o.purgeOlderThan); purgeErr != nil {
			o.log.Warn().Err(purgeErr).Msg("purge after import failed")
		} else {
			metrics.ChannelsPurged.Add(float64(n))
		}
	}

	// Guide refresh rides along, best effort.
	if p.EpgURL != "" && !sum.Skipped {
		if stats, epgErr := o.epg.Import(ctx, p, now); epgErr != nil {
			o.log.Warn().Err(epgErr).Str("playlist", p.ID).Msg("guide import failed")
		} else {
			metrics.EpgProgramsImported.Add(float64(stats.ProgramsImported))
			metrics.EpgProgramsPurged.Add(float64(stats.ProgramsPurged))
			metrics.EpgParseErrors.Add(float64(stats.ParseErrorCount))
		}
	}
	return sum, nil
}

func (o *Orchestrator) importM3U(ctx context.Context, p catalog.Playlist, now time.Time) (Summary, error) {
	var body []byte
	err := retry.Do(
		func() error {
			var err error
			body, err = o.fetch(ctx, p.URL)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
	)
	if err != nil {
		return Summary{}, fmt.Errorf("download playlist: %w", err)
	}

	digest := sha256.Sum256(body)
	hash := hex.EncodeToString(digest[:])
	if hash == p.LastHash && p.LastHash != "" {
		o.log.Info().Str("playlist", p.ID).Msg("playlist content unchanged")
		if err := o.store.MarkPlaylistSynced(ctx, p.ID, now, hash); err != nil {
			return Summary{}, err
		}
		return Summary{Skipped: true}, nil
	}

	res := playlist.ParseBytes(body)
	o.logParseErrors(p.ID, res.Errors)
	if len(res.Entries) == 0 {
		return Summary{}, fmt.Errorf("%s: %w", p.ID, ErrEmptySource)
	}

	var (
		channels []catalog.Channel
		vod      []catalog.VodItem
	)
	for _, e := range res.Entries {
		if e.Duration == playlist.DurationLive {
			channels = append(channels, catalog.ChannelFromPlaylistEntry(p.ID, e))
		} else {
			vod = append(vod, catalog.VodFromPlaylistEntry(p.ID, e))
		}
	}

	sum := Summary{ParseErrors: len(res.Errors)}
	sum.Channels, err = o.rec.Reconcile(ctx, p.ID, channels, now)
	if err != nil {
		return Summary{}, err
	}
	if added, removed, vodErr := o.rec.ImportVod(ctx, p.ID, vod); vodErr != nil {
		o.log.Warn().Err(vodErr).Str("playlist", p.ID).Msg("vod import failed")
	} else {
		sum.VodAdded, sum.VodRemoved = added, removed
	}

	if err := o.store.MarkPlaylistSynced(ctx, p.ID, now, hash); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (o *Orchestrator) importXtream(ctx context.Context, p catalog.Playlist, now time.Time) (Summary, error) {
	user, pass, err := o.creds.Resolve(ctx, p.CredentialRef)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve credentials for %s: %w", p.ID, err)
	}

	opts := []xtream.Option{xtream.WithHTTPClient(o.httpc)}
	if o.providerRate > 0 {
		opts = append(opts, xtream.WithRateLimit(o.providerRate, 1))
	}
	client, err := xtream.New(p.URL, user, pass, opts...)
	if err != nil {
		return Summary{}, err
	}
	if _, err := client.Authenticate(ctx); err != nil {
		return Summary{}, fmt.Errorf("authenticate against %s: %w", p.URL, err)
	}

	var (
		live   []xtream.LiveStream
		movies []xtream.VodStream
		series []xtream.SeriesItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { live, err = client.LiveStreams(gctx, ""); return })
	g.Go(func() (err error) { movies, err = client.VodStreams(gctx, ""); return })
	g.Go(func() (err error) { series, err = client.Series(gctx); return })
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("pull provider catalog: %w", err)
	}
	if len(live) == 0 {
		return Summary{}, fmt.Errorf("%s: %w", p.ID, ErrEmptySource)
	}

	channels := make([]catalog.Channel, 0, len(live))
	for _, s := range live {
		url := client.LiveURL(s.StreamID.Int(), "ts")
		channels = append(channels, catalog.ChannelFromLiveStream(p.ID, s, url))
	}

	var sum Summary
	sum.Channels, err = o.rec.Reconcile(ctx, p.ID, channels, now)
	if err != nil {
		return Summary{}, err
	}

	vod := o.collectVod(ctx, client, p.ID, movies, series)
	if added, removed, vodErr := o.rec.ImportVod(ctx, p.ID, vod); vodErr != nil {
		o.log.Warn().Err(vodErr).Str("playlist", p.ID).Msg("vod import failed")
	} else {
		sum.VodAdded, sum.VodRemoved = added, removed
	}

	if err := o.store.MarkPlaylistSynced(ctx, p.ID, now, ""); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// collectVod builds the full VOD batch: movies, series headers, and every
// episode. Series detail calls fan out with bounded concurrency; a series
// whose detail fetch fails is kept as a bare header.
func (o *Orchestrator) collectVod(ctx context.Context, client *xtream.Client, playlistID string, movies []xtream.VodStream, series []xtream.SeriesItem) []catalog.VodItem {
	out := make([]catalog.VodItem, 0, len(movies)+len(series))
	for _, m := range movies {
		ext := m.ContainerExtension.String()
		if ext == "" {
			ext = "mp4"
		}
		url := client.VodURL(m.StreamID.Int(), ext)
		out = append(out, catalog.VodFromStream(playlistID, m, url))
	}

	type seriesResult struct {
		header   catalog.VodItem
		episodes []catalog.VodItem
	}
	results := make([]seriesResult, len(series))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range series {
		i, s := i, s
		g.Go(func() error {
			header := catalog.VodFromSeries(playlistID, s)
			results[i] = seriesResult{header: header}

			info, err := client.SeriesInfo(gctx, s.SeriesID.Int())
			if err != nil {
				o.log.Warn().Err(err).Int("series", s.SeriesID.Int()).
					Msg("series detail fetch failed, keeping header only")
				return nil
			}
			seriesID := strconv.Itoa(s.SeriesID.Int())
			for seasonKey, eps := range info.Episodes {
				season, _ := strconv.Atoi(seasonKey)
				for _, ep := range eps {
					ext := ep.ContainerExtension.String()
					if ext == "" {
						ext = "mp4"
					}
					url := client.SeriesEpisodeURL(ep.ID.String(), ext)
					results[i].episodes = append(results[i].episodes,
						catalog.VodFromEpisode(playlistID, seriesID, season, ep, url))
				}
			}
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		out = append(out, r.header)
		out = append(out, r.episodes...)
	}
	return out
}

func (o *Orchestrator) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	release := httpclient.PerHost.Acquire(url)
	resp, err := o.httpc.Do(req)
	release()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func (o *Orchestrator) logParseErrors(playlistID string, errs []playlist.ParseError) {
	for i, pe := range errs {
		if i >= logParseErrorCap {
			o.log.Warn().Str("playlist", playlistID).
				Int("suppressed", len(errs)-logParseErrorCap).
				Msg("further playlist parse errors suppressed")
			return
		}
		o.log.Warn().Str("playlist", playlistID).Int("line", pe.Line).
			Str("reason", string(pe.Reason)).Str("text", pe.Text).
			Msg("playlist parse error")
	}
}

// Run refreshes each playlist on its own cadence until ctx is canceled,
// checking due playlists once a minute and purging stale soft-deletes daily.
func (o *Orchestrator) Run(ctx context.Context) error {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	purgeTick := time.NewTicker(24 * time.Hour)
	defer purgeTick.Stop()

	o.refreshDue(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			o.refreshDue(ctx, now)
		case now := <-purgeTick.C:
			if n, err := o.rec.Purge(ctx, now, o.purgeOlderThan); err != nil {
				o.log.Error().Err(err).Msg("purge failed")
			} else {
				metrics.ChannelsPurged.Add(float64(n))
			}
		}
	}
}

func (o *Orchestrator) refreshDue(ctx context.Context, now time.Time) {
	playlists, err := o.store.Playlists(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("list playlists failed")
		return
	}
	for _, p := range playlists {
		every := p.RefreshEvery
		if every <= 0 {
			every = o.defaultRefresh
		}
		if !p.LastSyncAt.IsZero() && now.Sub(p.LastSyncAt) < every {
			continue
		}
		if _, err := o.Import(ctx, p, now); err != nil {
			o.log.Error().Err(err).Str("playlist", p.ID).Msg("import failed")
		}
	}
}
