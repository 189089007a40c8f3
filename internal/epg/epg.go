// Package epg downloads XMLTV guide data, persists it, and enforces the
// retention window.
package epg

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/httpclient"
	"github.com/snapetech/iptv-catalog/internal/logging"
	"github.com/snapetech/iptv-catalog/internal/store"
	"github.com/snapetech/iptv-catalog/internal/xmltv"
)

// DefaultRetention is how far back guide entries are kept when the device
// preferences do not say otherwise.
const DefaultRetention = 7 * 24 * time.Hour

const flushBatch = 500

// ErrNoGuideURL means the playlist has no EPG source configured.
var ErrNoGuideURL = errors.New("epg: playlist has no guide url")

// Stats summarizes one guide import.
type Stats struct {
	ChannelsSeen     int
	ProgramsImported int
	ProgramsPurged   int
	ParseErrorCount  int
}

type Service struct {
	store     *store.Store
	httpc     *http.Client
	retention time.Duration
	log       zerolog.Logger
}

type Option func(*Service)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpc = c }
}

func WithRetention(d time.Duration) Option {
	return func(s *Service) { s.retention = d }
}

func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		// Guide files run tens of megabytes; allow a long transfer.
		httpc:     httpclient.WithTimeout(5 * time.Minute),
		retention: DefaultRetention,
		log:       logging.For("epg"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Import fetches the playlist's guide, upserts every parsed program, purges
// entries past the retention window, and records the sync time. A transient
// download failure is retried; a guide that parses with errors still imports
// everything that did parse.
func (s *Service) Import(ctx context.Context, p catalog.Playlist, now time.Time) (Stats, error) {
	if p.EpgURL == "" {
		return Stats{}, ErrNoGuideURL
	}

	retention := s.retention
	if prefs, err := s.store.Preferences(ctx); err == nil && prefs != nil && prefs.EpgRetentionDays > 0 {
		retention = time.Duration(prefs.EpgRetentionDays) * 24 * time.Hour
	}

	var stats Stats
	err := retry.Do(
		func() error {
			st, err := s.importOnce(ctx, p)
			if err != nil {
				return err
			}
			stats = st
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn().Uint("attempt", n+1).Err(err).
				Str("playlist", p.ID).Msg("guide download failed, retrying")
		}),
	)
	if err != nil {
		return Stats{}, err
	}

	purged, err := s.store.PurgeEPGBefore(ctx, now.Add(-retention).Unix())
	if err != nil {
		return stats, fmt.Errorf("purge guide entries: %w", err)
	}
	stats.ProgramsPurged = purged

	if err := s.store.MarkPlaylistEpgSynced(ctx, p.ID, now); err != nil {
		return stats, err
	}

	s.log.Info().Str("playlist", p.ID).
		Int("channels", stats.ChannelsSeen).
		Int("programs", stats.ProgramsImported).
		Int("purged", stats.ProgramsPurged).
		Int("parse_errors", stats.ParseErrorCount).
		Msg("guide import complete")
	return stats, nil
}

func (s *Service) importOnce(ctx context.Context, p catalog.Playlist) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.EpgURL, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("guide request: %w", err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")

	release := httpclient.PerHost.Acquire(p.EpgURL)
	resp, err := s.httpc.Do(req)
	release()
	if err != nil {
		return Stats{}, fmt.Errorf("fetch guide: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Stats{}, fmt.Errorf("fetch guide: status %d", resp.StatusCode)
	}

	body, err := decompressed(resp, p.EpgURL)
	if err != nil {
		return Stats{}, err
	}
	return s.ImportReader(ctx, body)
}

// ImportReader parses an already-opened guide stream and upserts its
// programs. It does not purge or touch playlist bookkeeping; that belongs
// to Import. Useful for guides read from local files.
func (s *Service) ImportReader(ctx context.Context, body io.Reader) (Stats, error) {
	var (
		stats   Stats
		pending []catalog.EPGEntry
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := s.store.UpsertEPGEntries(ctx, pending)
		if err != nil {
			return err
		}
		stats.ProgramsImported += n
		pending = pending[:0]
		return nil
	}

	var flushErr error
	res := xmltv.Parse(body, xmltv.Handler{
		Channel: func(xmltv.ChannelDef) {
			stats.ChannelsSeen++
		},
		Program: func(prog xmltv.Program) {
			if flushErr != nil {
				return
			}
			pending = append(pending, catalog.EPGEntryFromProgram(prog))
			if len(pending) >= flushBatch {
				flushErr = flush()
			}
		},
	})
	if flushErr != nil {
		return Stats{}, flushErr
	}
	if err := flush(); err != nil {
		return Stats{}, err
	}

	stats.ParseErrorCount = len(res.Errors)
	for i, pe := range res.Errors {
		if i >= 25 {
			s.log.Warn().Int("suppressed", len(res.Errors)-25).
				Msg("further guide parse errors suppressed")
			break
		}
		s.log.Warn().Int("line", pe.Line).Str("reason", string(pe.Reason)).
			Str("detail", pe.Detail).Msg("guide parse error")
	}
	return stats, nil
}

// decompressed unwraps the response body. Content-Encoding wins; otherwise
// the URL suffix decides, with a gzip magic-byte sniff as backstop for
// servers that mislabel .gz files.
func decompressed(resp *http.Response, url string) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	}
	if strings.HasSuffix(url, ".br") {
		return brotli.NewReader(resp.Body), nil
	}
	br := bufio.NewReader(resp.Body)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}
