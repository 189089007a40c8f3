// Command iptv-catalog maintains a device's IPTV catalog database.
//
//	add     Register or update a playlist source
//	import  One-shot import of a playlist (or all playlists)
//	epg     One-shot guide import for a playlist
//	link    Suggest guide ids for channels missing one
//	purge   Hard-remove channels soft-deleted past the retention window
//	sync    Pull then push device state through the shared remote
//	run     Daemon: refresh playlists on cadence, periodic sync, metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snapetech/iptv-catalog/internal/catalog"
	"github.com/snapetech/iptv-catalog/internal/config"
	"github.com/snapetech/iptv-catalog/internal/epg"
	"github.com/snapetech/iptv-catalog/internal/guidelink"
	"github.com/snapetech/iptv-catalog/internal/ingest"
	"github.com/snapetech/iptv-catalog/internal/logging"
	"github.com/snapetech/iptv-catalog/internal/metrics"
	"github.com/snapetech/iptv-catalog/internal/reconcile"
	"github.com/snapetech/iptv-catalog/internal/store"
	"github.com/snapetech/iptv-catalog/internal/syncer"
	"github.com/snapetech/iptv-catalog/internal/xmltv"
)

func main() {
	_ = config.LoadEnvFile(".env")
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogConsole)
	log := logging.For("main")

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	addID := addCmd.String("id", "", "Playlist id (required)")
	addName := addCmd.String("name", "", "Display name")
	addKind := addCmd.String("kind", catalog.PlaylistKindM3U, "Source kind: m3u or xtream")
	addURL := addCmd.String("url", "", "M3U URL or panel base URL (required)")
	addCredRef := addCmd.String("credential-ref", "", "Credential handle for xtream sources")
	addEpgURL := addCmd.String("epg-url", "", "XMLTV guide URL")
	addRefresh := addCmd.Duration("refresh", 0, "Refresh cadence (0 = daemon default)")

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importID := importCmd.String("playlist", "", "Playlist id; empty = every playlist")

	epgCmd := flag.NewFlagSet("epg", flag.ExitOnError)
	epgID := epgCmd.String("playlist", "", "Playlist id (required)")

	linkCmd := flag.NewFlagSet("link", flag.ExitOnError)
	linkID := linkCmd.String("playlist", "", "Playlist id (required)")
	linkGuide := linkCmd.String("guide", "", "XMLTV file to match against (default: playlist guide URL is not fetched; a local file is required)")
	linkAliases := linkCmd.String("aliases", "", "JSON alias file (normalized name -> guide id)")
	linkApply := linkCmd.Bool("apply", false, "Write suggested guide ids back to the catalog")

	purgeCmd := flag.NewFlagSet("purge", flag.ExitOnError)
	purgeAfter := purgeCmd.Duration("older-than", 0, "Purge soft-deletes older than this (default from env)")

	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	syncPullOnly := syncCmd.Bool("pull-only", false, "Pull remote state without pushing")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runSyncEvery := runCmd.Duration("sync-every", 15*time.Minute, "Sync interval when sync is enabled")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <add|import|epg|link|purge|sync|run> [flags]\n", os.Args[0])
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open catalog store")
	}
	defer st.Close()

	rec := reconcile.New(st)
	epgSvc := epg.New(st, epg.WithRetention(cfg.EpgRetention))
	orch := ingest.New(st, rec, epgSvc, envCredentials{},
		ingest.WithProviderRateLimit(cfg.ProviderRateLimit),
		ingest.WithDefaultRefresh(cfg.DefaultRefresh),
		ingest.WithPurgeAfter(cfg.PurgeAfter),
	)

	switch os.Args[1] {
	case "add":
		_ = addCmd.Parse(os.Args[2:])
		if *addID == "" || *addURL == "" {
			log.Fatal().Msg("add requires -id and -url")
		}
		name := *addName
		if name == "" {
			name = *addID
		}
		p := catalog.Playlist{
			ID:            *addID,
			Name:          name,
			Kind:          *addKind,
			URL:           *addURL,
			CredentialRef: *addCredRef,
			EpgURL:        *addEpgURL,
			RefreshEvery:  *addRefresh,
		}
		if err := st.UpsertPlaylist(ctx, p); err != nil {
			log.Fatal().Err(err).Msg("save playlist")
		}
		log.Info().Str("playlist", p.ID).Str("kind", p.Kind).Msg("playlist saved")

	case "import":
		_ = importCmd.Parse(os.Args[2:])
		playlists, err := targetPlaylists(ctx, st, *importID)
		if err != nil {
			log.Fatal().Err(err).Msg("resolve playlists")
		}
		now := time.Now()
		for _, p := range playlists {
			sum, err := orch.Import(ctx, p, now)
			if err != nil {
				log.Error().Err(err).Str("playlist", p.ID).Msg("import failed")
				continue
			}
			log.Info().Str("playlist", p.ID).
				Int("added", sum.Channels.Added).
				Int("updated", sum.Channels.Updated).
				Int("soft_deleted", sum.Channels.SoftDeleted).
				Int("unchanged", sum.Channels.Unchanged).
				Int("vod", sum.VodAdded).
				Bool("skipped", sum.Skipped).
				Msg("import done")
		}

	case "epg":
		_ = epgCmd.Parse(os.Args[2:])
		if *epgID == "" {
			log.Fatal().Msg("epg requires -playlist")
		}
		p, err := st.Playlist(ctx, *epgID)
		if err != nil {
			log.Fatal().Err(err).Str("playlist", *epgID).Msg("load playlist")
		}
		stats, err := epgSvc.Import(ctx, p, time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("guide import failed")
		}
		log.Info().Int("programs", stats.ProgramsImported).
			Int("purged", stats.ProgramsPurged).
			Int("parse_errors", stats.ParseErrorCount).
			Msg("guide import done")

	case "link":
		_ = linkCmd.Parse(os.Args[2:])
		if *linkID == "" || *linkGuide == "" {
			log.Fatal().Msg("link requires -playlist and -guide")
		}
		if err := runLink(ctx, st, *linkID, *linkGuide, *linkAliases, *linkApply); err != nil {
			log.Fatal().Err(err).Msg("guide link failed")
		}

	case "purge":
		_ = purgeCmd.Parse(os.Args[2:])
		olderThan := *purgeAfter
		if olderThan <= 0 {
			olderThan = cfg.PurgeAfter
		}
		n, err := rec.Purge(ctx, time.Now(), olderThan)
		if err != nil {
			log.Fatal().Err(err).Msg("purge failed")
		}
		log.Info().Int("purged", n).Msg("purge done")

	case "sync":
		_ = syncCmd.Parse(os.Args[2:])
		svc, err := newSyncer(cfg, st)
		if err != nil {
			log.Fatal().Err(err).Msg("sync setup failed")
		}
		defer svc.Close()
		if _, err := svc.Pull(ctx); err != nil {
			log.Fatal().Err(err).Msg("pull failed")
		}
		if !*syncPullOnly {
			if _, err := svc.Push(ctx); err != nil {
				log.Fatal().Err(err).Msg("push failed")
			}
		}

	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if cfg.MetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					log.Error().Err(err).Msg("metrics server stopped")
				}
			}()
		}
		if cfg.SyncEnabled {
			svc, err := newSyncer(cfg, st)
			if err != nil {
				log.Fatal().Err(err).Msg("sync setup failed")
			}
			defer svc.Close()
			go syncLoop(ctx, svc, *runSyncEvery)
		}
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("refresh loop stopped")
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

func targetPlaylists(ctx context.Context, st *store.Store, id string) ([]catalog.Playlist, error) {
	if id == "" {
		return st.Playlists(ctx)
	}
	p, err := st.Playlist(ctx, id)
	if err != nil {
		return nil, err
	}
	return []catalog.Playlist{p}, nil
}

func newSyncer(cfg *config.Config, st *store.Store) (*syncer.Service, error) {
	deviceID, err := cfg.DeviceID()
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return syncer.New(st, syncer.NewRedisStore(rdb), deviceID), nil
}

func syncLoop(ctx context.Context, svc *syncer.Service, every time.Duration) {
	log := logging.For("main")
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		if _, err := svc.Pull(ctx); err != nil {
			metrics.SyncPulls.WithLabelValues("error").Inc()
			log.Warn().Err(err).Msg("sync pull failed")
		} else {
			metrics.SyncPulls.WithLabelValues("ok").Inc()
		}
		if _, err := svc.Push(ctx); err != nil {
			metrics.SyncPushes.WithLabelValues("error").Inc()
			log.Warn().Err(err).Msg("sync push failed")
		} else {
			metrics.SyncPushes.WithLabelValues("ok").Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func runLink(ctx context.Context, st *store.Store, playlistID, guidePath, aliasPath string, apply bool) error {
	log := logging.For("main")

	f, err := os.Open(guidePath)
	if err != nil {
		return err
	}
	defer f.Close()
	var guide []xmltv.ChannelDef
	res := xmltv.Parse(f, xmltv.Handler{
		Channel: func(c xmltv.ChannelDef) { guide = append(guide, c) },
	})
	if len(res.Errors) > 0 {
		log.Warn().Int("parse_errors", len(res.Errors)).Msg("guide parsed with errors")
	}

	aliases := guidelink.Aliases{}
	if aliasPath != "" {
		af, err := os.Open(aliasPath)
		if err != nil {
			return err
		}
		aliases, err = guidelink.LoadAliases(af)
		af.Close()
		if err != nil {
			return err
		}
	}

	channels, err := st.Channels(ctx, playlistID)
	if err != nil {
		return err
	}
	rep := guidelink.MatchChannels(channels, guide, aliases)
	log.Info().Int("total", rep.TotalChannels).
		Int("matched", rep.Matched).
		Int("unmatched", rep.Unmatched).
		Msg("guide link report")

	sugg := rep.Suggestions()
	for _, s := range sugg {
		log.Info().Str("channel", s.Name).Str("guide_id", s.GuideID).
			Str("method", string(s.Method)).Msg("suggestion")
	}
	if !apply || len(sugg) == 0 {
		return nil
	}

	byID := make(map[string]catalog.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}
	applied := 0
	for _, s := range sugg {
		ch, ok := byID[s.ChannelID]
		if !ok {
			continue
		}
		ch.TvgID = s.GuideID
		if err := st.SetChannelTvgID(ctx, ch.ID, s.GuideID); err != nil {
			log.Warn().Err(err).Str("channel", ch.Name).Msg("apply failed")
			continue
		}
		applied++
	}
	log.Info().Int("applied", applied).Msg("guide ids applied")
	return nil
}

// envCredentials resolves a credential handle from the environment:
// IPTV_CATALOG_CRED_<REF>_USER and _PASS, with the ref uppercased and
// punctuation folded to underscores.
type envCredentials struct{}

func (envCredentials) Resolve(_ context.Context, ref string) (string, string, error) {
	key := strings.ToUpper(ref)
	for _, r := range "-./: " {
		key = strings.ReplaceAll(key, string(r), "_")
	}
	user := os.Getenv("IPTV_CATALOG_CRED_" + key + "_USER")
	pass := os.Getenv("IPTV_CATALOG_CRED_" + key + "_PASS")
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("credentials for %q not set in environment", ref)
	}
	return user, pass, nil
}
