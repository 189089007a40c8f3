// Package metrics exposes Prometheus counters for the import and sync
// pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_catalog_imports_total",
		Help: "Playlist imports by outcome.",
	}, []string{"outcome"})

	ChannelsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_channels_added_total",
		Help: "Channels created by reconciliation.",
	})
	ChannelsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_channels_updated_total",
		Help: "Channels updated by reconciliation.",
	})
	ChannelsSoftDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_channels_soft_deleted_total",
		Help: "Channels soft-deleted by reconciliation.",
	})
	ChannelsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_channels_purged_total",
		Help: "Soft-deleted channels hard-removed by purge.",
	})

	VodItemsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_vod_items_imported_total",
		Help: "VOD items written by wholesale replacement.",
	})

	EpgProgramsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_epg_programs_imported_total",
		Help: "Guide programs upserted.",
	})
	EpgProgramsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_epg_programs_purged_total",
		Help: "Guide programs removed by retention.",
	})
	EpgParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_catalog_epg_parse_errors_total",
		Help: "Malformed guide elements skipped during import.",
	})

	SyncPulls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_catalog_sync_pulls_total",
		Help: "Sync pulls by outcome.",
	}, []string{"outcome"})
	SyncPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_catalog_sync_pushes_total",
		Help: "Sync pushes by outcome.",
	}, []string{"outcome"})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
