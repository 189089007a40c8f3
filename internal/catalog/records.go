// Package catalog defines the canonical record types persisted by the store
// and the converters from parsed/provider shapes into them.
package catalog

import "time"

// Channel is a persisted live channel. ID is the catalog's own canonical
// identifier: minted once on first import and never reassigned, which is
// what keeps favorites and watch history stable while providers rotate
// stream URLs underneath.
type Channel struct {
	ID         string // canonical id, immutable
	PlaylistID string

	// Identity match keys, each independently optional.
	ProviderID string // provider-native id (tier 1)
	TvgID      string // external guide id (tier 2)

	Name  string // with Group: tier-3 key
	Group string // "" matches ""

	// Mutable fields, overwritten on every matched import.
	StreamURL     string
	LogoURL       string
	ChannelNumber int // 0 = unset

	Favorite bool

	// Soft-delete state. A channel missing from an import batch is flagged
	// here and only hard-removed by the timed purge.
	Deleted   bool
	DeletedAt time.Time
}

// Playlist is one configured source.
type Playlist struct {
	ID   string
	Name string
	Kind string // "m3u" | "xtream"
	URL  string // M3U URL or panel base URL

	// CredentialRef is an opaque handle into the external secret store;
	// this system never sees raw credentials at rest.
	CredentialRef string

	EpgURL       string
	RefreshEvery time.Duration

	LastSyncAt    time.Time
	LastHash      string // content hash of the last successful import
	EpgLastSyncAt time.Time
}

const (
	PlaylistKindM3U    = "m3u"
	PlaylistKindXtream = "xtream"
)

// VodKind distinguishes VOD catalog rows.
type VodKind string

const (
	VodMovie   VodKind = "movie"
	VodSeries  VodKind = "series"
	VodEpisode VodKind = "episode"
)

// VodItem is a movie, series, or episode row. VOD rows are wholesale-
// replaced per playlist on import and carry no reconciliation identity.
type VodItem struct {
	ID         string
	PlaylistID string
	Kind       VodKind
	ProviderID string
	SeriesID   string // parent series id for episodes, else ""
	Name       string
	StreamURL  string
	LogoURL    string
	// Genre is the provider's comma-joined string, kept denormalized;
	// distinct-genre queries split it at read time.
	Genre   string
	Year    int
	Rating  float64
	Season  int
	Episode int
}

// WatchState is playback progress keyed by content id, not by channel
// canonical id, so it survives catalog churn.
type WatchState struct {
	ContentID    string
	PositionSecs int
	DurationSecs int
	UpdatedAt    time.Time
}

// Preferences is the single per-device preferences record.
type Preferences struct {
	DeviceName       string `json:"device_name"`
	PreferredQuality string `json:"preferred_quality"`
	SubtitleLang     string `json:"subtitle_lang"`
	EpgRetentionDays int    `json:"epg_retention_days"`
	UpdatedAt        int64  `json:"updated_at"` // epoch seconds
}

// EPGEntry is one persisted guide entry. (ChannelID, Start) is the
// composite key: a re-imported entry for the same slot replaces the first.
type EPGEntry struct {
	ChannelID   string // external guide id, not canonical channel id
	Start       int64  // epoch seconds UTC
	End         int64
	Title       string
	Description string
	Category    string
	IconURL     string
}
