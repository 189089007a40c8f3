// Package syncer replicates device-local state (playlist configs, favorites,
// watch progress, preferences) through a shared remote store so several
// devices converge on the same view.
package syncer

import (
	"time"

	"github.com/snapetech/iptv-catalog/internal/catalog"
)

// PlaylistRecord is a playlist config as stored remotely. Deleted is a
// tombstone: it wins over any config and removes the playlist everywhere.
type PlaylistRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	URL           string `json:"url"`
	CredentialRef string `json:"credential_ref"`
	EpgURL        string `json:"epg_url"`
	RefreshSecs   int64  `json:"refresh_secs"`
	Deleted       bool   `json:"deleted"`
	UpdatedAt     int64  `json:"updated_at"`
	DeviceID      string `json:"device_id"`
}

func (r PlaylistRecord) playlist() catalog.Playlist {
	return catalog.Playlist{
		ID:            r.ID,
		Name:          r.Name,
		Kind:          r.Kind,
		URL:           r.URL,
		CredentialRef: r.CredentialRef,
		EpgURL:        r.EpgURL,
		RefreshEvery:  time.Duration(r.RefreshSecs) * time.Second,
	}
}

func playlistRecord(p catalog.Playlist, deviceID string, at time.Time) PlaylistRecord {
	return PlaylistRecord{
		ID:            p.ID,
		Name:          p.Name,
		Kind:          p.Kind,
		URL:           p.URL,
		CredentialRef: p.CredentialRef,
		EpgURL:        p.EpgURL,
		RefreshSecs:   int64(p.RefreshEvery / time.Second),
		UpdatedAt:     at.Unix(),
		DeviceID:      deviceID,
	}
}

// FavoriteRecord marks one channel's favorite flag, keyed by canonical id.
type FavoriteRecord struct {
	ChannelID string `json:"channel_id"`
	Favorite  bool   `json:"favorite"`
	UpdatedAt int64  `json:"updated_at"`
	DeviceID  string `json:"device_id"`
}

// WatchRecord is playback progress; conflicts resolve last-writer-wins on
// UpdatedAt, ties keeping the local value.
type WatchRecord struct {
	ContentID    string `json:"content_id"`
	PositionSecs int    `json:"position_secs"`
	DurationSecs int    `json:"duration_secs"`
	UpdatedAt    int64  `json:"updated_at"`
	DeviceID     string `json:"device_id"`
}

func (r WatchRecord) watchState() catalog.WatchState {
	return catalog.WatchState{
		ContentID:    r.ContentID,
		PositionSecs: r.PositionSecs,
		DurationSecs: r.DurationSecs,
		UpdatedAt:    time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

// PrefsRecord wraps the whole preferences blob; it replaces wholesale, never
// field-merges.
type PrefsRecord struct {
	catalog.Preferences
	DeviceID string `json:"device_id"`
}
