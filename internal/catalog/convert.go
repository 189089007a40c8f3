package catalog

import (
	"strconv"
	"strings"

	"github.com/snapetech/iptv-catalog/internal/playlist"
	"github.com/snapetech/iptv-catalog/internal/xmltv"
	"github.com/snapetech/iptv-catalog/internal/xtream"
)

// Converters are pure: they never touch the store and never mint canonical
// ids — that is the reconciler's job.

// ChannelFromPlaylistEntry maps one parsed M3U entry to an incoming channel
// record for reconciliation.
func ChannelFromPlaylistEntry(playlistID string, e playlist.Entry) Channel {
	return Channel{
		PlaylistID:    playlistID,
		ProviderID:    strings.TrimSpace(e.ProviderID),
		TvgID:         strings.TrimSpace(e.TvgID),
		Name:          strings.TrimSpace(e.Name),
		Group:         strings.TrimSpace(e.Group),
		StreamURL:     e.URL,
		LogoURL:       e.LogoURL,
		ChannelNumber: e.ChannelNumber,
	}
}

// VodFromPlaylistEntry maps an M3U entry carrying a real duration, which
// marks it as on-demand content rather than a live channel.
func VodFromPlaylistEntry(playlistID string, e playlist.Entry) VodItem {
	name, year := splitTitleYear(strings.TrimSpace(e.Name))
	return VodItem{
		PlaylistID: playlistID,
		Kind:       VodMovie,
		ProviderID: strings.TrimSpace(e.ProviderID),
		Name:       name,
		StreamURL:  e.URL,
		LogoURL:    e.LogoURL,
		Genre:      strings.TrimSpace(e.Group),
		Year:       year,
	}
}

// ChannelFromLiveStream maps one player_api live stream. streamURL comes
// from the client's deterministic locator builder.
func ChannelFromLiveStream(playlistID string, s xtream.LiveStream, streamURL string) Channel {
	name := strings.TrimSpace(s.Name.String())
	providerID := ""
	if id := s.StreamID.Int(); id != 0 {
		providerID = strconv.Itoa(id)
	}
	if name == "" && providerID != "" {
		name = "Channel " + providerID
	}
	num := 0
	if s.Num.Valid {
		num = s.Num.Value
	}
	return Channel{
		PlaylistID:    playlistID,
		ProviderID:    providerID,
		TvgID:         strings.TrimSpace(s.EPGChannelID.String()),
		Name:          name,
		StreamURL:     streamURL,
		LogoURL:       s.StreamIcon.String(),
		ChannelNumber: num,
	}
}

// VodFromStream maps one get_vod_streams movie.
func VodFromStream(playlistID string, s xtream.VodStream, streamURL string) VodItem {
	name, year := splitTitleYear(s.Name.String())
	if year == 0 {
		year = yearFromDate(s.ReleaseDate.String())
	}
	rating := 0.0
	if s.Rating.Valid {
		rating = s.Rating.Value
	}
	return VodItem{
		PlaylistID: playlistID,
		Kind:       VodMovie,
		ProviderID: strconv.Itoa(s.StreamID.Int()),
		Name:       name,
		StreamURL:  streamURL,
		LogoURL:    s.StreamIcon.String(),
		Genre:      strings.TrimSpace(s.Genre.String()),
		Year:       year,
		Rating:     rating,
	}
}

// VodFromSeries maps one get_series show (no stream URL of its own).
func VodFromSeries(playlistID string, s xtream.SeriesItem) VodItem {
	name, year := splitTitleYear(s.Name.String())
	if year == 0 {
		year = yearFromDate(s.ReleaseDate.String())
	}
	rating := 0.0
	if s.Rating.Valid {
		rating = s.Rating.Value
	}
	return VodItem{
		PlaylistID: playlistID,
		Kind:       VodSeries,
		ProviderID: strconv.Itoa(s.SeriesID.Int()),
		Name:       name,
		LogoURL:    s.Cover.String(),
		Genre:      strings.TrimSpace(s.Genre.String()),
		Year:       year,
		Rating:     rating,
	}
}

// VodFromEpisode maps one episode under its parent series row.
func VodFromEpisode(playlistID, seriesID string, season int, ep xtream.Episode, streamURL string) VodItem {
	if s := ep.Season.Int(); s > 0 {
		season = s
	}
	return VodItem{
		PlaylistID: playlistID,
		Kind:       VodEpisode,
		ProviderID: ep.ID.String(),
		SeriesID:   seriesID,
		Name:       strings.TrimSpace(ep.Title.String()),
		StreamURL:  streamURL,
		LogoURL:    ep.Info.MovieImage.String(),
		Season:     season,
		Episode:    ep.EpisodeNum.Int(),
	}
}

// EPGEntryFromProgram maps a parsed guide programme to its persisted row.
func EPGEntryFromProgram(p xmltv.Program) EPGEntry {
	return EPGEntry{
		ChannelID:   p.ChannelID,
		Start:       p.Start,
		End:         p.Stop,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		IconURL:     p.IconURL,
	}
}

// splitTitleYear strips a trailing "(YYYY)" from a VOD title.
func splitTitleYear(s string) (string, int) {
	s = strings.TrimSpace(s)
	if len(s) < 7 || s[len(s)-1] != ')' {
		return s, 0
	}
	i := strings.LastIndex(s, "(")
	if i < 0 || len(s)-i != 6 {
		return s, 0
	}
	y, err := strconv.Atoi(s[i+1 : len(s)-1])
	if err != nil || y < 1900 || y > 2100 {
		return s, 0
	}
	return strings.TrimSpace(s[:i]), y
}

// yearFromDate pulls the year off a YYYY-MM-DD release date.
func yearFromDate(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1900 || y > 2100 {
		return 0
	}
	return y
}
