package xtream

// Response models for player_api.php. Every field the panels stringify
// inconsistently is declared with a flex type from decode.go.

// Account is the authentication response.
type Account struct {
	UserInfo   UserInfo   `json:"user_info"`
	ServerInfo ServerInfo `json:"server_info"`
}

type UserInfo struct {
	Username       string   `json:"username"`
	Password       string   `json:"password"`
	Auth           FlexInt  `json:"auth"`
	Status         string   `json:"status"` // Active | Expired | Banned | Disabled
	ExpDate        OptInt   `json:"exp_date"`
	IsTrial        FlexInt  `json:"is_trial"`
	ActiveCons     FlexInt  `json:"active_cons"`
	MaxConnections FlexInt  `json:"max_connections"`
	AllowedFormats []string `json:"allowed_output_formats"`
}

type ServerInfo struct {
	URL          string     `json:"url"`
	Port         FlexString `json:"port"`
	HTTPSPort    FlexString `json:"https_port"`
	Protocol     string     `json:"server_protocol"`
	TimestampNow OptInt     `json:"timestamp_now"`
	Timezone     string     `json:"timezone"`
}

// Category is one live/VOD/series category.
type Category struct {
	ID       FlexString `json:"category_id"`
	Name     string     `json:"category_name"`
	ParentID FlexInt    `json:"parent_id"`
}

// LiveStream is one entry from get_live_streams.
type LiveStream struct {
	StreamID     FlexInt    `json:"stream_id"`
	Num          OptInt     `json:"num"`
	Name         FlexString `json:"name"`
	EPGChannelID FlexString `json:"epg_channel_id"`
	StreamIcon   FlexString `json:"stream_icon"`
	CategoryID   FlexString `json:"category_id"`
	TVArchive    FlexInt    `json:"tv_archive"`
	Added        FlexString `json:"added"`
}

// VodStream is one entry from get_vod_streams.
type VodStream struct {
	StreamID           FlexInt    `json:"stream_id"`
	Name               FlexString `json:"name"`
	StreamIcon         FlexString `json:"stream_icon"`
	CategoryID         FlexString `json:"category_id"`
	ContainerExtension FlexString `json:"container_extension"`
	Rating             OptFloat   `json:"rating"`
	Genre              FlexString `json:"genre"`
	ReleaseDate        FlexString `json:"releasedate"`
	Added              FlexString `json:"added"`
}

// SeriesItem is one entry from get_series.
type SeriesItem struct {
	SeriesID     FlexInt    `json:"series_id"`
	Name         FlexString `json:"name"`
	Cover        FlexString `json:"cover"`
	Plot         FlexString `json:"plot"`
	Genre        FlexString `json:"genre"`
	ReleaseDate  FlexString `json:"releaseDate"`
	Rating       OptFloat   `json:"rating"`
	BackdropPath StringList `json:"backdrop_path"`
}

// SeriesInfo is the get_series_info response: seasons keyed by number.
type SeriesInfo struct {
	Episodes map[string][]Episode `json:"episodes"`
	Info     SeriesItem           `json:"info"`
}

// Episode is one episode inside get_series_info.
type Episode struct {
	ID                 FlexString `json:"id"`
	EpisodeNum         FlexInt    `json:"episode_num"`
	Season             FlexInt    `json:"season"`
	Title              FlexString `json:"title"`
	ContainerExtension FlexString `json:"container_extension"`
	Info               struct {
		MovieImage FlexString `json:"movie_image"`
		Duration   FlexString `json:"duration"`
		Plot       FlexString `json:"plot"`
	} `json:"info"`
}

// EPGListing is one entry from get_short_epg. Title and description are
// base64-encoded by the panel.
type EPGListing struct {
	ID             FlexString `json:"id"`
	EPGID          FlexString `json:"epg_id"`
	ChannelID      FlexString `json:"channel_id"`
	Title          Base64Text `json:"title"`
	Description    Base64Text `json:"description"`
	Start          FlexString `json:"start"`
	End            FlexString `json:"end"`
	StartTimestamp FlexInt    `json:"start_timestamp"`
	StopTimestamp  FlexInt    `json:"stop_timestamp"`
}
