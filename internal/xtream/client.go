package xtream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/snapetech/iptv-catalog/internal/httpclient"
	"github.com/snapetech/iptv-catalog/internal/logging"
)

// Closed error taxonomy. Callers branch on these: an expired account halts
// an import, a transient network error does not.
var (
	ErrAuthFailed     = errors.New("xtream: authentication failed")
	ErrAccountExpired = errors.New("xtream: account expired")
	ErrMalformedURL   = errors.New("xtream: malformed base url")
	ErrNetwork        = errors.New("xtream: network error")
)

// StatusError is a non-2xx response from the panel.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "xtream: http status " + strconv.Itoa(e.Code)
}

// DecodeError means the response body could not be decoded at all; nothing
// in it was salvageable.
type DecodeError struct {
	Action string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("xtream: decode %s: %v", e.Action, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Default request pacing: panels rate-limit aggressively and get_series_info
// is called once per show.
const (
	defaultRatePerSec = 4
	defaultBurst      = 4
)

// Client issues authenticated player_api.php requests.
type Client struct {
	baseURL string
	user    string
	pass    string
	httpc   *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient injects the transport. Tests pass an httptest client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// WithRateLimit overrides the request pacing.
func WithRateLimit(perSec float64, burst int) Option {
	return func(cl *Client) { cl.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// New validates the base URL and returns a client. Credentials are held for
// the lifetime of the client; callers own where they came from.
func New(baseURL, user, pass string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, baseURL)
	}
	c := &Client{
		baseURL: baseURL,
		user:    user,
		pass:    pass,
		httpc:   httpclient.Default(),
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSec), defaultBurst),
		log:     logging.For("xtream"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// apiURL builds a player_api.php URL. url.Values.Encode sorts keys, so the
// query string is deterministic for a given parameter set.
func (c *Client) apiURL(action string, params url.Values) string {
	q := url.Values{}
	q.Set("username", c.user)
	q.Set("password", c.pass)
	if action != "" {
		q.Set("action", action)
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return c.baseURL + "/player_api.php?" + q.Encode()
}

// get fetches one API action and returns the raw body.
func (c *Client) get(ctx context.Context, action string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(action, params), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, c.baseURL)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	release := httpclient.PerHost.Acquire(c.baseURL)
	resp, err := c.httpc.Do(req)
	release()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return body, nil
}

// getJSON fetches and decodes one API action.
func (c *Client) getJSON(ctx context.Context, action string, params url.Values, into any) error {
	body, err := c.get(ctx, action, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &DecodeError{Action: action, Err: err}
	}
	return nil
}

// Authenticate verifies the credentials and returns account details.
// A panel that answers but denies access maps to ErrAuthFailed or, when the
// account status says so, ErrAccountExpired.
func (c *Client) Authenticate(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.getJSON(ctx, "", nil, &acct); err != nil {
		return nil, err
	}
	if acct.UserInfo.Auth.Int() != 1 {
		if strings.EqualFold(acct.UserInfo.Status, "Expired") {
			return nil, ErrAccountExpired
		}
		return nil, ErrAuthFailed
	}
	switch strings.ToLower(acct.UserInfo.Status) {
	case "", "active":
	case "expired":
		return nil, ErrAccountExpired
	default: // Banned, Disabled, ...
		return nil, ErrAuthFailed
	}
	return &acct, nil
}

// LiveCategories fetches get_live_categories.
func (c *Client) LiveCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.getJSON(ctx, "get_live_categories", nil, &out)
	return out, err
}

// VodCategories fetches get_vod_categories.
func (c *Client) VodCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.getJSON(ctx, "get_vod_categories", nil, &out)
	return out, err
}

// SeriesCategories fetches get_series_categories.
func (c *Client) SeriesCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.getJSON(ctx, "get_series_categories", nil, &out)
	return out, err
}

// LiveStreams fetches get_live_streams, optionally scoped to a category.
func (c *Client) LiveStreams(ctx context.Context, categoryID string) ([]LiveStream, error) {
	params := url.Values{}
	if categoryID != "" {
		params.Set("category_id", categoryID)
	}
	var out []LiveStream
	err := c.getJSON(ctx, "get_live_streams", params, &out)
	return out, err
}

// VodStreams fetches get_vod_streams, optionally scoped to a category.
func (c *Client) VodStreams(ctx context.Context, categoryID string) ([]VodStream, error) {
	params := url.Values{}
	if categoryID != "" {
		params.Set("category_id", categoryID)
	}
	var out []VodStream
	err := c.getJSON(ctx, "get_vod_streams", params, &out)
	return out, err
}

// Series fetches get_series. Some panels answer with an object keyed by
// index instead of an array; both shapes are accepted.
func (c *Client) Series(ctx context.Context) ([]SeriesItem, error) {
	body, err := c.get(ctx, "get_series", nil)
	if err != nil {
		return nil, err
	}
	var list []SeriesItem
	if json.Unmarshal(body, &list) == nil {
		return list, nil
	}
	var m map[string]SeriesItem
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, &DecodeError{Action: "get_series", Err: err}
	}
	out := make([]SeriesItem, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out, nil
}

// SeriesInfo fetches get_series_info for one show.
func (c *Client) SeriesInfo(ctx context.Context, seriesID int) (*SeriesInfo, error) {
	params := url.Values{}
	params.Set("series_id", strconv.Itoa(seriesID))
	var out SeriesInfo
	if err := c.getJSON(ctx, "get_series_info", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShortEPG fetches get_short_epg for one stream. limit <= 0 uses the panel
// default.
func (c *Client) ShortEPG(ctx context.Context, streamID, limit int) ([]EPGListing, error) {
	params := url.Values{}
	params.Set("stream_id", strconv.Itoa(streamID))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Listings []EPGListing `json:"epg_listings"`
	}
	if err := c.getJSON(ctx, "get_short_epg", params, &out); err != nil {
		return nil, err
	}
	return out.Listings, nil
}

// GuideURL returns the panel's full-guide xmltv.php URL.
func (c *Client) GuideURL() string {
	q := url.Values{}
	q.Set("username", c.user)
	q.Set("password", c.pass)
	return c.baseURL + "/xmltv.php?" + q.Encode()
}

// Playback locators are pure functions of credentials + id + extension; no
// round trip is needed to build them.

// LiveURL returns the playback locator for a live stream.
func (c *Client) LiveURL(streamID int, ext string) string {
	return c.streamURL("live", strconv.Itoa(streamID), ext)
}

// VodURL returns the playback locator for a movie.
func (c *Client) VodURL(streamID int, ext string) string {
	return c.streamURL("movie", strconv.Itoa(streamID), ext)
}

// SeriesEpisodeURL returns the playback locator for one episode.
func (c *Client) SeriesEpisodeURL(episodeID string, ext string) string {
	return c.streamURL("series", episodeID, ext)
}

func (c *Client) streamURL(kind, id, ext string) string {
	if ext == "" {
		ext = "ts"
	}
	return c.baseURL + "/" + kind + "/" +
		url.PathEscape(c.user) + "/" + url.PathEscape(c.pass) + "/" +
		url.PathEscape(id) + "." + url.PathEscape(ext)
}
