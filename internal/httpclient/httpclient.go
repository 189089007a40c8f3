// Package httpclient provides the shared tuned HTTP client, the per-host
// concurrency limiter, and the user agent used for all provider traffic.
package httpclient

import (
	"net/http"
	"time"
)

const (
	// UserAgent is sent on every provider request. Some panels reject the
	// Go default UA outright.
	UserAgent = "iptv-catalog/1.0"

	defaultTimeout  = 30 * time.Second
	idleConnTimeout = 90 * time.Second
	idlePerHost     = 16
)

var shared = &http.Client{
	Timeout: defaultTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: idlePerHost,
		IdleConnTimeout:     idleConnTimeout,
	},
}

// Default returns the shared client. Per-request deadlines come from the
// request context; the client timeout is a backstop.
func Default() *http.Client {
	return shared
}

// WithTimeout returns a client on a clone of the tuned transport with its
// own overall timeout. Guide downloads use a much longer one than API calls.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := shared.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}
