package httpclient

import (
	"net/url"
	"sync"
)

// HostLimiter caps in-flight requests per upstream host, process-wide.
// Series-detail fan-out and guide downloads can otherwise open dozens of
// connections against one panel at once, which providers read as abuse.
//
//	release := httpclient.PerHost.Acquire(rawURL)
//	defer release()
type HostLimiter struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	cap   int
}

// PerHost is the shared limiter: at most 4 concurrent requests to any one
// host across the whole process.
var PerHost = NewHostLimiter(4)

func NewHostLimiter(cap int) *HostLimiter {
	if cap < 1 {
		cap = 1
	}
	return &HostLimiter{
		slots: make(map[string]chan struct{}),
		cap:   cap,
	}
}

// Acquire blocks until a slot for rawURL's host is free and returns the
// release func. An unparseable URL is limited under its raw string.
func (l *HostLimiter) Acquire(rawURL string) func() {
	slot := l.slotFor(rawURL)
	slot <- struct{}{}
	return func() { <-slot }
}

func (l *HostLimiter) slotFor(rawURL string) chan struct{} {
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		key = u.Scheme + "://" + u.Host
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, l.cap)
		l.slots[key] = s
	}
	return s
}
