// Package guard holds the per-IP request and login hardening state shared by
// every request goroutine.
package guard

import (
	"sync"
	"time"
)

// Default rate limit parameters
const (
	DefaultRequestLimit = 500
	DefaultWindow       = 60 * time.Second
)

type window struct {
	count int
	start time.Time
}

// RateLimiter counts requests per IP inside a fixed window that restarts on
// the first request after it elapses.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*window
}

// NewRateLimiter creates a limiter admitting limit requests per window
func NewRateLimiter(limit int, win time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRequestLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	return &RateLimiter{
		limit:   limit,
		window:  win,
		entries: make(map[string]*window),
	}
}

// Admit records one request from ip at now. It returns false and the time
// until the window restarts once the count exceeds the limit.
func (l *RateLimiter) Admit(ip string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.entries[ip]
	if w == nil || now.Sub(w.start) >= l.window {
		l.entries[ip] = &window{count: 1, start: now}
		return true, 0
	}

	w.count++
	if w.count > l.limit {
		return false, w.start.Add(l.window).Sub(now)
	}
	return true, 0
}

// Sweep drops windows that have already elapsed
func (l *RateLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, w := range l.entries {
		if now.Sub(w.start) >= l.window {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}
