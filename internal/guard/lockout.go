package guard

import (
	"sort"
	"sync"
	"time"
)

// Default lockout parameters
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutWindow     = 15 * time.Minute
)

type attemptRecord struct {
	attempts int
	first    time.Time
}

// BlockedIP is one blacklist entry
type BlockedIP struct {
	IP        string    `json:"ip"`
	BlockedAt time.Time `json:"blocked_at"`
}

// LockoutGuard tracks failed logins per IP and blacklists an IP once it
// reaches maxAttempts failures inside one window. Blacklist entries live
// until Release, process restart, or blacklistTTL when it is positive.
type LockoutGuard struct {
	mu           sync.Mutex
	maxAttempts  int
	window       time.Duration
	blacklistTTL time.Duration
	attempts     map[string]*attemptRecord
	blacklist    map[string]time.Time
}

// LockoutOption configures a LockoutGuard
type LockoutOption func(*LockoutGuard)

// WithMaxAttempts sets the failure count that blacklists an IP
func WithMaxAttempts(n int) LockoutOption {
	return func(g *LockoutGuard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithWindow sets how long failures are counted together
func WithWindow(d time.Duration) LockoutOption {
	return func(g *LockoutGuard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithBlacklistTTL makes blacklist entries expire; zero keeps them forever
func WithBlacklistTTL(d time.Duration) LockoutOption {
	return func(g *LockoutGuard) {
		if d >= 0 {
			g.blacklistTTL = d
		}
	}
}

// NewLockoutGuard creates a guard with the default limits unless overridden
func NewLockoutGuard(opts ...LockoutOption) *LockoutGuard {
	g := &LockoutGuard{
		maxAttempts: DefaultMaxFailedAttempts,
		window:      DefaultLockoutWindow,
		attempts:    make(map[string]*attemptRecord),
		blacklist:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RecordFailure counts one failed login and reports whether the IP is now blacklisted
func (g *LockoutGuard) RecordFailure(ip string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.blockedLocked(ip, now) {
		return true
	}

	rec := g.attempts[ip]
	if rec == nil || now.Sub(rec.first) >= g.window {
		rec = &attemptRecord{attempts: 1, first: now}
		g.attempts[ip] = rec
	} else {
		rec.attempts++
	}

	if rec.attempts >= g.maxAttempts {
		g.blacklist[ip] = now
		delete(g.attempts, ip)
		return true
	}
	return false
}

// IsBlocked reports whether ip is blacklisted at now
func (g *LockoutGuard) IsBlocked(ip string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockedLocked(ip, now)
}

func (g *LockoutGuard) blockedLocked(ip string, now time.Time) bool {
	at, ok := g.blacklist[ip]
	if !ok {
		return false
	}
	if g.blacklistTTL > 0 && now.Sub(at) >= g.blacklistTTL {
		delete(g.blacklist, ip)
		return false
	}
	return true
}

// Clear forgets failed attempts for ip after a successful login.
// It does not lift a blacklist entry.
func (g *LockoutGuard) Clear(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, ip)
}

// Release removes ip from the blacklist and reports whether it was present
func (g *LockoutGuard) Release(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blacklist[ip]
	delete(g.blacklist, ip)
	delete(g.attempts, ip)
	return ok
}

// Blocked lists blacklisted IPs, oldest first
func (g *LockoutGuard) Blocked(now time.Time) []BlockedIP {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]BlockedIP, 0, len(g.blacklist))
	for ip := range g.blacklist {
		if g.blockedLocked(ip, now) {
			out = append(out, BlockedIP{IP: ip, BlockedAt: g.blacklist[ip]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].IP < out[j].IP
		}
		return out[i].BlockedAt.Before(out[j].BlockedAt)
	})
	return out
}

// Sweep drops attempt windows that have elapsed and expired blacklist entries
func (g *LockoutGuard) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for ip, rec := range g.attempts {
		if now.Sub(rec.first) >= g.window {
			delete(g.attempts, ip)
		}
	}
	if g.blacklistTTL > 0 {
		for ip := range g.blacklist {
			g.blockedLocked(ip, now)
		}
	}
}
