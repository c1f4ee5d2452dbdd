// Package ratelimit implements a per-key sliding window request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// window is the trailing interval over which requests are counted.
const window = time.Minute

// Limiter tracks request timestamps per key and denies requests once a key
// exceeds its per-minute budget. State is in-process; each replica enforces
// its own window.
type Limiter struct {
	enabled bool
	limit   int

	mu   sync.Mutex
	seen map[string][]time.Time

	now func() time.Time
}

// NewLimiter creates a limiter allowing maxPerMinute requests per key within
// the sliding window. A disabled limiter allows everything.
func NewLimiter(enabled bool, maxPerMinute int) *Limiter {
	return &Limiter{
		enabled: enabled,
		limit:   maxPerMinute,
		seen:    make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether the request identified by key may proceed, recording
// it if so. Denied requests are not recorded, so a rejected burst does not
// extend the window. Expired timestamps are evicted lazily on access.
func (l *Limiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	recent := l.seen[key][:0]
	for _, ts := range l.seen[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.limit {
		l.seen[key] = recent
		return false
	}

	l.seen[key] = append(recent, now)
	return true
}
