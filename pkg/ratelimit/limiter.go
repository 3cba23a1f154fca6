// Package ratelimit provides a per-source token-bucket limiter for the
// query dispatch path. Buckets untouched for longer than the cleanup
// interval are swept so scanning traffic cannot grow the map unboundedly.
package ratelimit

import (
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied when the config leaves the limits unset.
const (
	DefaultRate  = 10
	DefaultBurst = 20
)

const cleanupInterval = 60 * time.Second

type bucket struct {
	lim *rate.Limiter

	mu         sync.Mutex
	lastAccess time.Time
}

// Limiter maps source addresses to token buckets.
type Limiter struct {
	rps   rate.Limit
	burst int

	mu          sync.Mutex
	buckets     map[netip.Addr]*bucket
	lastCleanup time.Time

	now func() time.Time
}

// New builds a limiter allowing rps requests per second with the given
// burst per source address. Non-positive values fall back to the defaults.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{
		rps:         rate.Limit(rps),
		burst:       burst,
		buckets:     make(map[netip.Addr]*bucket),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow consumes one token for addr, reporting whether the request may
// proceed. Buckets are created on first sight of an address.
func (l *Limiter) Allow(addr netip.Addr) bool {
	now := l.now()
	b := l.get(addr, now)

	b.mu.Lock()
	b.lastAccess = now
	b.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

func (l *Limiter) get(addr netip.Addr, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > cleanupInterval {
		l.lastCleanup = now
		for a, b := range l.buckets {
			b.mu.Lock()
			idle := now.Sub(b.lastAccess) > cleanupInterval
			b.mu.Unlock()
			if idle {
				delete(l.buckets, a)
			}
		}
	}

	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst), lastAccess: now}
		l.buckets[addr] = b
	}
	return b
}

// Size reports the tracked address count. Used by metrics and tests.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
