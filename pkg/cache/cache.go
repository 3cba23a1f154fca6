// Package cache holds pre-serialized V1 responses so repeated queries do
// not rebuild them under load.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind selects one of the two cache slots.
type Kind int

const (
	Basic Kind = iota
	Full
)

type entry struct {
	data    []byte
	created time.Time
}

type slot struct {
	mu sync.Mutex // serializes rebuilds; readers load the pointer lock-free
	v  atomic.Pointer[entry]
}

// ResponseCache keeps one basic and one full response, each rebuilt when
// its age exceeds the TTL. Returned slices are the cached bytes; callers
// must not mutate them (the handler copies into a fresh write buffer).
type ResponseCache struct {
	ttl   time.Duration
	build func(Kind) ([]byte, error)

	basic slot
	full  slot

	now func() time.Time
}

// New builds a cache with the given TTL. build is invoked, under a
// slot-level lock, whenever a slot is empty or expired.
func New(ttl time.Duration, build func(Kind) ([]byte, error)) *ResponseCache {
	return &ResponseCache{ttl: ttl, build: build, now: time.Now}
}

// Get returns the cached response for kind, rebuilding if stale. A build
// error is returned to the caller and nothing is stored, so the next Get
// retries instead of serving a failed build for the TTL. Readers outside
// the rebuild lock observe either the old or the new snapshot, never a
// torn one.
func (c *ResponseCache) Get(kind Kind) ([]byte, error) {
	s := c.slot(kind)
	now := c.now()

	if e := s.v.Load(); e != nil && now.Sub(e.created) <= c.ttl {
		return e.data, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.v.Load(); e != nil && now.Sub(e.created) <= c.ttl {
		return e.data, nil
	}
	data, err := c.build(kind)
	if err != nil {
		return nil, err
	}
	fresh := &entry{data: data, created: now}
	s.v.Store(fresh)
	return fresh.data, nil
}

// Invalidate clears both slots. Called when remote aggregate state changes.
func (c *ResponseCache) Invalidate() {
	c.basic.v.Store(nil)
	c.full.v.Store(nil)
}

func (c *ResponseCache) slot(kind Kind) *slot {
	if kind == Full {
		return &c.full
	}
	return &c.basic
}
