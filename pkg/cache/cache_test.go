package cache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func mustGet(t *testing.T, c *ResponseCache, k Kind) []byte {
	t.Helper()
	b, err := c.Get(k)
	if err != nil {
		t.Fatalf("Get(%d): %v", k, err)
	}
	return b
}

func TestGetBuildsOncePerTTL(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	var builds atomic.Int32
	c := New(time.Second, func(k Kind) ([]byte, error) {
		builds.Add(1)
		return []byte(fmt.Sprintf("kind-%d-build-%d", k, builds.Load())), nil
	})
	c.now = func() time.Time { return now }

	first := mustGet(t, c, Basic)
	if got := mustGet(t, c, Basic); !bytes.Equal(got, first) {
		t.Fatal("second read within TTL returned different bytes")
	}
	if builds.Load() != 1 {
		t.Fatalf("builds = %d, want 1", builds.Load())
	}

	// kinds are cached independently
	mustGet(t, c, Full)
	if builds.Load() != 2 {
		t.Fatalf("builds after full read = %d, want 2", builds.Load())
	}

	// past the TTL the slot rebuilds
	now = base.Add(2 * time.Second)
	if bytes.Equal(mustGet(t, c, Basic), first) {
		t.Fatal("expired entry served past TTL")
	}
	if builds.Load() != 3 {
		t.Fatalf("builds after expiry = %d, want 3", builds.Load())
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	var builds atomic.Int32
	c := New(time.Hour, func(Kind) ([]byte, error) {
		return []byte(fmt.Sprintf("build-%d", builds.Add(1))), nil
	})

	mustGet(t, c, Basic)
	mustGet(t, c, Full)
	c.Invalidate()
	mustGet(t, c, Basic)
	mustGet(t, c, Full)
	if builds.Load() != 4 {
		t.Fatalf("builds = %d, want 4 after invalidate", builds.Load())
	}
}

// TestFailedBuildNotCached checks a build error propagates to the caller
// and leaves the slot empty, so the next read retries rather than serving
// the failure (or a partial result) for the TTL.
func TestFailedBuildNotCached(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	var builds atomic.Int32
	c := New(time.Hour, func(Kind) ([]byte, error) {
		builds.Add(1)
		if fail {
			return nil, boom
		}
		return []byte("ok"), nil
	})

	if _, err := c.Get(Basic); !errors.Is(err, boom) {
		t.Fatalf("Get during outage: err = %v, want boom", err)
	}
	if _, err := c.Get(Basic); !errors.Is(err, boom) {
		t.Fatalf("second Get during outage: err = %v, want boom", err)
	}
	if builds.Load() != 2 {
		t.Fatalf("builds = %d, want 2 (failures must not be cached)", builds.Load())
	}

	fail = false
	if got := mustGet(t, c, Basic); string(got) != "ok" {
		t.Fatalf("Get after recovery = %q, want ok", got)
	}
	if got := mustGet(t, c, Basic); string(got) != "ok" {
		t.Fatalf("cached Get after recovery = %q, want ok", got)
	}
	if builds.Load() != 3 {
		t.Fatalf("builds = %d, want 3 (recovered value cached)", builds.Load())
	}
}

// TestConcurrentGet hammers one slot from many goroutines and checks every
// read observes a complete snapshot, never a torn or empty one.
func TestConcurrentGet(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 1024)
	c := New(time.Nanosecond, func(Kind) ([]byte, error) {
		return append([]byte(nil), payload...), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				got, err := c.Get(Basic)
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				if !bytes.Equal(got, payload) {
					t.Errorf("torn read: %d bytes", len(got))
					return
				}
			}
		}()
	}
	wg.Wait()
}
