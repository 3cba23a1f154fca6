package netcoord

import (
	"testing"
	"time"

	"hyquery/pkg/config"
	"hyquery/pkg/host"
)

func testRegistry(entries ...config.WorkerEntry) *Registry {
	return NewRegistry(&config.NetworkConfig{
		Workers:              entries,
		WorkerTimeoutSeconds: 30,
	})
}

func TestFindEntryWildcard(t *testing.T) {
	r := testRegistry(
		config.WorkerEntry{ID: "game-1", Key: "k1"},
		config.WorkerEntry{ID: "hub-*", Key: "k2"},
		config.WorkerEntry{ID: "hub-eu", Key: "k3"},
	)

	cases := []struct {
		id      string
		wantKey string
		ok      bool
	}{
		{"game-1", "k1", true},
		{"game-2", "", false},
		{"hub-eu", "k2", true}, // first match wins over the exact entry
		{"hub-", "k2", true},
		{"hub", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		e, ok := r.FindEntry(tc.id)
		if ok != tc.ok || e.Key != tc.wantKey {
			t.Errorf("FindEntry(%q) = (%q, %v), want (%q, %v)", tc.id, e.Key, ok, tc.wantKey, tc.ok)
		}
	}
}

func TestUpdateReportsNewWorkers(t *testing.T) {
	r := testRegistry()
	if !r.Update(&WorkerState{ID: "game-1", Online: 3}) {
		t.Fatal("first update should report a new worker")
	}
	if r.Update(&WorkerState{ID: "game-1", Online: 4}) {
		t.Fatal("second update should not report a new worker")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
}

// TestLastUpdateWins applies a sequence of updates and checks the visible
// state is always the most recent packet's fields.
func TestLastUpdateWins(t *testing.T) {
	r := testRegistry()
	r.Update(&WorkerState{ID: "game-1", Online: 3, Max: 10})
	r.Update(&WorkerState{ID: "game-1", Online: 7, Max: 20})

	fresh := r.Fresh()
	if len(fresh) != 1 || fresh[0].Online != 7 || fresh[0].Max != 20 {
		t.Fatalf("registry did not reflect the last update: %+v", fresh)
	}
	if r.TotalOnline() != 7 || r.TotalMax() != 20 {
		t.Fatalf("totals = %d/%d, want 7/20", r.TotalOnline(), r.TotalMax())
	}
}

func TestFreshFiltersByTimeout(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	r := testRegistry()
	r.now = func() time.Time { return now }

	r.Update(&WorkerState{ID: "old", Online: 5, Max: 10})
	now = base.Add(20 * time.Second)
	r.Update(&WorkerState{ID: "recent", Online: 3, Max: 10})
	now = base.Add(40 * time.Second)

	fresh := r.Fresh()
	if len(fresh) != 1 || fresh[0].ID != "recent" {
		t.Fatalf("expected only the recent worker, got %+v", fresh)
	}
	if r.TotalOnline() != 3 {
		t.Fatalf("stale worker counted in totals: %d", r.TotalOnline())
	}
	if r.Count() != 2 {
		t.Fatal("stale workers should stay registered")
	}
}

func TestPlayersTaggedWithSource(t *testing.T) {
	r := testRegistry()
	r.Update(&WorkerState{ID: "game-1", Players: []host.Player{{Username: "alice"}}})
	r.Update(&WorkerState{ID: "game-2", Players: []host.Player{{Username: "bob"}}})

	players := r.Players()
	if len(players) != 2 {
		t.Fatalf("players = %d, want 2", len(players))
	}
	for _, p := range players {
		if p.ServerID != "game-1" && p.ServerID != "game-2" {
			t.Fatalf("player %s missing source tag: %+v", p.Username, p)
		}
	}
}
