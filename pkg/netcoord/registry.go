package netcoord

import (
	"strings"
	"sync"
	"time"

	"hyquery/pkg/config"
	"hyquery/pkg/host"
)

// WorkerState is the last accepted status from one worker.
type WorkerState struct {
	ID      string
	Name    string
	MOTD    string
	Online  int32
	Max     int32
	Port    int32
	Version string
	Players []host.Player

	updatedAt time.Time
}

// Registry tracks worker state on a primary. Entries are replaced on each
// accepted status update and never evicted; staleness is filtered out at
// aggregation time.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*WorkerState

	entries []config.WorkerEntry
	timeout time.Duration

	now func() time.Time
}

func NewRegistry(cfg *config.NetworkConfig) *Registry {
	return &Registry{
		workers: make(map[string]*WorkerState),
		entries: cfg.Workers,
		timeout: time.Duration(cfg.WorkerTimeoutSeconds) * time.Second,
		now:     time.Now,
	}
}

// FindEntry returns the first configured worker entry matching id. An
// entry id ending in '*' matches any worker id with that prefix.
func (r *Registry) FindEntry(workerID string) (config.WorkerEntry, bool) {
	for _, e := range r.entries {
		if entryMatches(e.ID, workerID) {
			return e, true
		}
	}
	return config.WorkerEntry{}, false
}

func entryMatches(pattern, workerID string) bool {
	if pattern == "" || workerID == "" {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(workerID, pattern[:len(pattern)-1])
	}
	return pattern == workerID
}

// Update replaces the state for a worker, reporting whether the worker
// was previously unknown.
func (r *Registry) Update(state *WorkerState) (isNew bool) {
	state.updatedAt = r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.workers[state.ID]
	r.workers[state.ID] = state
	return !known
}

// Fresh returns the workers whose last update is within the timeout.
func (r *Registry) Fresh() []*WorkerState {
	cutoff := r.now().Add(-r.timeout)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*WorkerState, 0, len(r.workers))
	for _, w := range r.workers {
		if w.updatedAt.After(cutoff) {
			out = append(out, w)
		}
	}
	return out
}

// TotalOnline sums online player counts across fresh workers.
func (r *Registry) TotalOnline() int32 {
	var total int32
	for _, w := range r.Fresh() {
		total += w.Online
	}
	return total
}

// TotalMax sums max player counts across fresh workers.
func (r *Registry) TotalMax() int32 {
	var total int32
	for _, w := range r.Fresh() {
		total += w.Max
	}
	return total
}

// Players collects all players from fresh workers, tagged with their
// source server id.
func (r *Registry) Players() []NetworkPlayer {
	var out []NetworkPlayer
	for _, w := range r.Fresh() {
		for _, p := range w.Players {
			out = append(out, NetworkPlayer{Player: p, ServerID: w.ID})
		}
	}
	return out
}

// Count returns the number of registered workers, fresh or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
