// Package netcoord implements multi-server coordination: workers publish
// their status to one or more primaries (over UDP or through a shared
// store) and primaries aggregate the fleet view served to query clients.
package netcoord

import (
	"hyquery/pkg/host"
)

// NetworkPlayer is a player on some server in the network, tagged with
// the server it was reported from.
type NetworkPlayer struct {
	host.Player
	ServerID string
}

// RemoteServer is the last known state of one remote server.
type RemoteServer struct {
	ID        string
	Name      string
	MOTD      string
	Online    int32
	Max       int32
	Port      int32
	Version   string
	Reachable bool
	UpdatedAt int64 // unix millis of the last accepted update
	Players   []host.Player
}

// Aggregate is the merged view of all fresh remote servers. Players is
// populated only when requested.
type Aggregate struct {
	TotalOnline int32
	TotalMax    int32
	Remotes     []RemoteServer
	Players     []NetworkPlayer
}

// Empty returns the zero aggregate served when no coordinator is active.
func Empty() *Aggregate { return &Aggregate{} }

// Provider supplies the aggregation view consumed by the request handler.
// GetAggregate must be safe for concurrent use and bounded in time; the
// store-backed implementation absorbs repeat calls with a short cache.
type Provider interface {
	GetAggregate(includePlayers bool) (*Aggregate, error)
}

// Coordinator is a Provider with a lifecycle. Start launches publisher
// schedulers (worker role) or validates connectivity (primary role);
// Stop halts schedulers and releases sockets or store clients.
type Coordinator interface {
	Provider
	Start() error
	Stop()
}

// Noop is the Provider used when network mode is off or this server is
// not a primary. It always returns the empty aggregate.
type Noop struct{}

func (Noop) GetAggregate(bool) (*Aggregate, error) { return Empty(), nil }
