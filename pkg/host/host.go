// Package host abstracts the game server the query service is embedded in.
package host

import "github.com/google/uuid"

// Player is one connected player as reported by the host.
type Player struct {
	Username string
	UUID     uuid.UUID
}

// Host exposes the identity of the co-hosted game server. Implementations
// must be safe for concurrent use; the query dispatch path calls these from
// multiple goroutines. Accessors should substitute sensible defaults rather
// than fail (see Defaults).
type Host interface {
	ServerName() string
	MOTD() string
	MaxPlayers() int
	BindPort() int
	Version() string
	Players() []Player
	Plugins() []string

	// ProtocolVersion and ProtocolHash identify the game protocol build
	// advertised in V2 server-info responses.
	ProtocolVersion() int32
	ProtocolHash() string

	// PublicHost is the externally reachable hostname, empty when unknown.
	// Responses only carry an address when this is non-empty.
	PublicHost() string
}

// Defaults used when the host cannot provide a value.
const (
	DefaultServerName = "Hytale Server"
	DefaultMaxPlayers = 100
	DefaultBindPort   = 5520
	DefaultVersion    = "Unknown"
)
