package host

import "sync"

// Static is a Host backed by plain fields. The harness daemon uses it with
// values from flags; tests use it directly. Zero-value fields fall back to
// the package defaults.
type Static struct {
	mu sync.RWMutex

	Name         string
	Motd         string
	Max          int
	Port         int
	Ver          string
	ProtoVersion int32
	ProtoHash    string
	Public       string
	PluginList   []string
	players      []Player
}

func (s *Static) ServerName() string {
	if s.Name == "" {
		return DefaultServerName
	}
	return s.Name
}

func (s *Static) MOTD() string { return s.Motd }

func (s *Static) MaxPlayers() int {
	if s.Max <= 0 {
		return DefaultMaxPlayers
	}
	return s.Max
}

func (s *Static) BindPort() int {
	if s.Port <= 0 {
		return DefaultBindPort
	}
	return s.Port
}

func (s *Static) Version() string {
	if s.Ver == "" {
		return DefaultVersion
	}
	return s.Ver
}

func (s *Static) Players() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Player, len(s.players))
	copy(out, s.players)
	return out
}

// SetPlayers replaces the connected player list.
func (s *Static) SetPlayers(players []Player) {
	s.mu.Lock()
	s.players = append([]Player(nil), players...)
	s.mu.Unlock()
}

func (s *Static) Plugins() []string { return s.PluginList }

func (s *Static) ProtocolVersion() int32 { return s.ProtoVersion }

func (s *Static) ProtocolHash() string { return s.ProtoHash }

func (s *Static) PublicHost() string { return s.Public }
