package config

import "strings"

const (
	RolePrimary = "primary"
	RoleWorker  = "worker"

	CoordinatorUDP   = "udp"
	CoordinatorRedis = "redis"

	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"

	DetailBasic    = "basic"
	DetailDetailed = "detailed"
)

// Permissions grants access to individual V2 endpoints.
type Permissions struct {
	Basic   bool `json:"basic"`
	Players bool `json:"players"`
}

// AuthConfig controls V2 endpoint access. PublicAccess applies to
// unauthenticated requests; Tokens maps auth-token strings to the
// permissions granted to holders of that token.
type AuthConfig struct {
	PublicAccess *Permissions            `json:"publicAccess,omitempty"`
	Tokens       map[string]*Permissions `json:"tokens,omitempty"`
}

// WorkerEntry authorizes one worker on a primary. ID may end in '*' to
// match any worker whose id starts with the prefix.
type WorkerEntry struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// PrimaryTarget is one primary a worker pushes status updates to.
type PrimaryTarget struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RedisConfig carries connection settings for the shared-store coordinator.
type RedisConfig struct {
	Host                   string `json:"host"`
	Port                   int    `json:"port"`
	Username               string `json:"username"`
	Password               string `json:"password"`
	Database               int    `json:"database"`
	TLS                    bool   `json:"tls"`
	ConnectTimeoutMillis   int    `json:"connectTimeoutMillis"`
	ReadTimeoutMillis      int    `json:"readTimeoutMillis"`
	PublishIntervalSeconds int    `json:"publishIntervalSeconds"`

	// RequireAvailable=false is accepted but ignored; the coordinator is
	// always fail-closed. A warning is logged on load.
	RequireAvailable *bool `json:"requireAvailable,omitempty"`
}

// ObservabilityConfig controls coordinator logging and metrics.
type ObservabilityConfig struct {
	LogLevel       string `json:"logLevel"`
	MetricsEnabled *bool  `json:"metricsEnabled,omitempty"`
	MetricsDetail  string `json:"metricsDetail"`
}

func (o *ObservabilityConfig) MetricsOn() bool {
	return o == nil || o.MetricsEnabled == nil || *o.MetricsEnabled
}

// NetworkConfig configures multi-server mode. A "primary" aggregates
// status from workers; a "worker" pushes its own status out, either over
// UDP to one or more primaries or through a shared store.
type NetworkConfig struct {
	Enabled                bool   `json:"enabled"`
	Role                   string `json:"role"`
	Coordinator            string `json:"coordinator"`
	Namespace              string `json:"namespace"`
	IncludeGlobalNamespace bool   `json:"includeGlobalNamespace"`
	StaleAfterSeconds      int    `json:"staleAfterSeconds"`

	WorkerTimeoutSeconds int           `json:"workerTimeoutSeconds"`
	Workers              []WorkerEntry `json:"workers"`

	ID          string `json:"id"`
	PrimaryHost string `json:"primaryHost"`
	PrimaryPort int    `json:"primaryPort"`
	// Primaries takes precedence over PrimaryHost/PrimaryPort when
	// non-empty (hub clustering).
	Primaries             []PrimaryTarget `json:"primaries"`
	Key                   string          `json:"key"`
	UpdateIntervalSeconds int             `json:"updateIntervalSeconds"`
	LogStatusUpdates      bool            `json:"logStatusUpdates"`

	Redis         *RedisConfig         `json:"redis,omitempty"`
	Observability *ObservabilityConfig `json:"observability,omitempty"`
}

// Config is the full on-disk configuration. Pointer fields distinguish a
// field absent from the file from one explicitly set, where the two must
// behave differently.
type Config struct {
	Enabled        bool   `json:"enabled"`
	ShowPlayerList bool   `json:"showPlayerList"`
	ShowPlugins    bool   `json:"showPlugins"`
	UseCustomMotd  bool   `json:"useCustomMotd"`
	CustomMotd     string `json:"customMotd"`

	RateLimitEnabled   bool `json:"rateLimitEnabled"`
	RateLimitPerSecond int  `json:"rateLimitPerSecond"`
	RateLimitBurst     int  `json:"rateLimitBurst"`

	CacheEnabled    bool `json:"cacheEnabled"`
	CacheTTLSeconds int  `json:"cacheTtlSeconds"`

	V1Enabled *bool `json:"v1Enabled,omitempty"`
	V2Enabled *bool `json:"v2Enabled,omitempty"`

	ChallengeTokenValiditySeconds int     `json:"challengeTokenValiditySeconds"`
	ChallengeSecret               *string `json:"challengeSecret,omitempty"`

	Authentication *AuthConfig    `json:"authentication,omitempty"`
	Network        *NetworkConfig `json:"network,omitempty"`
}

func (c *Config) V1On() bool { return c.V1Enabled == nil || *c.V1Enabled }
func (c *Config) V2On() bool { return c.V2Enabled == nil || *c.V2Enabled }

func (c *Config) Secret() string {
	if c.ChallengeSecret == nil {
		return ""
	}
	return *c.ChallengeSecret
}

func (c *Config) NetworkEnabled() bool {
	return c.Network != nil && c.Network.Enabled
}

func (c *Config) IsNetworkPrimary() bool {
	return c.Network != nil && c.Network.IsPrimary()
}

func (c *Config) IsNetworkWorker() bool {
	return c.Network != nil && c.Network.IsWorker()
}

func (n *NetworkConfig) IsPrimary() bool {
	return n.Enabled && strings.EqualFold(n.Role, RolePrimary)
}

func (n *NetworkConfig) IsWorker() bool {
	return n.Enabled && strings.EqualFold(n.Role, RoleWorker)
}

func (n *NetworkConfig) UsesRedis() bool {
	return n.Coordinator == CoordinatorRedis
}

// PrimaryTargets resolves the set of primaries a worker publishes to,
// preferring the Primaries list over the legacy single-target fields.
func (n *NetworkConfig) PrimaryTargets() []PrimaryTarget {
	if len(n.Primaries) > 0 {
		return n.Primaries
	}
	if n.PrimaryHost != "" && n.PrimaryPort > 0 {
		return []PrimaryTarget{{Host: n.PrimaryHost, Port: n.PrimaryPort}}
	}
	return nil
}

// NormalizedNamespace trims the namespace, falling back to "global" when
// blank.
func NormalizedNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return "global"
	}
	return ns
}

// ReadNamespaces lists the namespaces a primary aggregates from: the
// configured one, plus "global" when IncludeGlobalNamespace is set and the
// configured namespace is not already "global".
func (n *NetworkConfig) ReadNamespaces() []string {
	ns := NormalizedNamespace(n.Namespace)
	out := []string{ns}
	if n.IncludeGlobalNamespace && ns != "global" {
		out = append(out, "global")
	}
	return out
}
