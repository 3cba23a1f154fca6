package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, dataFolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFile), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// TestLoadCreatesDefaults verifies a missing file yields the defaults and
// writes a fully-populated config for the operator to edit.
func TestLoadCreatesDefaults(t *testing.T) {
	root := t.TempDir()
	cfg := Load(root)

	if !cfg.Enabled || !cfg.RateLimitEnabled || !cfg.CacheEnabled {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.RateLimitPerSecond != 10 || cfg.RateLimitBurst != 20 || cfg.CacheTTLSeconds != 5 {
		t.Fatalf("numeric defaults wrong: %+v", cfg)
	}
	if !cfg.V1On() || !cfg.V2On() {
		t.Fatal("protocols should default on")
	}
	if cfg.Network.Enabled || cfg.Network.Role != RoleWorker || cfg.Network.Coordinator != CoordinatorUDP {
		t.Fatalf("network defaults wrong: %+v", cfg.Network)
	}
	if cfg.Network.Namespace != "global" || cfg.Network.StaleAfterSeconds != 10 {
		t.Fatalf("namespace defaults wrong: %+v", cfg.Network)
	}
	if cfg.Network.Redis.Port != 6379 || cfg.Network.Redis.PublishIntervalSeconds != 5 {
		t.Fatalf("redis defaults wrong: %+v", cfg.Network.Redis)
	}
	if cfg.Network.Observability.LogLevel != LevelInfo || !cfg.Network.Observability.MetricsOn() {
		t.Fatalf("observability defaults wrong: %+v", cfg.Network.Observability)
	}

	raw, err := os.ReadFile(filepath.Join(root, dataFolder, configFile))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	reread := &Config{}
	if err := json.Unmarshal(raw, reread); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
}

func TestLoadBrokenFileFallsBack(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "{not json")
	cfg := Load(root)
	if !cfg.Enabled || cfg.RateLimitPerSecond != 10 {
		t.Fatalf("broken file did not fall back to defaults: %+v", cfg)
	}
}

func TestLoadMigratesLegacyFolder(t *testing.T) {
	root := t.TempDir()
	legacy := filepath.Join(root, legacyDataFolder)
	if err := os.MkdirAll(legacy, 0o755); err != nil {
		t.Fatalf("mkdir legacy: %v", err)
	}
	body := `{"enabled":true,"customMotd":"migrated"}`
	if err := os.WriteFile(filepath.Join(legacy, configFile), []byte(body), 0o644); err != nil {
		t.Fatalf("write legacy config: %v", err)
	}

	cfg := Load(root)
	if cfg.CustomMotd != "migrated" {
		t.Fatalf("legacy config not migrated: motd=%q", cfg.CustomMotd)
	}
	if _, err := os.Stat(legacy); !os.IsNotExist(err) {
		t.Fatal("legacy folder still present after migration")
	}
}

// TestToggleCoupling pins the quirk that rate limit and cache enable flags
// are only honored when their numeric companions are valid.
func TestToggleCoupling(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"rateLimitEnabled":false,"rateLimitPerSecond":0,"cacheEnabled":false,"cacheTtlSeconds":0}`)
	cfg := Load(root)
	if !cfg.RateLimitEnabled || !cfg.CacheEnabled {
		t.Fatalf("toggles honored without valid numerics: %+v", cfg)
	}

	root = t.TempDir()
	writeConfig(t, root, `{"rateLimitEnabled":false,"rateLimitPerSecond":5,"cacheEnabled":false,"cacheTtlSeconds":3}`)
	cfg = Load(root)
	if cfg.RateLimitEnabled || cfg.CacheEnabled {
		t.Fatalf("explicit disables ignored: %+v", cfg)
	}
}

func TestAbsentBooleansDefaultOn(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"rateLimitPerSecond":5,"cacheTtlSeconds":3}`)
	cfg := Load(root)
	if !cfg.Enabled || !cfg.RateLimitEnabled || !cfg.CacheEnabled {
		t.Fatalf("omitted booleans should stay on: %+v", cfg)
	}
}

func TestPresenceBasedFields(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"v1Enabled":false,"challengeSecret":"s3cret"}`)
	cfg := Load(root)
	if cfg.V1On() {
		t.Fatal("explicit v1Enabled=false ignored")
	}
	if !cfg.V2On() {
		t.Fatal("absent v2Enabled should default on")
	}
	if cfg.Secret() != "s3cret" {
		t.Fatalf("secret = %q", cfg.Secret())
	}
}

// TestLegacyAuthFallback checks that with no authentication block public
// access tracks the showPlayerList toggle.
func TestLegacyAuthFallback(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"showPlayerList":true}`)
	cfg := Load(root)
	pub := cfg.Authentication.PublicAccess
	if !pub.Basic || !pub.Players {
		t.Fatalf("legacy fallback wrong: %+v", pub)
	}

	root = t.TempDir()
	writeConfig(t, root, `{"showPlayerList":false}`)
	cfg = Load(root)
	pub = cfg.Authentication.PublicAccess
	if !pub.Basic || pub.Players {
		t.Fatalf("legacy fallback wrong: %+v", pub)
	}
}

func TestTokenNormalization(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"authentication":{"tokens":{"":{"basic":true},"admin":null,"mod":{"basic":true,"players":false}}}}`)
	cfg := Load(root)

	tokens := cfg.Authentication.Tokens
	if _, ok := tokens[""]; ok {
		t.Fatal("blank token kept")
	}
	admin := tokens["admin"]
	if admin == nil || !admin.Basic || !admin.Players {
		t.Fatalf("null token permissions should grant everything: %+v", admin)
	}
	mod := tokens["mod"]
	if mod == nil || !mod.Basic || mod.Players {
		t.Fatalf("mod permissions wrong: %+v", mod)
	}
}

func TestCoordinatorNormalization(t *testing.T) {
	cases := map[string]string{
		"udp":       CoordinatorUDP,
		"REDIS":     CoordinatorRedis,
		"Redis":     CoordinatorRedis,
		"":          CoordinatorUDP,
		"zookeeper": CoordinatorUDP,
	}
	for in, want := range cases {
		if got := normalizeCoordinator(in); got != want {
			t.Errorf("normalizeCoordinator(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrimaryTargets(t *testing.T) {
	n := &NetworkConfig{PrimaryHost: "hub", PrimaryPort: 5520}
	targets := n.PrimaryTargets()
	if len(targets) != 1 || targets[0].Host != "hub" {
		t.Fatalf("legacy fields not used: %+v", targets)
	}

	n.Primaries = []PrimaryTarget{{Host: "a", Port: 1}, {Host: "b", Port: 2}}
	targets = n.PrimaryTargets()
	if len(targets) != 2 || targets[0].Host != "a" {
		t.Fatalf("primaries list should take precedence: %+v", targets)
	}
}

func TestReadNamespaces(t *testing.T) {
	n := &NetworkConfig{Namespace: "  lobby  ", IncludeGlobalNamespace: true}
	got := n.ReadNamespaces()
	if len(got) != 2 || got[0] != "lobby" || got[1] != "global" {
		t.Fatalf("ReadNamespaces = %v", got)
	}

	n = &NetworkConfig{Namespace: "global", IncludeGlobalNamespace: true}
	if got := n.ReadNamespaces(); len(got) != 1 || got[0] != "global" {
		t.Fatalf("global should not be listed twice: %v", got)
	}

	n = &NetworkConfig{Namespace: "", IncludeGlobalNamespace: false}
	if got := n.ReadNamespaces(); len(got) != 1 || got[0] != "global" {
		t.Fatalf("blank namespace should normalize to global: %v", got)
	}
}

// TestRoundTripStable checks config -> JSON -> config is a fixed point
// once defaults are filled.
func TestRoundTripStable(t *testing.T) {
	root := t.TempDir()
	first := Load(root)

	second := Load(root)
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("reload changed the config:\n%s\n%s", a, b)
	}
}
