// Package config loads and persists the HyQuery configuration file.
//
// The file lives at <root>/HyQuery/config.json. Loading is permissive:
// unknown fields are ignored, missing fields are filled from defaults,
// and the file is rewritten afterwards so operators always see the full
// option set. A legacy Hyvote_HyQuery folder is migrated on first load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hyquery/pkg/logger"
)

const (
	dataFolder       = "HyQuery"
	legacyDataFolder = "Hyvote_HyQuery"
	configFile       = "config.json"
)

// Defaults returns the built-in configuration: query enabled, anonymous
// responses only, rate limiting and caching on, network mode off.
func Defaults() *Config {
	v1, v2 := true, true
	secret := ""
	return &Config{
		Enabled:                       true,
		ShowPlayerList:                false,
		ShowPlugins:                   false,
		UseCustomMotd:                 false,
		CustomMotd:                    "Welcome to My Server!",
		RateLimitEnabled:              true,
		RateLimitPerSecond:            10,
		RateLimitBurst:                20,
		CacheEnabled:                  true,
		CacheTTLSeconds:               5,
		V1Enabled:                     &v1,
		V2Enabled:                     &v2,
		ChallengeTokenValiditySeconds: 30,
		ChallengeSecret:               &secret,
		Authentication:                defaultAuth(),
		Network:                       networkDefaults(),
	}
}

func defaultAuth() *AuthConfig {
	return &AuthConfig{
		PublicAccess: &Permissions{Basic: true, Players: false},
		Tokens:       map[string]*Permissions{},
	}
}

func networkDefaults() *NetworkConfig {
	return &NetworkConfig{
		Enabled:                false,
		Role:                   RoleWorker,
		Coordinator:            CoordinatorUDP,
		Namespace:              "global",
		IncludeGlobalNamespace: false,
		StaleAfterSeconds:      10,
		WorkerTimeoutSeconds:   30,
		Workers:                []WorkerEntry{},
		ID:                     "server-1",
		PrimaryHost:            "localhost",
		PrimaryPort:            5520,
		Primaries:              []PrimaryTarget{},
		Key:                    "change-me-secret",
		UpdateIntervalSeconds:  5,
		LogStatusUpdates:       false,
		Redis:                  redisDefaults(),
		Observability:          observabilityDefaults(),
	}
}

func redisDefaults() *RedisConfig {
	req := true
	return &RedisConfig{
		Host:                   "localhost",
		Port:                   6379,
		Username:               "",
		Password:               "",
		Database:               0,
		TLS:                    false,
		ConnectTimeoutMillis:   1000,
		ReadTimeoutMillis:      1000,
		PublishIntervalSeconds: 5,
		RequireAvailable:       &req,
	}
}

func observabilityDefaults() *ObservabilityConfig {
	on := true
	return &ObservabilityConfig{
		LogLevel:       LevelInfo,
		MetricsEnabled: &on,
		MetricsDetail:  DetailBasic,
	}
}

// Load reads the configuration under root, filling defaults and rewriting
// the file. Errors are logged and the defaults returned; a broken config
// file never prevents startup.
func Load(root string) *Config {
	dataDir := filepath.Join(root, dataFolder)
	migrateLegacyDir(root, dataDir)

	path := filepath.Join(dataDir, configFile)
	defaults := Defaults()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := save(path, defaults); err != nil {
			logger.Warn("config_write_failed", "path", path, "error", err.Error())
		} else {
			logger.Info("config_created", "path", path)
		}
		return defaults
	}
	if err != nil {
		logger.Warn("config_read_failed", "path", path, "error", err.Error())
		return defaults
	}

	// booleans whose absent value is true are pre-seeded so a file that
	// omits them does not silently disable the feature
	loaded := &Config{Enabled: true, RateLimitEnabled: true, CacheEnabled: true}
	if err := json.Unmarshal(raw, loaded); err != nil {
		logger.Warn("config_parse_failed", "path", path, "error", err.Error())
		return defaults
	}

	cfg := applyDefaults(loaded, defaults)
	if err := save(path, cfg); err != nil {
		logger.Warn("config_write_failed", "path", path, "error", err.Error())
	} else {
		logger.Info("config_loaded", "path", path)
	}
	return cfg
}

func migrateLegacyDir(root, dataDir string) {
	legacyDir := filepath.Join(root, legacyDataFolder)
	if _, err := os.Stat(legacyDir); err != nil {
		return
	}
	if _, err := os.Stat(dataDir); err == nil {
		return
	}
	if err := os.Rename(legacyDir, dataDir); err != nil {
		logger.Warn("config_migrate_failed", "error", err.Error())
		return
	}
	logger.Info("config_migrated", "from", legacyDataFolder, "to", dataFolder)
}

func save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// applyDefaults fills missing or out-of-range fields from defaults. The
// rate limit and cache toggles are only honored when their companion
// numeric field is valid; configs predating those fields get the secure
// defaults.
func applyDefaults(loaded, def *Config) *Config {
	cfg := *loaded

	if cfg.CustomMotd == "" && !cfg.UseCustomMotd {
		cfg.CustomMotd = def.CustomMotd
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitEnabled = def.RateLimitEnabled
		cfg.RateLimitPerSecond = def.RateLimitPerSecond
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = def.RateLimitBurst
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheEnabled = def.CacheEnabled
		cfg.CacheTTLSeconds = def.CacheTTLSeconds
	}
	if cfg.V1Enabled == nil {
		cfg.V1Enabled = def.V1Enabled
	}
	if cfg.V2Enabled == nil {
		cfg.V2Enabled = def.V2Enabled
	}
	if cfg.ChallengeTokenValiditySeconds <= 0 {
		cfg.ChallengeTokenValiditySeconds = def.ChallengeTokenValiditySeconds
	}
	if cfg.ChallengeSecret == nil {
		cfg.ChallengeSecret = def.ChallengeSecret
	}

	cfg.Authentication = resolveAuth(cfg.Authentication, cfg.ShowPlayerList)
	cfg.Network = networkWithDefaults(cfg.Network)
	return &cfg
}

// resolveAuth applies auth defaults. When the authentication block is
// absent, public access falls back to the legacy showPlayerList toggle:
// basic stays open and the players endpoint follows the toggle.
func resolveAuth(auth *AuthConfig, showPlayerList bool) *AuthConfig {
	legacy := &Permissions{Basic: true, Players: showPlayerList}
	if auth == nil {
		return &AuthConfig{PublicAccess: legacy, Tokens: map[string]*Permissions{}}
	}

	resolved := &AuthConfig{PublicAccess: auth.PublicAccess, Tokens: map[string]*Permissions{}}
	if resolved.PublicAccess == nil {
		resolved.PublicAccess = legacy
	}
	for token, perms := range auth.Tokens {
		if token == "" {
			continue
		}
		if perms == nil {
			perms = &Permissions{Basic: true, Players: true}
		}
		resolved.Tokens[token] = perms
	}
	return resolved
}

func networkWithDefaults(n *NetworkConfig) *NetworkConfig {
	def := networkDefaults()
	if n == nil {
		return def
	}

	cfg := *n
	if cfg.Role == "" {
		cfg.Role = def.Role
	}
	cfg.Coordinator = normalizeCoordinator(cfg.Coordinator)
	cfg.Namespace = NormalizedNamespace(cfg.Namespace)
	if cfg.StaleAfterSeconds <= 0 {
		cfg.StaleAfterSeconds = def.StaleAfterSeconds
	}
	if cfg.WorkerTimeoutSeconds <= 0 {
		cfg.WorkerTimeoutSeconds = def.WorkerTimeoutSeconds
	}
	if cfg.Workers == nil {
		cfg.Workers = def.Workers
	}
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	if cfg.PrimaryHost == "" {
		cfg.PrimaryHost = def.PrimaryHost
	}
	if cfg.PrimaryPort <= 0 {
		cfg.PrimaryPort = def.PrimaryPort
	}
	if cfg.Primaries == nil {
		cfg.Primaries = def.Primaries
	}
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.UpdateIntervalSeconds <= 0 {
		cfg.UpdateIntervalSeconds = def.UpdateIntervalSeconds
	}
	cfg.Redis = redisWithDefaults(cfg.Redis)
	cfg.Observability = observabilityWithDefaults(cfg.Observability)
	return &cfg
}

func normalizeCoordinator(raw string) string {
	lowered := strings.ToLower(raw)
	switch lowered {
	case CoordinatorUDP, CoordinatorRedis:
		return lowered
	case "":
		return CoordinatorUDP
	default:
		logger.Warn("config_unknown_coordinator", "value", raw, "fallback", CoordinatorUDP)
		return CoordinatorUDP
	}
}

func redisWithDefaults(r *RedisConfig) *RedisConfig {
	def := redisDefaults()
	if r == nil {
		return def
	}

	cfg := *r
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
	if cfg.Database < 0 {
		cfg.Database = def.Database
	}
	if cfg.ConnectTimeoutMillis <= 0 {
		cfg.ConnectTimeoutMillis = def.ConnectTimeoutMillis
	}
	if cfg.ReadTimeoutMillis <= 0 {
		cfg.ReadTimeoutMillis = def.ReadTimeoutMillis
	}
	if cfg.PublishIntervalSeconds <= 0 {
		cfg.PublishIntervalSeconds = def.PublishIntervalSeconds
	}
	if cfg.RequireAvailable == nil {
		cfg.RequireAvailable = def.RequireAvailable
	} else if !*cfg.RequireAvailable {
		logger.Warn("config_require_available_ignored",
			"msg", "requireAvailable=false is not supported; the store coordinator is always fail-closed")
	}
	return &cfg
}

func observabilityWithDefaults(o *ObservabilityConfig) *ObservabilityConfig {
	def := observabilityDefaults()
	if o == nil {
		return def
	}

	cfg := *o
	cfg.LogLevel = normalizeEnum(cfg.LogLevel, def.LogLevel,
		LevelError, LevelWarn, LevelInfo, LevelDebug)
	if cfg.MetricsEnabled == nil {
		cfg.MetricsEnabled = def.MetricsEnabled
	}
	cfg.MetricsDetail = normalizeEnum(cfg.MetricsDetail, def.MetricsDetail,
		DetailBasic, DetailDetailed)
	return &cfg
}

func normalizeEnum(raw, fallback string, allowed ...string) string {
	if raw == "" {
		return fallback
	}
	lowered := strings.ToLower(raw)
	for _, a := range allowed {
		if lowered == a {
			return lowered
		}
	}
	return fallback
}
