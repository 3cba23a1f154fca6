// Package banner logs the startup summary.
package banner

import (
	"runtime"

	"github.com/dustin/go-humanize"

	"hyquery/pkg/config"
	"hyquery/pkg/logger"
)

// Print logs one startup summary line per concern so operators can see
// the effective configuration at a glance.
func Print(version string, cfg *config.Config) {
	logger.Info("hyquery_starting", "version", version,
		"go", runtime.Version(), "gomaxprocs", runtime.GOMAXPROCS(0))

	logger.Info("query_config",
		"enabled", cfg.Enabled,
		"v1", cfg.V1On(), "v2", cfg.V2On(),
		"show_player_list", cfg.ShowPlayerList,
		"show_plugins", cfg.ShowPlugins,
		"custom_motd", cfg.UseCustomMotd)

	if cfg.RateLimitEnabled {
		logger.Info("rate_limit", "per_second", cfg.RateLimitPerSecond, "burst", cfg.RateLimitBurst)
	} else {
		logger.Warn("rate_limit_disabled")
	}
	if cfg.CacheEnabled {
		logger.Info("response_cache", "ttl_seconds", cfg.CacheTTLSeconds)
	}

	if cfg.NetworkEnabled() {
		logger.Info("network", "role", cfg.Network.Role,
			"coordinator", cfg.Network.Coordinator,
			"authorized_workers", len(cfg.Network.Workers))
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	logger.Info("runtime", "heap", humanize.Bytes(mem.HeapAlloc), "sys", humanize.Bytes(mem.Sys))
}
