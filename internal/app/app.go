// Package app wires configuration, the query handler, coordinators, and
// listeners into one runnable daemon.
package app

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"hyquery/pkg/banner"
	"hyquery/pkg/config"
	"hyquery/pkg/host"
	"hyquery/pkg/logger"
	"hyquery/pkg/netcoord"
	"hyquery/pkg/query"
	"hyquery/pkg/telemetry"
	"hyquery/pkg/updates"
)

const metricsReportInterval = 60 * time.Second

// Options carries the daemon's command-line surface. Host identity fields
// stand in for the game runtime the query service normally runs beside.
type Options struct {
	ConfigRoot  string
	ListenAddr  string
	ForwardAddr string
	AdminAddr   string
	UpdateCron  string

	ServerName string
	MOTD       string
	MaxPlayers int
	PublicHost string
	Version    string
}

// App owns the daemon lifecycle: New builds everything that needs no
// running context, Run starts listeners and blocks until ctx is canceled.
type App struct {
	opts Options
	cfg  *config.Config
	host *host.Static

	handler *query.Handler
	coord   netcoord.Coordinator
	obs     *netcoord.Observability

	conn    *net.UDPConn
	forward *net.UDPConn
	wg      sync.WaitGroup
}

func New(opts Options) (*App, error) {
	cfg := config.Load(opts.ConfigRoot)
	logger.InitWithLevel(cfg.Network.Observability.LogLevel)

	a := &App{opts: opts, cfg: cfg}
	a.host = &host.Static{
		Name:   opts.ServerName,
		Motd:   opts.MOTD,
		Max:    opts.MaxPlayers,
		Port:   listenPort(opts.ListenAddr),
		Ver:    opts.Version,
		Public: opts.PublicHost,
	}

	a.obs = netcoord.NewObservability(cfg.Network.Observability)

	var (
		provider netcoord.Provider
		sink     query.StatusSink
	)
	if cfg.NetworkEnabled() {
		if cfg.Network.UsesRedis() {
			store := netcoord.NewRedisStore(cfg.Network.Redis)
			a.coord = netcoord.NewStore(cfg.Network, a.host, a.obs, store, true)
		} else {
			udp := netcoord.NewUDP(cfg.Network, a.host, a.obs, func() {
				if a.handler != nil {
					a.handler.InvalidateCache()
				}
			})
			a.coord = udp
			if udp.HandlesStatusPackets() {
				sink = udp
			}
		}
		provider = a.coord
	}

	a.handler = query.New(cfg, a.host, provider, sink)
	return a, nil
}

// Run starts the coordinator, the UDP listener, the admin HTTP endpoint,
// and the periodic reporters, then blocks until ctx is canceled or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.opts.Version, a.cfg)

	if !a.cfg.Enabled {
		logger.Warn("query_disabled", "msg", "enabled=false in config; not listening")
		<-ctx.Done()
		return nil
	}

	// shared-store mode is fail-closed: a failed health probe aborts here
	if a.coord != nil {
		if err := a.coord.Start(); err != nil {
			return fmt.Errorf("coordinator start: %w", err)
		}
	}

	if err := a.openListener(); err != nil {
		return err
	}
	a.wg.Add(1)
	go a.readLoop()

	errCh := a.startAdmin(ctx)

	if a.opts.UpdateCron != "off" {
		checker := updates.NewChecker(a.opts.Version)
		if err := checker.Run(ctx, a.opts.UpdateCron); err != nil {
			logger.Warn("update_checker_disabled", "error", err.Error())
		}
	}

	a.wg.Add(1)
	go a.reportMetrics(ctx)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	a.shutdown()
	return err
}

func (a *App) openListener() error {
	addr, err := net.ResolveUDPAddr("udp", a.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen addr: %w", err)
	}
	a.conn, err = net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("open query listener: %w", err)
	}
	logger.Info("listening", "addr", a.conn.LocalAddr().String())

	if a.opts.ForwardAddr != "" {
		fwd, err := net.ResolveUDPAddr("udp", a.opts.ForwardAddr)
		if err != nil {
			return fmt.Errorf("resolve forward addr: %w", err)
		}
		a.forward, err = net.DialUDP("udp", nil, fwd)
		if err != nil {
			return fmt.Errorf("open forward socket: %w", err)
		}
		logger.Info("forwarding_foreign_traffic", "to", a.opts.ForwardAddr)
	}
	return nil
}

// readLoop is the dispatch path: classify each datagram, answer it, and
// pass foreign traffic downstream untouched.
func (a *App) readLoop() {
	defer a.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, src, err := a.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			// closed during shutdown
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		consumed := a.handler.HandlePacket(pkt, src, func(resp []byte) {
			if _, werr := a.conn.WriteToUDPAddrPort(resp, src); werr != nil {
				logger.Warn("response_write_failed", "dst", src.String(), "error", werr.Error())
			}
		})
		if !consumed && a.forward != nil {
			if _, ferr := a.forward.Write(pkt); ferr != nil {
				logger.Debug("forward_failed", "error", ferr.Error())
			}
		}
	}
}

func (a *App) reportMetrics(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(metricsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			telemetry.RateLimiterSources.Set(float64(a.handler.LimiterSize()))
			if a.obs.MetricsEnabled() {
				logger.Info("coordinator_metrics", "summary", a.obs.MetricsSummary())
			}
		}
	}
}

func (a *App) shutdown() {
	if a.conn != nil {
		_ = a.conn.Close()
	}
	if a.forward != nil {
		_ = a.forward.Close()
	}
	if a.coord != nil {
		a.coord.Stop()
	}
	a.wg.Wait()
	logger.Info("shutdown_complete")
}

func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0
	}
	return port
}
