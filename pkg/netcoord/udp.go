package netcoord

import (
	"fmt"
	"net"
	"sync"
	"time"

	"hyquery/pkg/config"
	"hyquery/pkg/host"
	"hyquery/pkg/protocol"
	"hyquery/pkg/telemetry"
)

// skew window for worker status timestamps
const statusSkewWindow = 30 * time.Second

// UDPCoordinator implements worker-to-primary coordination over UDP. In
// worker role it pushes signed status frames to every configured primary
// on a fixed interval; in primary role it validates inbound frames and
// keeps the worker registry.
type UDPCoordinator struct {
	cfg  *config.NetworkConfig
	obs  *Observability
	host host.Host

	// primary state
	registry *Registry
	ackKey   string
	// invoked after an accepted status so stale cached responses are
	// not served
	invalidate func()

	// worker state
	conn    *net.UDPConn
	targets []*net.UDPAddr
	stop    chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
}

// NewUDP builds the coordinator. invalidate may be nil.
func NewUDP(cfg *config.NetworkConfig, h host.Host, obs *Observability, invalidate func()) *UDPCoordinator {
	c := &UDPCoordinator{
		cfg:        cfg,
		obs:        obs,
		host:       h,
		invalidate: invalidate,
		now:        time.Now,
	}
	// ACKs are signed with the first configured worker key so workers can
	// authenticate them; an empty workers list leaves ACKs unsigned.
	if len(cfg.Workers) > 0 {
		c.ackKey = cfg.Workers[0].Key
	}
	return c
}

func (c *UDPCoordinator) Start() error {
	if !c.cfg.Enabled {
		return nil
	}
	if c.cfg.IsPrimary() {
		c.startPrimary()
		return nil
	}
	if c.cfg.IsWorker() {
		return c.startWorker()
	}
	return nil
}

func (c *UDPCoordinator) Stop() {
	if c.stop != nil {
		close(c.stop)
		c.wg.Wait()
		c.stop = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// HandlesStatusPackets reports whether inbound HYSTATUS frames should be
// routed to this coordinator.
func (c *UDPCoordinator) HandlesStatusPackets() bool {
	return c.cfg.IsPrimary()
}

// Registry exposes the primary's worker registry, nil in worker role.
func (c *UDPCoordinator) RegistryView() *Registry { return c.registry }

func (c *UDPCoordinator) startPrimary() {
	c.registry = NewRegistry(c.cfg)
	c.obs.Info("network_mode_primary", "coordinator", config.CoordinatorUDP,
		"worker_timeout_seconds", c.cfg.WorkerTimeoutSeconds,
		"authorized_workers", len(c.cfg.Workers))
	for _, e := range c.cfg.Workers {
		c.obs.Debug("authorized_worker", "id", e.ID)
	}
}

// ProcessStatusUpdate validates a worker status frame and returns the ACK
// datagram to send back, or nil when the frame is unprocessable.
func (c *UDPCoordinator) ProcessStatusUpdate(packet []byte, src string) []byte {
	if c.registry == nil {
		return nil
	}

	status, err := protocol.ParseStatusPacket(packet)
	if err != nil {
		c.obs.Warn("status_rejected", "src", src, "reason", "malformed", "error", err.Error())
		c.obs.RecordStatusRejected()
		telemetry.StatusPackets.WithLabelValues("bad_hmac").Inc()
		return protocol.EncodeAck(protocol.AckBadHMAC, 0, c.ackKey)
	}

	entry, ok := c.registry.FindEntry(status.WorkerID)
	if !ok {
		c.obs.Warn("status_rejected", "src", src, "reason", "unknown_worker", "worker_id", status.WorkerID)
		c.obs.RecordStatusRejected()
		telemetry.StatusPackets.WithLabelValues("unknown_id").Inc()
		return protocol.EncodeAck(protocol.AckUnknownID, status.TimestampMillis, c.ackKey)
	}

	if !protocol.VerifyStatusHMAC(packet, entry.Key) {
		c.obs.Warn("status_rejected", "worker_id", status.WorkerID, "reason", "bad_hmac")
		c.obs.RecordStatusRejected()
		telemetry.StatusPackets.WithLabelValues("bad_hmac").Inc()
		return protocol.EncodeAck(protocol.AckBadHMAC, status.TimestampMillis, c.ackKey)
	}

	now := c.now().UnixMilli()
	if abs64(now-status.TimestampMillis) > statusSkewWindow.Milliseconds() {
		c.obs.Warn("status_rejected", "worker_id", status.WorkerID, "reason", "stale_timestamp")
		c.obs.RecordStatusRejected()
		telemetry.StatusPackets.WithLabelValues("stale").Inc()
		return protocol.EncodeAck(protocol.AckStale, status.TimestampMillis, c.ackKey)
	}

	state := &WorkerState{
		ID:      status.WorkerID,
		Name:    status.Name,
		MOTD:    status.MOTD,
		Online:  status.Online,
		Max:     status.Max,
		Port:    status.Port,
		Version: status.Version,
		Players: playersFromEntries(status.Players),
	}
	isNew := c.registry.Update(state)
	c.obs.RecordStatusAccepted()
	telemetry.StatusPackets.WithLabelValues("ok").Inc()

	if c.cfg.LogStatusUpdates {
		workerTotal := c.registry.TotalOnline()
		networkTotal := int32(len(c.host.Players())) + workerTotal
		if isNew {
			c.obs.Info("worker_connected", "worker_id", status.WorkerID,
				"players", status.Online, "worker_total", workerTotal, "network_total", networkTotal)
		} else {
			c.obs.Info("worker_update", "worker_id", status.WorkerID,
				"players", status.Online, "max", status.Max,
				"worker_total", workerTotal, "network_total", networkTotal)
		}
	}

	if c.invalidate != nil {
		c.invalidate()
	}
	return protocol.EncodeAck(protocol.AckOK, status.TimestampMillis, c.ackKey)
}

// GetAggregate merges the fresh worker states into one network view.
func (c *UDPCoordinator) GetAggregate(includePlayers bool) (*Aggregate, error) {
	if !c.cfg.IsPrimary() || c.registry == nil {
		return Empty(), nil
	}

	fresh := c.registry.Fresh()
	agg := &Aggregate{
		TotalOnline: c.registry.TotalOnline(),
		TotalMax:    c.registry.TotalMax(),
		Remotes:     make([]RemoteServer, 0, len(fresh)),
	}
	for _, w := range fresh {
		var players []host.Player
		if includePlayers {
			players = w.Players
		}
		agg.Remotes = append(agg.Remotes, RemoteServer{
			ID:        w.ID,
			Name:      w.Name,
			MOTD:      w.MOTD,
			Online:    w.Online,
			Max:       w.Max,
			Port:      w.Port,
			Version:   w.Version,
			Reachable: true,
			UpdatedAt: w.updatedAt.UnixMilli(),
			Players:   players,
		})
	}
	if includePlayers {
		agg.Players = c.registry.Players()
	}
	return agg, nil
}

func (c *UDPCoordinator) MetricsSummary() string { return c.obs.MetricsSummary() }

func (c *UDPCoordinator) startWorker() error {
	targets := c.cfg.PrimaryTargets()
	if len(targets) == 0 {
		c.obs.Warn("network_mode_worker", "coordinator", config.CoordinatorUDP,
			"warning", "no primary servers configured")
		return nil
	}

	c.obs.Info("network_mode_worker", "coordinator", config.CoordinatorUDP,
		"worker_id", c.cfg.ID, "update_interval_seconds", c.cfg.UpdateIntervalSeconds,
		"primaries", len(targets))

	c.targets = make([]*net.UDPAddr, 0, len(targets))
	for _, t := range targets {
		addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", t.Host, t.Port))
		if err != nil {
			c.obs.Warn("primary_resolve_failed", "host", t.Host, "port", t.Port, "error", err.Error())
			continue
		}
		c.targets = append(c.targets, addr)
		c.obs.Debug("primary_target", "addr", addr.String())
	}
	if len(c.targets) == 0 {
		return fmt.Errorf("no resolvable primary targets")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("open worker socket: %w", err)
	}
	c.conn = conn

	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.publishLoop()
	c.obs.Info("udp_worker_started")
	return nil
}

func (c *UDPCoordinator) publishLoop() {
	defer c.wg.Done()
	interval := time.Duration(c.cfg.UpdateIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sendStatusUpdate()
		}
	}
}

func (c *UDPCoordinator) sendStatusUpdate() {
	start := c.now()
	c.obs.RecordPublishAttempt()

	frame := protocol.EncodeStatusPacket(c.buildStatus(), c.cfg.Key)

	var sent, failed int
	for _, addr := range c.targets {
		if _, err := c.conn.WriteToUDP(frame, addr); err != nil {
			failed++
			c.obs.Warn("status_send_failed", "primary", addr.String(), "error", err.Error())
			continue
		}
		sent++
	}

	if sent > 0 {
		c.obs.RecordPublishSuccess(c.now().Sub(start).Milliseconds())
	} else {
		c.obs.RecordPublishFailure()
	}
	if c.cfg.LogStatusUpdates {
		c.obs.Info("status_sent", "primaries_ok", sent, "primaries_failed", failed)
	}
}

func (c *UDPCoordinator) buildStatus() *protocol.StatusPacket {
	players := c.host.Players()
	entries := make([]protocol.PlayerEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, protocol.PlayerEntry{Username: p.Username, UUID: p.UUID})
	}
	return &protocol.StatusPacket{
		WorkerID:        c.cfg.ID,
		Name:            c.host.ServerName(),
		MOTD:            c.host.MOTD(),
		Online:          int32(len(players)),
		Max:             int32(c.host.MaxPlayers()),
		Port:            int32(c.host.BindPort()),
		Version:         c.host.Version(),
		Players:         entries,
		TimestampMillis: c.now().UnixMilli(),
	}
}

func playersFromEntries(entries []protocol.PlayerEntry) []host.Player {
	out := make([]host.Player, 0, len(entries))
	for _, e := range entries {
		out = append(out, host.Player{Username: e.Username, UUID: e.UUID})
	}
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
