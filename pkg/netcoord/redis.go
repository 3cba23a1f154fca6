package netcoord

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hyquery/pkg/config"
	"hyquery/pkg/host"
)

const (
	keyPrefix              = "hyquery"
	aggregateCacheTTL      = time.Second
	maxPublishBackoff      = 60 * time.Second
	randomWorkerIDLength   = 8
	randomWorkerIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

type cachedAggregate struct {
	aggregate *Aggregate
	loadedAt  time.Time
}

// StoreCoordinator publishes and aggregates worker snapshots through a
// shared store. It is fail-closed: startup aborts when the store does not
// answer the health probe, and read failures surface to the query path
// instead of silently degrading to local-only data.
type StoreCoordinator struct {
	cfg  *config.NetworkConfig
	obs  *Observability
	host host.Host

	client     StoreClient
	ownsClient bool

	publishNamespace string
	readNamespaces   []string
	staleAfter       time.Duration
	publishInterval  time.Duration
	snapshotTTLSecs  int64

	workerID          string
	workerIDGenerated bool

	cachedWithPlayers    atomic.Pointer[cachedAggregate]
	cachedWithoutPlayers atomic.Pointer[cachedAggregate]

	// touched only from the publisher goroutine
	consecutiveFailures int
	nextAttemptAt       time.Time

	stop chan struct{}
	wg   sync.WaitGroup

	now func() time.Time
}

// NewStore builds the coordinator around client. When ownsClient is set,
// Stop closes the client.
func NewStore(cfg *config.NetworkConfig, h host.Host, obs *Observability, client StoreClient, ownsClient bool) *StoreCoordinator {
	interval := max(1, cfg.Redis.PublishIntervalSeconds)
	c := &StoreCoordinator{
		cfg:              cfg,
		obs:              obs,
		host:             h,
		client:           client,
		ownsClient:       ownsClient,
		publishNamespace: config.NormalizedNamespace(cfg.Namespace),
		readNamespaces:   cfg.ReadNamespaces(),
		staleAfter:       time.Duration(max(1, cfg.StaleAfterSeconds)) * time.Second,
		publishInterval:  time.Duration(interval) * time.Second,
		snapshotTTLSecs:  max(1, max(int64(cfg.StaleAfterSeconds)*2, int64(interval)*3)),
		now:              time.Now,
	}
	c.workerID = strings.TrimSpace(cfg.ID)
	if c.workerID == "" {
		c.workerID = randomWorkerID()
		c.workerIDGenerated = true
	}
	return c
}

func randomWorkerID() string {
	b := make([]byte, randomWorkerIDLength)
	for i := range b {
		b[i] = randomWorkerIDAlphabet[rand.IntN(len(randomWorkerIDAlphabet))]
	}
	return string(b)
}

func (c *StoreCoordinator) Start() error {
	if !c.cfg.Enabled {
		return nil
	}

	if err := c.client.ConnectAndValidate(context.Background()); err != nil {
		return fmt.Errorf("store coordinator startup failed: %w", err)
	}

	role := config.RoleWorker
	if c.cfg.IsPrimary() {
		role = config.RolePrimary
	}
	c.obs.Info("network_mode_store", "role", role,
		"coordinator", config.CoordinatorRedis,
		"namespace", c.publishNamespace,
		"read_namespaces", c.readNamespaces,
		"stale_after_seconds", c.cfg.StaleAfterSeconds,
		"endpoint", fmt.Sprintf("%s:%d", c.cfg.Redis.Host, c.cfg.Redis.Port),
		"tls", c.cfg.Redis.TLS,
		"acl_username_configured", c.cfg.Redis.Username != "")
	if c.cfg.IsWorker() && c.workerIDGenerated {
		c.obs.Warn("worker_id_generated", "worker_id", c.workerID,
			"msg", "network.id is missing or blank; the generated id will change on restart")
	}

	if c.cfg.IsWorker() {
		c.stop = make(chan struct{})
		c.wg.Add(1)
		go c.publishLoop()
		c.obs.Info("store_publisher_started", "interval_seconds", int(c.publishInterval.Seconds()))
	}
	return nil
}

func (c *StoreCoordinator) Stop() {
	if c.stop != nil {
		close(c.stop)
		c.wg.Wait()
		c.stop = nil
	}
	if c.ownsClient {
		_ = c.client.Close()
	}
	c.consecutiveFailures = 0
	c.nextAttemptAt = time.Time{}
}

func (c *StoreCoordinator) publishLoop() {
	defer c.wg.Done()
	// publish once immediately so a fresh worker shows up without
	// waiting a full interval
	c.publishLocalSnapshot()
	ticker := time.NewTicker(c.publishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.publishLocalSnapshot()
		}
	}
}

func (c *StoreCoordinator) publishLocalSnapshot() {
	start := c.now()
	if start.Before(c.nextAttemptAt) {
		return
	}
	c.obs.RecordPublishAttempt()

	payload := c.buildLocalSnapshot()
	raw, err := json.Marshal(payload)
	if err != nil {
		c.obs.RecordPublishFailure()
		c.handlePublishFailure(err)
		return
	}

	err = c.client.PublishSnapshot(context.Background(),
		serverKey(c.publishNamespace, payload.ServerID),
		indexKey(c.publishNamespace),
		c.snapshotTTLSecs, payload.UpdatedAtMillis, payload.ServerID, string(raw))
	if err != nil {
		c.obs.RecordPublishFailure()
		c.handlePublishFailure(err)
		return
	}

	if c.consecutiveFailures > 0 {
		c.obs.Warn("store_publish_recovered", "failures", c.consecutiveFailures)
	}
	c.consecutiveFailures = 0
	c.nextAttemptAt = time.Time{}
	c.obs.RecordPublishSuccess(c.now().Sub(start).Milliseconds())

	if c.cfg.LogStatusUpdates {
		c.obs.Info("snapshot_published", "worker_id", payload.ServerID,
			"online", payload.OnlinePlayers, "max", payload.MaxPlayers)
	}
}

func (c *StoreCoordinator) handlePublishFailure(cause error) {
	c.consecutiveFailures++
	backoff := c.publishBackoff(c.consecutiveFailures)
	c.nextAttemptAt = c.now().Add(backoff)
	c.obs.Warn("store_publish_failed", "failures", c.consecutiveFailures,
		"error", cause.Error(), "backoff_ms", backoff.Milliseconds())
}

// publishBackoff starts at the publish interval and doubles per
// consecutive failure, capped at 60s.
func (c *StoreCoordinator) publishBackoff(failures int) time.Duration {
	backoff := c.publishInterval
	for i := 0; i < failures-1 && backoff < maxPublishBackoff; i++ {
		backoff = min(maxPublishBackoff, backoff*2)
	}
	return max(c.publishInterval, backoff)
}

func (c *StoreCoordinator) buildLocalSnapshot() *snapshotPayload {
	players := c.host.Players()
	entries := make([]snapshotPlayer, 0, len(players))
	for _, p := range players {
		entries = append(entries, snapshotPlayer{Username: p.Username, UUID: p.UUID.String()})
	}
	return &snapshotPayload{
		ServerID:        c.workerID,
		ServerName:      c.host.ServerName(),
		MOTD:            c.host.MOTD(),
		OnlinePlayers:   int32(len(players)),
		MaxPlayers:      int32(c.host.MaxPlayers()),
		Port:            int32(c.host.BindPort()),
		Version:         c.host.Version(),
		UpdatedAtMillis: c.now().UnixMilli(),
		Players:         entries,
	}
}

// GetAggregate returns the merged network view, rereading from the store
// at most once per second per shape.
func (c *StoreCoordinator) GetAggregate(includePlayers bool) (*Aggregate, error) {
	if !c.cfg.IsPrimary() {
		return Empty(), nil
	}

	slot := &c.cachedWithoutPlayers
	if includePlayers {
		slot = &c.cachedWithPlayers
	}
	now := c.now()
	if cached := slot.Load(); cached != nil && now.Sub(cached.loadedAt) <= aggregateCacheTTL {
		c.obs.RecordCacheHit()
		return cached.aggregate, nil
	}

	c.obs.RecordCacheMiss()
	agg, err := c.fetchAggregate(includePlayers)
	if err != nil {
		return nil, err
	}
	slot.Store(&cachedAggregate{aggregate: agg, loadedAt: now})
	return agg, nil
}

func (c *StoreCoordinator) fetchAggregate(includePlayers bool) (*Aggregate, error) {
	start := c.now()
	c.obs.RecordReadAttempt()

	ctx := context.Background()
	cutoff := start.UnixMilli() - c.staleAfter.Milliseconds()
	byServerID := make(map[string]*snapshotPayload)

	for _, ns := range c.readNamespaces {
		idx := indexKey(ns)

		evicted, err := c.client.EvictStaleServers(ctx, idx, cutoff)
		if err != nil {
			return nil, c.readFailure(err)
		}
		c.obs.RecordStaleEvictions(evicted)

		ids, err := c.client.GetActiveServerIDs(ctx, idx, cutoff)
		if err != nil {
			return nil, c.readFailure(err)
		}
		if len(ids) == 0 {
			continue
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = serverKey(ns, id)
		}
		raws, err := c.client.GetSnapshots(ctx, keys)
		if err != nil {
			return nil, c.readFailure(err)
		}

		for i, id := range ids {
			if i >= len(raws) || raws[i] == "" {
				continue
			}
			payload := parseSnapshot(raws[i], id)
			if payload == nil {
				c.obs.Warn("snapshot_parse_failed", "server_id", id, "namespace", ns)
				continue
			}
			if payload.UpdatedAtMillis <= cutoff {
				continue
			}
			if existing, ok := byServerID[payload.ServerID]; !ok || payload.UpdatedAtMillis > existing.UpdatedAtMillis {
				byServerID[payload.ServerID] = payload
			}
		}
	}

	agg := &Aggregate{Remotes: make([]RemoteServer, 0, len(byServerID))}
	for _, p := range byServerID {
		var players []host.Player
		if includePlayers {
			players = p.players()
		}
		agg.Remotes = append(agg.Remotes, RemoteServer{
			ID:        p.ServerID,
			Name:      p.ServerName,
			MOTD:      p.MOTD,
			Online:    p.OnlinePlayers,
			Max:       p.MaxPlayers,
			Port:      p.Port,
			Version:   p.Version,
			Reachable: true,
			UpdatedAt: p.UpdatedAtMillis,
			Players:   players,
		})
		agg.TotalOnline += p.OnlinePlayers
		agg.TotalMax += p.MaxPlayers
		if includePlayers {
			for _, pl := range players {
				agg.Players = append(agg.Players, NetworkPlayer{Player: pl, ServerID: p.ServerID})
			}
		}
	}
	sort.Slice(agg.Remotes, func(i, j int) bool { return agg.Remotes[i].ID < agg.Remotes[j].ID })

	c.obs.RecordReadSuccess(len(agg.Remotes), c.now().Sub(start).Milliseconds())
	return agg, nil
}

func (c *StoreCoordinator) readFailure(cause error) error {
	c.obs.RecordReadFailure()
	err := fmt.Errorf("store coordinator read failed: %w", cause)
	c.obs.Error("store_read_failed", "error", cause.Error())
	return err
}

func (c *StoreCoordinator) MetricsSummary() string { return c.obs.MetricsSummary() }

// WorkerID returns the effective worker id, including a generated one.
func (c *StoreCoordinator) WorkerID() string { return c.workerID }

func indexKey(namespace string) string {
	return keyPrefix + ":{" + namespace + "}:index"
}

func serverKey(namespace, serverID string) string {
	return keyPrefix + ":{" + namespace + "}:server:" + serverID
}
