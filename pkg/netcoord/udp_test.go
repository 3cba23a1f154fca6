package netcoord

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"hyquery/pkg/config"
	"hyquery/pkg/host"
	"hyquery/pkg/protocol"
)

func testObs() *Observability {
	return NewObservability(&config.ObservabilityConfig{LogLevel: config.LevelError})
}

func primaryNetworkConfig() *config.NetworkConfig {
	return &config.NetworkConfig{
		Enabled:              true,
		Role:                 config.RolePrimary,
		Coordinator:          config.CoordinatorUDP,
		WorkerTimeoutSeconds: 30,
		Workers: []config.WorkerEntry{
			{ID: "game-1", Key: "key-one"},
			{ID: "hub-*", Key: "key-hub"},
		},
	}
}

func startedPrimary(t *testing.T, invalidate func()) *UDPCoordinator {
	t.Helper()
	c := NewUDP(primaryNetworkConfig(), &host.Static{}, testObs(), invalidate)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func statusFrame(workerID, key string, ts int64) []byte {
	return protocol.EncodeStatusPacket(&protocol.StatusPacket{
		WorkerID:        workerID,
		Name:            "Worker",
		Online:          5,
		Max:             20,
		Players:         []protocol.PlayerEntry{{Username: "alice", UUID: uuid.New()}},
		TimestampMillis: ts,
	}, key)
}

func ackStatus(t *testing.T, raw []byte, key string) byte {
	t.Helper()
	ack, err := protocol.ParseAck(raw, key)
	if err != nil {
		t.Fatalf("ParseAck: %v", err)
	}
	return ack.Status
}

// TestStatusAckCodes walks the four rejection/acceptance outcomes: unknown
// worker, wrong key, stale timestamp, then a clean accept that lands in
// the registry.
func TestStatusAckCodes(t *testing.T) {
	invalidated := 0
	c := startedPrimary(t, func() { invalidated++ })
	now := time.Now().UnixMilli()

	// ACKs are signed with the first configured worker key
	ackKey := "key-one"

	raw := c.ProcessStatusUpdate(statusFrame("game-99", "key-one", now), "w:1")
	if got := ackStatus(t, raw, ackKey); got != protocol.AckUnknownID {
		t.Fatalf("unknown worker ack = %#x, want UNKNOWN_ID", got)
	}

	raw = c.ProcessStatusUpdate(statusFrame("game-1", "wrong-key", now), "w:1")
	if got := ackStatus(t, raw, ackKey); got != protocol.AckBadHMAC {
		t.Fatalf("wrong key ack = %#x, want BAD_HMAC", got)
	}

	raw = c.ProcessStatusUpdate(statusFrame("game-1", "key-one", now-60_000), "w:1")
	if got := ackStatus(t, raw, ackKey); got != protocol.AckStale {
		t.Fatalf("stale ack = %#x, want STALE", got)
	}
	if invalidated != 0 {
		t.Fatal("rejected packets must not invalidate the cache")
	}

	raw = c.ProcessStatusUpdate(statusFrame("game-1", "key-one", now), "w:1")
	if got := ackStatus(t, raw, ackKey); got != protocol.AckOK {
		t.Fatalf("accept ack = %#x, want OK", got)
	}
	if invalidated != 1 {
		t.Fatalf("cache invalidations = %d, want 1", invalidated)
	}

	fresh := c.RegistryView().Fresh()
	if len(fresh) != 1 || fresh[0].ID != "game-1" || fresh[0].Online != 5 {
		t.Fatalf("registry state wrong after accept: %+v", fresh)
	}
}

func TestStatusWildcardWorkerAccepted(t *testing.T) {
	c := startedPrimary(t, nil)
	raw := c.ProcessStatusUpdate(statusFrame("hub-eu-3", "key-hub", time.Now().UnixMilli()), "w:2")
	if got := ackStatus(t, raw, "key-one"); got != protocol.AckOK {
		t.Fatalf("wildcard worker ack = %#x, want OK", got)
	}
}

func TestStatusMalformedGetsBadHMACAck(t *testing.T) {
	c := startedPrimary(t, nil)
	garbage := append([]byte("HYSTATUS"), make([]byte, 50)...)
	raw := c.ProcessStatusUpdate(garbage, "w:3")
	ack, err := protocol.ParseAck(raw, "key-one")
	if err != nil {
		t.Fatalf("ParseAck: %v", err)
	}
	if ack.Status != protocol.AckBadHMAC || ack.TimestampMillis != 0 {
		t.Fatalf("malformed frame ack = %+v", ack)
	}
}

// TestStatusIdempotent applies the same packet twice; the second accept
// must not change the visible aggregate.
func TestStatusIdempotent(t *testing.T) {
	c := startedPrimary(t, nil)
	frame := statusFrame("game-1", "key-one", time.Now().UnixMilli())

	c.ProcessStatusUpdate(frame, "w:1")
	first, _ := c.GetAggregate(true)
	c.ProcessStatusUpdate(frame, "w:1")
	second, _ := c.GetAggregate(true)

	if first.TotalOnline != second.TotalOnline || len(first.Remotes) != len(second.Remotes) ||
		len(first.Players) != len(second.Players) {
		t.Fatalf("aggregate changed on duplicate packet: %+v vs %+v", first, second)
	}
}

func TestGetAggregateFreshOnly(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	c := NewUDP(primaryNetworkConfig(), &host.Static{}, testObs(), nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	c.registry.now = func() time.Time { return now }

	c.registry.Update(&WorkerState{ID: "stale", Online: 9, Max: 10})
	now = base.Add(40 * time.Second)
	c.registry.Update(&WorkerState{ID: "live", Online: 2, Max: 10,
		Players: []host.Player{{Username: "bob"}}})

	agg, err := c.GetAggregate(true)
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	if len(agg.Remotes) != 1 || agg.Remotes[0].ID != "live" {
		t.Fatalf("stale worker in aggregate: %+v", agg.Remotes)
	}
	if !agg.Remotes[0].Reachable {
		t.Fatal("fresh worker should be reachable")
	}
	if agg.TotalOnline != 2 || agg.TotalMax != 10 {
		t.Fatalf("totals = %d/%d, want 2/10", agg.TotalOnline, agg.TotalMax)
	}
	if len(agg.Players) != 1 || agg.Players[0].ServerID != "live" {
		t.Fatalf("players wrong: %+v", agg.Players)
	}
}

func TestWorkerRoleAggregateEmpty(t *testing.T) {
	cfg := &config.NetworkConfig{Enabled: true, Role: config.RoleWorker}
	c := NewUDP(cfg, &host.Static{}, testObs(), nil)
	agg, err := c.GetAggregate(true)
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	if agg.TotalOnline != 0 || len(agg.Remotes) != 0 {
		t.Fatalf("worker aggregate not empty: %+v", agg)
	}
	if c.HandlesStatusPackets() {
		t.Fatal("worker must not accept status packets")
	}
}
