// Package query implements the request handler installed ahead of the
// game transport: it classifies inbound datagrams, answers V1 and V2
// queries, and routes worker status frames to the coordinator.
package query

import (
	"errors"
	"net/netip"
	"sort"
	"time"

	"hyquery/pkg/cache"
	"hyquery/pkg/challenge"
	"hyquery/pkg/config"
	"hyquery/pkg/host"
	"hyquery/pkg/logger"
	"hyquery/pkg/netcoord"
	"hyquery/pkg/protocol"
	"hyquery/pkg/ratelimit"
	"hyquery/pkg/telemetry"
)

// errAggregateUnavailable aborts a response build when the network view
// cannot be read. The request is dropped, never answered with local-only
// counts.
var errAggregateUnavailable = errors.New("aggregate unavailable")

// StatusSink accepts raw worker status frames on a primary and returns
// the ACK datagram to send back, or nil.
type StatusSink interface {
	ProcessStatusUpdate(packet []byte, src string) []byte
}

// Handler processes one inbound datagram at a time and is safe for
// concurrent use from multiple listener channels.
type Handler struct {
	cfg  *config.Config
	host host.Host

	limiter   *ratelimit.Limiter
	cache     *cache.ResponseCache
	challenge *challenge.Service
	access    *Access
	provider  netcoord.Provider
	sink      StatusSink

	// networked marks a primary serving aggregated fleet data
	networked bool
	v1        bool
	v2        bool
}

// New wires a handler from the loaded configuration. provider may be nil
// (no network aggregation); sink may be nil (status frames dropped).
func New(cfg *config.Config, h host.Host, provider netcoord.Provider, sink StatusSink) *Handler {
	hd := &Handler{
		cfg:       cfg,
		host:      h,
		challenge: challenge.New(cfg.Secret(), cfg.ChallengeTokenValiditySeconds),
		access:    NewAccess(cfg.Authentication),
		provider:  provider,
		sink:      sink,
		networked: cfg.IsNetworkPrimary() && provider != nil,
		v1:        cfg.V1On(),
		v2:        cfg.V2On(),
	}
	if hd.provider == nil {
		hd.provider = netcoord.Noop{}
	}
	if cfg.RateLimitEnabled {
		hd.limiter = ratelimit.New(float64(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	}
	if cfg.CacheEnabled && cfg.CacheTTLSeconds > 0 {
		hd.cache = cache.New(time.Duration(cfg.CacheTTLSeconds)*time.Second, hd.buildV1)
	}
	return hd
}

// InvalidateCache clears cached V1 responses. Wired to the coordinator so
// accepted status updates are reflected promptly.
func (h *Handler) InvalidateCache() {
	if h.cache != nil {
		h.cache.Invalidate()
	}
}

// HandlePacket inspects one datagram. It returns false only for foreign
// traffic, which the caller must forward unchanged to the game transport;
// true means the datagram was consumed (answered or dropped).
func (h *Handler) HandlePacket(b []byte, src netip.AddrPort, send func([]byte)) bool {
	switch protocol.Classify(b) {
	case protocol.ClassV2Query:
		if h.v2 {
			h.handleV2(b, src, send)
		} else {
			telemetry.DroppedTotal.WithLabelValues("protocol_disabled").Inc()
		}
		return true
	case protocol.ClassV1Query:
		if h.v1 {
			h.handleV1(b, src, send)
		} else {
			telemetry.DroppedTotal.WithLabelValues("protocol_disabled").Inc()
		}
		return true
	case protocol.ClassStatus:
		h.handleStatus(b, src, send)
		return true
	case protocol.ClassKnownOther:
		logger.Debug("drop_unhandled_packet", "src", src.String())
		telemetry.DroppedTotal.WithLabelValues("unhandled").Inc()
		return true
	default:
		return false
	}
}

func (h *Handler) allow(src netip.AddrPort) bool {
	if h.limiter == nil {
		return true
	}
	if h.limiter.Allow(src.Addr()) {
		return true
	}
	telemetry.DroppedTotal.WithLabelValues("rate_limited").Inc()
	return false
}

func (h *Handler) handleV1(b []byte, src netip.AddrPort, send func([]byte)) {
	if !h.allow(src) {
		logger.Debug("rate_limited_v1", "src", src.String())
		return
	}

	kind := cache.Basic
	endpoint := "basic"
	if protocol.V1QueryType(b) == protocol.V1TypeFull {
		kind = cache.Full
		endpoint = "full"
	}

	var (
		resp []byte
		err  error
	)
	if h.cache != nil {
		resp, err = h.cache.Get(kind)
	} else {
		resp, err = h.buildV1(kind)
	}
	if err != nil {
		// already logged and counted by aggregate(); no datagram goes out
		return
	}

	telemetry.QueriesTotal.WithLabelValues("v1", endpoint).Inc()
	telemetry.ResponseBytes.Observe(float64(len(resp)))
	send(resp)
}

func (h *Handler) handleV2(b []byte, src netip.AddrPort, send func([]byte)) {
	req, err := protocol.ParseV2Request(b)
	if err != nil {
		logger.Warn("drop_malformed_v2", "src", src.String(), "error", err.Error())
		telemetry.DroppedTotal.WithLabelValues("malformed").Inc()
		return
	}

	if req.Type == protocol.QueryChallenge {
		if !h.allow(src) {
			logger.Debug("rate_limited_v2_challenge", "src", src.String())
			return
		}
		token := h.challenge.Mint(src.Addr())
		telemetry.QueriesTotal.WithLabelValues("v2", "challenge").Inc()
		send(protocol.EncodeChallengeResponse(req.Family, token))
		return
	}

	if !h.allow(src) {
		logger.Debug("rate_limited_v2", "src", src.String())
		return
	}

	if !h.challenge.Verify(req.ChallengeToken, src.Addr()) {
		logger.Warn("drop_invalid_challenge_token", "src", src.String())
		telemetry.DroppedTotal.WithLabelValues("invalid_token").Inc()
		return
	}

	effective := req.Type
	if effective == protocol.QueryUnknown {
		effective = protocol.QueryBasic
	}

	if !h.access.Allowed(effective, req.AuthToken) {
		logger.Debug("v2_auth_required", "src", src.String(), "endpoint", effective.String())
		resp := h.buildV2Basic(req, protocol.FlagAuthRequired)
		telemetry.ResponseBytes.Observe(float64(len(resp)))
		send(resp)
		return
	}

	var resp []byte
	if effective == protocol.QueryPlayers {
		resp = h.buildV2Players(req)
	} else {
		resp = h.buildV2Basic(req, 0)
	}
	if resp == nil {
		return
	}
	telemetry.QueriesTotal.WithLabelValues("v2", effective.String()).Inc()
	telemetry.ResponseBytes.Observe(float64(len(resp)))
	send(resp)
}

func (h *Handler) handleStatus(b []byte, src netip.AddrPort, send func([]byte)) {
	if !h.allow(src) {
		logger.Debug("rate_limited_status", "src", src.String())
		return
	}
	if h.sink == nil {
		logger.Debug("drop_status_no_coordinator", "src", src.String())
		telemetry.DroppedTotal.WithLabelValues("no_coordinator").Inc()
		return
	}
	if ack := h.sink.ProcessStatusUpdate(b, src.String()); ack != nil {
		send(ack)
	}
}

// aggregate fetches the network view. Failure is fail-closed: the request
// is dropped rather than answered with local-only data.
func (h *Handler) aggregate(includePlayers bool) (*netcoord.Aggregate, bool) {
	if !h.networked {
		return netcoord.Empty(), true
	}
	agg, err := h.provider.GetAggregate(includePlayers)
	if err != nil {
		logger.Error("aggregate_read_failed", "error", err.Error())
		telemetry.DroppedTotal.WithLabelValues("aggregate_error").Inc()
		return nil, false
	}
	return agg, true
}

func (h *Handler) motd() string {
	if h.cfg.UseCustomMotd {
		return h.cfg.CustomMotd
	}
	return h.host.MOTD()
}

func (h *Handler) buildV2Basic(req *protocol.V2Request, baseFlags uint16) []byte {
	agg, ok := h.aggregate(false)
	if !ok {
		return nil
	}

	players := h.host.Players()
	online := int32(len(players))
	maxPlayers := int32(h.host.MaxPlayers())

	flags := baseFlags
	if h.networked {
		online += agg.TotalOnline
		maxPlayers += agg.TotalMax
		flags |= protocol.FlagIsNetwork
	}

	info := &protocol.ServerInfo{
		Name:            h.host.ServerName(),
		MOTD:            h.motd(),
		Online:          online,
		Max:             maxPlayers,
		Version:         h.host.Version(),
		ProtocolVersion: h.host.ProtocolVersion(),
		ProtocolHash:    h.host.ProtocolHash(),
	}
	if req.Flags&protocol.FlagHasAddress != 0 && h.host.PublicHost() != "" {
		flags |= protocol.FlagHasAddress
		info.Host = h.host.PublicHost()
		info.Port = uint16(h.host.BindPort())
	}

	return protocol.EncodeBasicResponse(req.Family, req.RequestID, flags, info)
}

func (h *Handler) buildV2Players(req *protocol.V2Request) []byte {
	agg, ok := h.aggregate(true)
	if !ok {
		return nil
	}

	local := h.host.Players()
	entries := make([]protocol.PlayerEntry, 0, len(local)+len(agg.Players))
	for _, p := range local {
		entries = append(entries, protocol.PlayerEntry{Username: p.Username, UUID: p.UUID})
	}

	var flags uint16
	if h.networked {
		flags |= protocol.FlagIsNetwork
		for _, p := range agg.Players {
			entries = append(entries, protocol.PlayerEntry{Username: p.Username, UUID: p.UUID})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Username != entries[j].Username {
			return entries[i].Username < entries[j].Username
		}
		return entries[i].UUID.String() < entries[j].UUID.String()
	})

	return protocol.EncodePlayersResponse(req.Family, req.RequestID, flags, req.Offset, entries)
}

// buildV1 assembles a V1 response of the given kind from live state. Also
// used as the cache rebuild callback. An aggregate read failure aborts the
// build so the request is dropped instead of answered with local-only
// counts.
func (h *Handler) buildV1(kind cache.Kind) ([]byte, error) {
	includePlayers := kind == cache.Full

	agg, ok := h.aggregate(includePlayers)
	if !ok {
		return nil, errAggregateUnavailable
	}

	local := h.host.Players()
	resp := &protocol.V1Response{
		Type:    protocol.V1TypeBasic,
		Name:    h.host.ServerName(),
		MOTD:    h.motd(),
		Online:  uint32(int32(len(local)) + agg.TotalOnline),
		Max:     uint32(int32(h.host.MaxPlayers()) + agg.TotalMax),
		Port:    uint32(h.host.BindPort()),
		Version: h.host.Version(),
	}
	if kind != cache.Full {
		return resp.Encode(), nil
	}

	resp.Type = protocol.V1TypeFull
	if h.cfg.ShowPlayerList {
		players := make([]protocol.V1Player, 0, len(local)+len(agg.Players))
		for _, p := range local {
			players = append(players, protocol.V1Player{
				PlayerEntry: protocol.PlayerEntry{Username: p.Username, UUID: p.UUID},
			})
		}
		for _, p := range agg.Players {
			players = append(players, protocol.V1Player{
				PlayerEntry: protocol.PlayerEntry{Username: p.Username, UUID: p.UUID},
				ServerID:    p.ServerID,
			})
		}
		resp.Players = players
	}
	if h.cfg.ShowPlugins {
		resp.Plugins = h.host.Plugins()
	}
	for _, r := range agg.Remotes {
		status := protocol.V1StatusOffline
		if r.Reachable {
			status = protocol.V1StatusOnline
		}
		entries := make([]protocol.PlayerEntry, 0, len(r.Players))
		for _, p := range r.Players {
			entries = append(entries, protocol.PlayerEntry{Username: p.Username, UUID: p.UUID})
		}
		resp.RemoteServers = append(resp.RemoteServers, protocol.V1RemoteServer{
			ID:              r.ID,
			Name:            r.Name,
			MOTD:            r.MOTD,
			Online:          r.Online,
			Max:             r.Max,
			Status:          status,
			UpdatedAtMillis: r.UpdatedAt,
			Players:         entries,
		})
	}
	return resp.Encode(), nil
}

// LimiterSize reports how many sources the rate limiter tracks, for the
// metrics reporter. Zero when rate limiting is off.
func (h *Handler) LimiterSize() int {
	if h.limiter == nil {
		return 0
	}
	return h.limiter.Size()
}
