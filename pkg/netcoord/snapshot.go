package netcoord

import (
	"encoding/json"

	"github.com/google/uuid"

	"hyquery/pkg/host"
)

// snapshotPayload is the JSON document a worker publishes to the shared
// store. Field names are part of the wire contract.
type snapshotPayload struct {
	ServerID        string           `json:"serverId"`
	ServerName      string           `json:"serverName"`
	MOTD            string           `json:"motd"`
	OnlinePlayers   int32            `json:"onlinePlayers"`
	MaxPlayers      int32            `json:"maxPlayers"`
	Port            int32            `json:"port"`
	Version         string           `json:"version"`
	UpdatedAtMillis int64            `json:"updatedAtMillis"`
	Players         []snapshotPlayer `json:"players"`
}

type snapshotPlayer struct {
	Username string `json:"username"`
	UUID     string `json:"uuid"`
}

// parseSnapshot decodes a raw snapshot document, filling missing fields
// and falling back to the index-supplied server id. Returns nil for
// documents that cannot identify their server.
func parseSnapshot(raw, fallbackServerID string) *snapshotPayload {
	var p snapshotPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	if p.ServerID == "" {
		p.ServerID = fallbackServerID
	}
	if p.ServerID == "" {
		return nil
	}
	return &p
}

// players decodes the snapshot's player entries, skipping entries whose
// UUID does not parse.
func (p *snapshotPayload) players() []host.Player {
	out := make([]host.Player, 0, len(p.Players))
	for _, sp := range p.Players {
		id, err := uuid.Parse(sp.UUID)
		if err != nil {
			continue
		}
		out = append(out, host.Player{Username: sp.Username, UUID: id})
	}
	return out
}
