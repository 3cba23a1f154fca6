package protocol

import "fmt"

// V1 query types.
const (
	V1TypeBasic byte = 0x00
	V1TypeFull  byte = 0x01
)

// V1QueryType returns the type byte of a classified V1 request.
func V1QueryType(b []byte) byte {
	return b[len(MagicV1Request)]
}

// V1Player is a player entry in a V1 full response. ServerID is empty for
// local players and names the source server for fleet players.
type V1Player struct {
	PlayerEntry
	ServerID string
}

// V1RemoteServer is one remote server snapshot in a V1 full response.
// The V1 wire omits port and version; only the listed fields are encoded.
type V1RemoteServer struct {
	ID              string
	Name            string
	MOTD            string
	Online          int32
	Max             int32
	Status          byte
	UpdatedAtMillis int64
	Players         []PlayerEntry
}

// V1 remote server status bytes.
const (
	V1StatusOffline byte = 0x00
	V1StatusOnline  byte = 0x01
)

// V1Response is a decoded HYREPLY\0 datagram. The list fields are only
// present for full responses; lists the server hides are encoded as count 0.
type V1Response struct {
	Type    byte
	Name    string
	MOTD    string
	Online  uint32
	Max     uint32
	Port    uint32
	Version string

	Players       []V1Player
	Plugins       []string
	RemoteServers []V1RemoteServer
}

// Encode serializes the response. Basic responses stop after the version
// string; full responses append the three lists.
func (r *V1Response) Encode() []byte {
	b := make([]byte, 0, 256)
	b = append(b, MagicV1Response...)
	b = append(b, r.Type)
	b = appendString(b, r.Name)
	b = appendString(b, r.MOTD)
	b = appendUint32(b, r.Online)
	b = appendUint32(b, r.Max)
	b = appendUint32(b, r.Port)
	b = appendString(b, r.Version)

	if r.Type != V1TypeFull {
		return b
	}

	b = appendUint32(b, uint32(len(r.Players)))
	for _, p := range r.Players {
		b = appendString(b, p.Username)
		b = appendUUID(b, p.UUID)
		b = appendString(b, p.ServerID)
	}

	b = appendUint32(b, uint32(len(r.Plugins)))
	for _, name := range r.Plugins {
		b = appendString(b, name)
	}

	b = appendUint32(b, uint32(len(r.RemoteServers)))
	for _, srv := range r.RemoteServers {
		b = appendString(b, srv.ID)
		b = appendString(b, srv.Name)
		b = appendString(b, srv.MOTD)
		b = appendInt32(b, srv.Online)
		b = appendInt32(b, srv.Max)
		b = append(b, srv.Status)
		b = appendInt64(b, srv.UpdatedAtMillis)
		b = appendUint32(b, uint32(len(srv.Players)))
		for _, p := range srv.Players {
			b = appendString(b, p.Username)
			b = appendUUID(b, p.UUID)
		}
	}

	return b
}

// ParseV1Response decodes a HYREPLY\0 datagram. Used by the client tool and
// tests; the server never parses V1 responses.
func ParseV1Response(b []byte) (*V1Response, error) {
	if !hasPrefix(b, MagicV1Response) {
		return nil, fmt.Errorf("not a V1 response")
	}
	r := &reader{b: b, off: len(MagicV1Response)}

	out := &V1Response{Type: r.byte_()}
	out.Name = r.string_()
	out.MOTD = r.string_()
	out.Online = r.uint32()
	out.Max = r.uint32()
	out.Port = r.uint32()
	out.Version = r.string_()

	if out.Type == V1TypeFull {
		n := int(r.uint32())
		for i := 0; i < n && r.err == nil; i++ {
			var p V1Player
			p.Username = r.string_()
			p.UUID = r.uuid()
			p.ServerID = r.string_()
			out.Players = append(out.Players, p)
		}

		n = int(r.uint32())
		for i := 0; i < n && r.err == nil; i++ {
			out.Plugins = append(out.Plugins, r.string_())
		}

		n = int(r.uint32())
		for i := 0; i < n && r.err == nil; i++ {
			var srv V1RemoteServer
			srv.ID = r.string_()
			srv.Name = r.string_()
			srv.MOTD = r.string_()
			srv.Online = r.int32()
			srv.Max = r.int32()
			srv.Status = r.byte_()
			srv.UpdatedAtMillis = r.int64()
			pc := int(r.uint32())
			for j := 0; j < pc && r.err == nil; j++ {
				var p PlayerEntry
				p.Username = r.string_()
				p.UUID = r.uuid()
				srv.Players = append(srv.Players, p)
			}
			out.RemoteServers = append(out.RemoteServers, srv)
		}
	}

	if r.err != nil {
		return nil, fmt.Errorf("malformed V1 response: %w", r.err)
	}
	return out, nil
}
