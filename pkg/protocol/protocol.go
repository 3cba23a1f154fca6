// Package protocol implements the HyQuery on-wire formats: the legacy V1
// query protocol, the challenge-authenticated V2 protocol (HYQUERY2 and
// ONEQUERY families), and the HYSTATUS/HYSTATOK worker coordination frames.
//
// All integers are little-endian unless noted. Strings are a 16-bit length
// followed by UTF-8 bytes. UUIDs are two big-endian uint64s (MSB then LSB).
package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// Magic prefixes. Every HyQuery datagram starts with one of these 8 bytes.
var (
	MagicV1Request  = []byte("HYQUERY\x00")
	MagicV1Response = []byte("HYREPLY\x00")
	MagicHyQuery2   = []byte("HYQUERY2")
	MagicHyReply2   = []byte("HYREPLY2")
	MagicOneQuery   = []byte("ONEQUERY")
	MagicOneReply   = []byte("ONEREPLY")
	MagicStatus     = []byte("HYSTATUS")
	MagicAck        = []byte("HYSTATOK")
)

const (
	// Version is the V2 and status frame protocol version byte.
	Version byte = 0x01

	// SafeMTU bounds every response datagram.
	SafeMTU = 1400

	// HeaderSize is the fixed V2 response header length.
	HeaderSize = 17

	// MaxPayloadSize is the V2 payload budget under SafeMTU.
	MaxPayloadSize = SafeMTU - HeaderSize - 50

	ChallengeTokenSize = 32

	hmacSize = 32
)

var errShortPacket = errors.New("packet too short")

// PacketClass is the demultiplexer verdict for an inbound datagram.
type PacketClass int

const (
	// ClassForeign means the datagram is not HyQuery traffic and must be
	// forwarded to the next transport unchanged.
	ClassForeign PacketClass = iota

	// ClassV1Query is a legacy HYQUERY\0 request.
	ClassV1Query

	// ClassV2Query is a HYQUERY2 or ONEQUERY request.
	ClassV2Query

	// ClassStatus is a HYSTATUS worker status packet.
	ClassStatus

	// ClassKnownOther is recognized HyQuery traffic that is never accepted
	// here (responses, ACKs, truncated requests). Dropped.
	ClassKnownOther
)

// Classify inspects the first bytes of a datagram without consuming it.
func Classify(b []byte) PacketClass {
	switch {
	case hasPrefix(b, MagicV1Request):
		if len(b) >= len(MagicV1Request)+1 {
			return ClassV1Query
		}
		return ClassKnownOther
	case hasPrefix(b, MagicHyQuery2), hasPrefix(b, MagicOneQuery):
		if len(b) >= 8+1 {
			return ClassV2Query
		}
		return ClassKnownOther
	case hasPrefix(b, MagicStatus):
		if len(b) >= minStatusSize {
			return ClassStatus
		}
		return ClassKnownOther
	case hasPrefix(b, MagicAck), hasPrefix(b, MagicV1Response),
		hasPrefix(b, MagicHyReply2), hasPrefix(b, MagicOneReply):
		return ClassKnownOther
	}
	return ClassForeign
}

func hasPrefix(b, magic []byte) bool {
	if len(b) < len(magic) {
		return false
	}
	for i, m := range magic {
		if b[i] != m {
			return false
		}
	}
	return true
}

// Family is a V2 magic-byte pair. The response magic always corresponds to
// the request magic the client used.
type Family int

const (
	FamilyHyQuery2 Family = iota
	FamilyOneQuery
)

func (f Family) RequestMagic() []byte {
	if f == FamilyOneQuery {
		return MagicOneQuery
	}
	return MagicHyQuery2
}

func (f Family) ResponseMagic() []byte {
	if f == FamilyOneQuery {
		return MagicOneReply
	}
	return MagicHyReply2
}

func (f Family) String() string {
	if f == FamilyOneQuery {
		return "ONEQUERY"
	}
	return "HYQUERY2"
}

// detectFamily returns the V2 request family, or false for non-V2 bytes.
func detectFamily(b []byte) (Family, bool) {
	if hasPrefix(b, MagicOneQuery) {
		return FamilyOneQuery, true
	}
	if hasPrefix(b, MagicHyQuery2) {
		return FamilyHyQuery2, true
	}
	return 0, false
}

// PlayerEntry is the (username, uuid) pair used across frames.
type PlayerEntry struct {
	Username string
	UUID     uuid.UUID
}

// ---- buffer helpers ----

func appendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendInt64(b []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(v))
}

func appendString(b []byte, s string) []byte {
	b = appendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendUUID(b []byte, u uuid.UUID) []byte {
	return append(b, u[:]...)
}

// reader decodes little-endian frames with sticky error state so parse
// sites stay flat; check err once at the end.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = errShortPacket
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) skip(n int) { r.take(n) }

func (r *reader) byte_() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) int32() int32 { return int32(r.uint32()) }

func (r *reader) int64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) string_() string {
	n := int(r.uint16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *reader) uuid() uuid.UUID {
	var u uuid.UUID
	b := r.take(16)
	if b != nil {
		copy(u[:], b)
	}
	return u
}

func (r *reader) remaining() int { return len(r.b) - r.off }
