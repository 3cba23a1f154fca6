package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// ACK status codes.
const (
	AckOK        byte = 0x00
	AckUnknownID byte = 0x01
	AckBadHMAC   byte = 0x02
	AckStale     byte = 0x03
)

const (
	statusPrefixSize = 8 + 1 + 8 // magic, version, timestamp
	minStatusSize    = statusPrefixSize + hmacSize
)

// StatusPacket is a worker's HYSTATUS payload.
type StatusPacket struct {
	WorkerID        string
	Name            string
	MOTD            string
	Online          int32
	Max             int32
	Port            int32
	Version         string
	Players         []PlayerEntry
	TimestampMillis int64
}

// EncodeStatusPacket serializes and signs a status frame. The HMAC covers
// magic, version, timestamp, and payload with the HMAC field absent; the
// signature is then inserted between timestamp and payload.
func EncodeStatusPacket(p *StatusPacket, key string) []byte {
	prefix := make([]byte, 0, statusPrefixSize)
	prefix = append(prefix, MagicStatus...)
	prefix = append(prefix, Version)
	prefix = appendInt64(prefix, p.TimestampMillis)

	payload := make([]byte, 0, 256)
	payload = appendString(payload, p.WorkerID)
	payload = appendString(payload, p.Name)
	payload = appendString(payload, p.MOTD)
	payload = appendInt32(payload, p.Online)
	payload = appendInt32(payload, p.Max)
	payload = appendInt32(payload, p.Port)
	payload = appendString(payload, p.Version)
	payload = appendInt32(payload, int32(len(p.Players)))
	for _, pl := range p.Players {
		payload = appendString(payload, pl.Username)
		payload = appendUUID(payload, pl.UUID)
	}

	mac := computeHMAC(append(append([]byte(nil), prefix...), payload...), key)

	b := make([]byte, 0, len(prefix)+hmacSize+len(payload))
	b = append(b, prefix...)
	b = append(b, mac...)
	return append(b, payload...)
}

// ParseStatusPacket decodes a classified HYSTATUS frame. The HMAC is not
// checked here; call VerifyStatusHMAC with the matched worker key.
func ParseStatusPacket(b []byte) (*StatusPacket, error) {
	if len(b) < minStatusSize {
		return nil, errShortPacket
	}
	r := &reader{b: b, off: len(MagicStatus)}

	if v := r.byte_(); v != Version {
		return nil, fmt.Errorf("unsupported status version 0x%02x", v)
	}

	p := &StatusPacket{TimestampMillis: r.int64()}
	r.skip(hmacSize)

	p.WorkerID = r.string_()
	p.Name = r.string_()
	p.MOTD = r.string_()
	p.Online = r.int32()
	p.Max = r.int32()
	p.Port = r.int32()
	p.Version = r.string_()

	n := int(r.int32())
	for i := 0; i < n && r.err == nil; i++ {
		var pl PlayerEntry
		pl.Username = r.string_()
		pl.UUID = r.uuid()
		p.Players = append(p.Players, pl)
	}

	if r.err != nil {
		return nil, fmt.Errorf("malformed status packet: %w", r.err)
	}
	return p, nil
}

// VerifyStatusHMAC recomputes the signature of a raw status frame against
// key. The transmitted HMAC bytes are excised before recomputation.
func VerifyStatusHMAC(b []byte, key string) bool {
	if len(b) < minStatusSize {
		return false
	}
	received := b[statusPrefixSize : statusPrefixSize+hmacSize]

	signed := make([]byte, 0, len(b)-hmacSize)
	signed = append(signed, b[:statusPrefixSize]...)
	signed = append(signed, b[statusPrefixSize+hmacSize:]...)

	return hmac.Equal(received, computeHMAC(signed, key))
}

// EncodeAck builds a signed HYSTATOK frame echoing the status timestamp.
func EncodeAck(status byte, timestampMillis int64, key string) []byte {
	b := make([]byte, 0, 8+1+8+hmacSize)
	b = append(b, MagicAck...)
	b = append(b, status)
	b = appendInt64(b, timestampMillis)
	return append(b, computeHMAC(b, key)...)
}

// Ack is a decoded HYSTATOK frame.
type Ack struct {
	Status          byte
	TimestampMillis int64
}

// ParseAck decodes and authenticates an ACK frame.
func ParseAck(b []byte, key string) (*Ack, error) {
	if !hasPrefix(b, MagicAck) {
		return nil, fmt.Errorf("not an ACK frame")
	}
	if len(b) < 8+1+8+hmacSize {
		return nil, errShortPacket
	}
	signed := b[:8+1+8]
	if !hmac.Equal(b[8+1+8:8+1+8+hmacSize], computeHMAC(signed, key)) {
		return nil, fmt.Errorf("ACK HMAC mismatch")
	}
	r := &reader{b: b, off: 8}
	ack := &Ack{Status: r.byte_(), TimestampMillis: r.int64()}
	return ack, nil
}

func computeHMAC(data []byte, key string) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(data)
	return mac.Sum(nil)
}
