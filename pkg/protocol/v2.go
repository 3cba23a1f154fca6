package protocol

import (
	"encoding/binary"
	"fmt"
)

// V2 query types.
const (
	V2TypeChallenge byte = 0x00
	V2TypeBasic     byte = 0x01
	V2TypePlayers   byte = 0x02
)

// QueryType is the decoded V2 endpoint.
type QueryType int

const (
	QueryChallenge QueryType = iota
	QueryBasic
	QueryPlayers
	QueryUnknown
)

func (t QueryType) String() string {
	switch t {
	case QueryChallenge:
		return "challenge"
	case QueryBasic:
		return "basic"
	case QueryPlayers:
		return "players"
	}
	return "unknown"
}

func queryTypeOf(raw byte) QueryType {
	switch raw {
	case V2TypeChallenge:
		return QueryChallenge
	case V2TypeBasic:
		return QueryBasic
	case V2TypePlayers:
		return QueryPlayers
	}
	return QueryUnknown
}

// V2 request flags.
const FlagRequestHasAuthToken uint16 = 0x0001

// V2 response flags.
const (
	FlagHasMorePlayers uint16 = 0x0001
	FlagAuthRequired   uint16 = 0x0002
	FlagIsNetwork      uint16 = 0x0010
	FlagHasAddress     uint16 = 0x0020
)

// TLV types inside V2 response payloads.
const (
	TLVServerInfo uint16 = 0x0001
	TLVPlayerList uint16 = 0x0002
)

const (
	tlvHeaderSize        = 4
	playerListHeaderSize = 12
)

// V2 request layout after the 8-byte magic and 1-byte type.
const (
	offChallengeToken = 8 + 1
	offRequestID      = offChallengeToken + ChallengeTokenSize
	offFlags          = offRequestID + 4
	offPagination     = offFlags + 2
	offOptionalData   = offPagination + 4
)

// V2Request is a parsed HYQUERY2/ONEQUERY request. ChallengeToken and the
// trailing fields are unset for challenge requests.
type V2Request struct {
	Family         Family
	Type           QueryType
	RequestID      uint32
	Flags          uint16
	Offset         uint32
	ChallengeToken []byte
	AuthToken      []byte
}

// ParseV2Request decodes a classified V2 request datagram.
func ParseV2Request(b []byte) (*V2Request, error) {
	family, ok := detectFamily(b)
	if !ok || len(b) < 8+1 {
		return nil, fmt.Errorf("invalid V2 request magic or packet too short")
	}

	req := &V2Request{Family: family, Type: queryTypeOf(b[8])}
	if req.Type == QueryChallenge {
		return req, nil
	}

	if len(b) < offRequestID {
		return nil, fmt.Errorf("missing V2 challenge token")
	}
	if len(b) < offOptionalData {
		return nil, fmt.Errorf("missing V2 query header fields")
	}

	req.ChallengeToken = append([]byte(nil), b[offChallengeToken:offRequestID]...)
	req.RequestID = binary.LittleEndian.Uint32(b[offRequestID:])
	req.Flags = binary.LittleEndian.Uint16(b[offFlags:])
	req.Offset = binary.LittleEndian.Uint32(b[offPagination:])

	if req.Flags&FlagRequestHasAuthToken != 0 {
		if len(b) < offOptionalData+2 {
			return nil, fmt.Errorf("auth token flag set but auth token length is missing")
		}
		n := int(binary.LittleEndian.Uint16(b[offOptionalData:]))
		start := offOptionalData + 2
		if len(b) < start+n {
			return nil, fmt.Errorf("auth token length exceeds packet size")
		}
		req.AuthToken = append([]byte(nil), b[start:start+n]...)
	}

	return req, nil
}

// EncodeV2Request serializes a request; used by the client tool and tests.
func EncodeV2Request(req *V2Request) []byte {
	b := append([]byte(nil), req.Family.RequestMagic()...)
	switch req.Type {
	case QueryChallenge:
		return append(b, V2TypeChallenge)
	case QueryPlayers:
		b = append(b, V2TypePlayers)
	default:
		b = append(b, V2TypeBasic)
	}

	token := req.ChallengeToken
	if len(token) != ChallengeTokenSize {
		token = make([]byte, ChallengeTokenSize)
	}
	b = append(b, token...)
	b = appendUint32(b, req.RequestID)

	flags := req.Flags
	if len(req.AuthToken) > 0 {
		flags |= FlagRequestHasAuthToken
	}
	b = appendUint16(b, flags)
	b = appendUint32(b, req.Offset)
	if flags&FlagRequestHasAuthToken != 0 {
		b = appendUint16(b, uint16(len(req.AuthToken)))
		b = append(b, req.AuthToken...)
	}
	return b
}

// ServerInfo is the SERVER_INFO TLV value.
type ServerInfo struct {
	Name            string
	MOTD            string
	Online          int32
	Max             int32
	Version         string
	ProtocolVersion int32
	ProtocolHash    string

	// Host and Port are only encoded when the response carries
	// FlagHasAddress and Host is non-empty.
	Host string
	Port uint16
}

// EncodeChallengeResponse builds the fixed 48-byte challenge reply:
// magic, type 0x00, 32-byte token, 7 reserved zero bytes.
func EncodeChallengeResponse(family Family, token []byte) []byte {
	b := make([]byte, 0, 48)
	b = append(b, family.ResponseMagic()...)
	b = append(b, V2TypeChallenge)
	b = append(b, token...)
	return append(b, make([]byte, 7)...)
}

// EncodeBasicResponse builds a V2 response carrying one SERVER_INFO TLV.
func EncodeBasicResponse(family Family, requestID uint32, flags uint16, info *ServerInfo) []byte {
	value := make([]byte, 0, 128)
	value = appendString(value, info.Name)
	value = appendString(value, info.MOTD)
	value = appendInt32(value, info.Online)
	value = appendInt32(value, info.Max)
	value = appendString(value, info.Version)
	value = appendInt32(value, info.ProtocolVersion)
	value = appendString(value, info.ProtocolHash)

	if flags&FlagHasAddress != 0 && info.Host != "" {
		value = appendString(value, info.Host)
		value = appendUint16(value, info.Port)
	}

	payload := appendTLV(nil, TLVServerInfo, value)
	return encodeV2Packet(family, requestID, flags, payload)
}

// EncodePlayersResponse builds a V2 response carrying one PLAYER_LIST TLV
// paginated from offset under the MTU budget. FlagHasMorePlayers is set on
// the returned flags when entries remain past this page.
func EncodePlayersResponse(family Family, requestID uint32, baseFlags uint16, offset uint32, players []PlayerEntry) []byte {
	flags := baseFlags

	total := len(players)
	start := min(int(offset), total)

	value := make([]byte, 0, 512)
	value = appendInt32(value, int32(total))
	countPos := len(value)
	value = appendInt32(value, 0) // back-patched below
	value = appendInt32(value, int32(start))

	count := 0
	remaining := MaxPayloadSize - tlvHeaderSize - playerListHeaderSize
	for i := start; i < total; i++ {
		entrySize := 2 + len(players[i].Username) + 16
		if remaining < entrySize {
			flags |= FlagHasMorePlayers
			break
		}
		value = appendString(value, players[i].Username)
		value = appendUUID(value, players[i].UUID)
		remaining -= entrySize
		count++
	}
	binary.LittleEndian.PutUint32(value[countPos:], uint32(count))

	payload := appendTLV(nil, TLVPlayerList, value)
	return encodeV2Packet(family, requestID, flags, payload)
}

func appendTLV(b []byte, typ uint16, value []byte) []byte {
	b = appendUint16(b, typ)
	b = appendUint16(b, uint16(len(value)))
	return append(b, value...)
}

func encodeV2Packet(family Family, requestID uint32, flags uint16, payload []byte) []byte {
	b := make([]byte, 0, HeaderSize+len(payload))
	b = append(b, family.ResponseMagic()...)
	b = append(b, Version)
	b = appendUint16(b, flags)
	b = appendUint32(b, requestID)
	b = appendUint16(b, uint16(len(payload)))
	return append(b, payload...)
}

// V2Response is a decoded V2 response header plus its raw payload.
type V2Response struct {
	Family    Family
	Version   byte
	Flags     uint16
	RequestID uint32
	Payload   []byte
}

// ParseV2Response decodes a response header. Challenge replies do not use
// this framing; see ParseChallengeResponse.
func ParseV2Response(b []byte) (*V2Response, error) {
	var family Family
	switch {
	case hasPrefix(b, MagicOneReply):
		family = FamilyOneQuery
	case hasPrefix(b, MagicHyReply2):
		family = FamilyHyQuery2
	default:
		return nil, fmt.Errorf("not a V2 response")
	}
	if len(b) < HeaderSize {
		return nil, errShortPacket
	}

	resp := &V2Response{
		Family:    family,
		Version:   b[8],
		Flags:     binary.LittleEndian.Uint16(b[9:]),
		RequestID: binary.LittleEndian.Uint32(b[11:]),
	}
	n := int(binary.LittleEndian.Uint16(b[15:]))
	if len(b) < HeaderSize+n {
		return nil, errShortPacket
	}
	resp.Payload = b[HeaderSize : HeaderSize+n]
	return resp, nil
}

// ParseChallengeResponse extracts the 32-byte token from a challenge reply.
func ParseChallengeResponse(b []byte) ([]byte, error) {
	if len(b) < 8+1+ChallengeTokenSize {
		return nil, errShortPacket
	}
	if !hasPrefix(b, MagicOneReply) && !hasPrefix(b, MagicHyReply2) {
		return nil, fmt.Errorf("not a V2 response")
	}
	if b[8] != V2TypeChallenge {
		return nil, fmt.Errorf("not a challenge response")
	}
	return append([]byte(nil), b[9:9+ChallengeTokenSize]...), nil
}

// ParseServerInfo decodes a SERVER_INFO TLV value.
func ParseServerInfo(value []byte, hasAddress bool) (*ServerInfo, error) {
	r := &reader{b: value}
	info := &ServerInfo{}
	info.Name = r.string_()
	info.MOTD = r.string_()
	info.Online = r.int32()
	info.Max = r.int32()
	info.Version = r.string_()
	info.ProtocolVersion = r.int32()
	info.ProtocolHash = r.string_()
	if hasAddress && r.err == nil && r.remaining() > 0 {
		info.Host = r.string_()
		info.Port = r.uint16()
	}
	if r.err != nil {
		return nil, fmt.Errorf("malformed server info: %w", r.err)
	}
	return info, nil
}

// PlayerList is a decoded PLAYER_LIST TLV value.
type PlayerList struct {
	Total   int32
	Count   int32
	Offset  int32
	Players []PlayerEntry
}

// ParsePlayerList decodes a PLAYER_LIST TLV value.
func ParsePlayerList(value []byte) (*PlayerList, error) {
	r := &reader{b: value}
	list := &PlayerList{}
	list.Total = r.int32()
	list.Count = r.int32()
	list.Offset = r.int32()
	for i := int32(0); i < list.Count && r.err == nil; i++ {
		var p PlayerEntry
		p.Username = r.string_()
		p.UUID = r.uuid()
		list.Players = append(list.Players, p)
	}
	if r.err != nil {
		return nil, fmt.Errorf("malformed player list: %w", r.err)
	}
	return list, nil
}

// NextTLV splits the first TLV off a payload, returning the rest.
func NextTLV(payload []byte) (typ uint16, value, rest []byte, err error) {
	if len(payload) < tlvHeaderSize {
		return 0, nil, nil, errShortPacket
	}
	typ = binary.LittleEndian.Uint16(payload)
	n := int(binary.LittleEndian.Uint16(payload[2:]))
	if len(payload) < tlvHeaderSize+n {
		return 0, nil, nil, errShortPacket
	}
	return typ, payload[tlvHeaderSize : tlvHeaderSize+n], payload[tlvHeaderSize+n:], nil
}
