package protocol

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want PacketClass
	}{
		{"v1 query", []byte("HYQUERY\x00\x00"), ClassV1Query},
		{"v1 query full", []byte("HYQUERY\x00\x01"), ClassV1Query},
		{"v1 missing type", []byte("HYQUERY\x00"), ClassKnownOther},
		{"v2 hyquery2", []byte("HYQUERY2\x00"), ClassV2Query},
		{"v2 onequery", []byte("ONEQUERY\x01"), ClassV2Query},
		{"v2 truncated", []byte("ONEQUERY"), ClassKnownOther},
		{"status too short", []byte("HYSTATUS"), ClassKnownOther},
		{"ack", []byte("HYSTATOK"), ClassKnownOther},
		{"v1 reply", []byte("HYREPLY\x00"), ClassKnownOther},
		{"v2 reply", []byte("HYREPLY2"), ClassKnownOther},
		{"one reply", []byte("ONEREPLY"), ClassKnownOther},
		{"game traffic", []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}, ClassForeign},
		{"empty", nil, ClassForeign},
		{"short foreign", []byte("HY"), ClassForeign},
	}
	for _, tc := range cases {
		if got := Classify(tc.in); got != tc.want {
			t.Errorf("%s: Classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// TestClassifyStatusLength checks a well-formed status frame is routed as
// ClassStatus once it is long enough to carry the HMAC.
func TestClassifyStatusLength(t *testing.T) {
	pkt := EncodeStatusPacket(&StatusPacket{WorkerID: "w", TimestampMillis: 1}, "k")
	if got := Classify(pkt); got != ClassStatus {
		t.Fatalf("Classify(status) = %v, want ClassStatus", got)
	}
}
