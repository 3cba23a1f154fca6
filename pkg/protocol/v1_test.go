package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
)

// TestV1BasicResponseBytes pins the exact wire layout of a basic reply.
func TestV1BasicResponseBytes(t *testing.T) {
	resp := &V1Response{
		Type:    V1TypeBasic,
		Name:    "Hytale Server",
		MOTD:    "hi",
		Online:  2,
		Max:     100,
		Port:    5520,
		Version: "1.0",
	}
	got := resp.Encode()

	want := []byte("HYREPLY\x00")
	want = append(want, 0x00)
	want = binary.LittleEndian.AppendUint16(want, 13)
	want = append(want, "Hytale Server"...)
	want = binary.LittleEndian.AppendUint16(want, 2)
	want = append(want, "hi"...)
	want = append(want, 0x02, 0x00, 0x00, 0x00)
	want = append(want, 0x64, 0x00, 0x00, 0x00)
	want = append(want, 0x90, 0x15, 0x00, 0x00)
	want = binary.LittleEndian.AppendUint16(want, 3)
	want = append(want, "1.0"...)

	if !bytes.Equal(got, want) {
		t.Fatalf("basic response bytes mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestV1FullRoundTrip(t *testing.T) {
	u1 := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	u2 := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	in := &V1Response{
		Type:    V1TypeFull,
		Name:    "lobby",
		MOTD:    "welcome",
		Online:  3,
		Max:     50,
		Port:    5520,
		Version: "2.1",
		Players: []V1Player{
			{PlayerEntry: PlayerEntry{Username: "alice", UUID: u1}},
			{PlayerEntry: PlayerEntry{Username: "bob", UUID: u2}, ServerID: "game-2"},
		},
		Plugins: []string{"essentials", "worldguard"},
		RemoteServers: []V1RemoteServer{
			{
				ID: "game-2", Name: "Game 2", MOTD: "pvp",
				Online: 7, Max: 30, Status: V1StatusOnline,
				UpdatedAtMillis: 1700000123456,
				Players:         []PlayerEntry{{Username: "bob", UUID: u2}},
			},
		},
	}

	out, err := ParseV1Response(in.Encode())
	if err != nil {
		t.Fatalf("ParseV1Response: %v", err)
	}
	if out.Name != in.Name || out.MOTD != in.MOTD || out.Online != in.Online ||
		out.Max != in.Max || out.Port != in.Port || out.Version != in.Version {
		t.Fatalf("header mismatch: got %+v", out)
	}
	if len(out.Players) != 2 || out.Players[0].Username != "alice" ||
		out.Players[1].ServerID != "game-2" || out.Players[1].UUID != u2 {
		t.Fatalf("players mismatch: got %+v", out.Players)
	}
	if len(out.Plugins) != 2 || out.Plugins[1] != "worldguard" {
		t.Fatalf("plugins mismatch: got %v", out.Plugins)
	}
	if len(out.RemoteServers) != 1 {
		t.Fatalf("expected 1 remote server, got %d", len(out.RemoteServers))
	}
	srv := out.RemoteServers[0]
	if srv.ID != "game-2" || srv.Status != V1StatusOnline ||
		srv.UpdatedAtMillis != 1700000123456 || len(srv.Players) != 1 {
		t.Fatalf("remote server mismatch: got %+v", srv)
	}
}

func TestV1BasicOmitsLists(t *testing.T) {
	resp := &V1Response{Type: V1TypeBasic, Name: "s", MOTD: "m", Version: "1"}
	b := resp.Encode()
	// magic + type + three strings + three uint32s, nothing else
	wantLen := 8 + 1 + (2 + 1) + (2 + 1) + 4 + 4 + 4 + (2 + 1)
	if len(b) != wantLen {
		t.Fatalf("basic response length = %d, want %d", len(b), wantLen)
	}
}

func TestParseV1ResponseTruncated(t *testing.T) {
	resp := &V1Response{Type: V1TypeBasic, Name: "server", MOTD: "m", Version: "1.0"}
	b := resp.Encode()
	if _, err := ParseV1Response(b[:len(b)-2]); err == nil {
		t.Fatal("expected error for truncated response")
	}
	if _, err := ParseV1Response([]byte("NOTQUERY")); err == nil {
		t.Fatal("expected error for wrong magic")
	}
}
