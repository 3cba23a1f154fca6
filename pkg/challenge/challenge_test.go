package challenge

import (
	"net/netip"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestMintVerify(t *testing.T) {
	s := New("test-secret", 150)
	addr := netip.MustParseAddr("203.0.113.7")

	token := s.Mint(addr)
	if len(token) != TokenSize {
		t.Fatalf("token length = %d, want %d", len(token), TokenSize)
	}
	if !s.Verify(token, addr) {
		t.Fatal("fresh token did not verify")
	}
}

func TestVerifyWrongAddress(t *testing.T) {
	s := New("test-secret", 150)
	token := s.Mint(netip.MustParseAddr("203.0.113.7"))
	if s.Verify(token, netip.MustParseAddr("203.0.113.8")) {
		t.Fatal("token verified for a different source address")
	}
}

func TestVerifyExpiry(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New("test-secret", 150)
	s.now = fixedClock(base)
	addr := netip.MustParseAddr("203.0.113.7")
	token := s.Mint(addr)

	// still valid just inside the validity period
	s.now = fixedClock(base.Add(149 * time.Second))
	if !s.Verify(token, addr) {
		t.Fatal("token expired early")
	}

	// expired once past validity-seconds worth of windows
	s.now = fixedClock(base.Add(181 * time.Second))
	if s.Verify(token, addr) {
		t.Fatal("token verified after expiry")
	}
}

func TestVerifyRejectsFutureToken(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New("test-secret", 150)

	s.now = fixedClock(base.Add(5 * time.Minute))
	addr := netip.MustParseAddr("203.0.113.7")
	future := s.Mint(addr)

	s.now = fixedClock(base)
	if s.Verify(future, addr) {
		t.Fatal("token from a future window verified")
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	s := New("test-secret", 150)
	addr := netip.MustParseAddr("203.0.113.7")
	if s.Verify(nil, addr) {
		t.Fatal("nil token verified")
	}
	if s.Verify(make([]byte, TokenSize-1), addr) {
		t.Fatal("short token verified")
	}
	token := s.Mint(addr)
	token[12] ^= 0x01
	if s.Verify(token, addr) {
		t.Fatal("tampered token verified")
	}
}

func TestEmptySecretStillWorks(t *testing.T) {
	s := New("", 30)
	addr := netip.MustParseAddr("192.0.2.1")
	if !s.Verify(s.Mint(addr), addr) {
		t.Fatal("random-secret service did not verify its own token")
	}

	other := New("", 30)
	if other.Verify(s.Mint(addr), addr) {
		t.Fatal("token verified across services with independent random secrets")
	}
}
