// Package challenge mints and validates address-bound challenge tokens for
// V2 queries. Tokens are stateless: validity is derived by recomputation
// over a sliding set of 30-second windows, so the service keeps no
// per-client memory.
//
// Token format (32 bytes):
//
//	bytes 0..3   timestamp window (big-endian)
//	bytes 4..7   reserved (zero)
//	bytes 8..31  HMAC-SHA256(window || client address), truncated to 24 bytes
package challenge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"net/netip"
	"sync"
	"time"
)

const (
	// TokenSize is the fixed token length.
	TokenSize = 32

	windowSeconds = 30
	secretLength  = 32
)

// Service mints and verifies tokens. Safe for concurrent use; MAC state is
// pooled so no two goroutines share one instance.
type Service struct {
	secret          []byte
	validityWindows int
	macs            sync.Pool

	// now is stubbed in tests.
	now func() time.Time
}

// New builds a service from the configured secret and validity. An empty
// secret gets 32 random bytes, invalidating outstanding tokens on restart.
func New(secret string, validitySeconds int) *Service {
	var key []byte
	if secret == "" {
		key = make([]byte, secretLength)
		if _, err := rand.Read(key); err != nil {
			panic("challenge: cannot read random secret: " + err.Error())
		}
	} else {
		key = []byte(secret)
	}

	validity := max(1, validitySeconds)
	s := &Service{
		secret:          key,
		validityWindows: max(1, (validity+windowSeconds-1)/windowSeconds),
		now:             time.Now,
	}
	s.macs.New = func() any { return hmac.New(sha256.New, s.secret) }
	return s
}

// Mint returns a fresh token bound to addr.
func (s *Service) Mint(addr netip.Addr) []byte {
	return s.tokenFor(addr, s.currentWindow())
}

// Verify reports whether token was minted for addr within the validity
// period. Tokens from future windows are never accepted.
func (s *Service) Verify(token []byte, addr netip.Addr) bool {
	if len(token) != TokenSize {
		return false
	}

	tokenWindow := int32(binary.BigEndian.Uint32(token[:4]))
	current := s.currentWindow()

	for i := 0; i < s.validityWindows; i++ {
		if tokenWindow == current-int32(i) {
			expected := s.tokenFor(addr, tokenWindow)
			return hmac.Equal(token, expected)
		}
	}
	return false
}

func (s *Service) tokenFor(addr netip.Addr, window int32) []byte {
	token := make([]byte, TokenSize)
	binary.BigEndian.PutUint32(token[:4], uint32(window))
	// bytes 4..7 stay zero

	mac := s.macs.Get().(hash.Hash)
	mac.Reset()

	var windowBytes [4]byte
	binary.BigEndian.PutUint32(windowBytes[:], uint32(window))
	mac.Write(windowBytes[:])
	addrBytes := addr.AsSlice()
	mac.Write(addrBytes)

	copy(token[8:], mac.Sum(nil)[:24])
	s.macs.Put(mac)
	return token
}

func (s *Service) currentWindow() int32 {
	return int32(s.now().Unix() / windowSeconds)
}
