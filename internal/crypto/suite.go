package crypto

import "golang.org/x/crypto/chacha20poly1305"

// Algorithms and sizes a session key is negotiated for
type Suite struct {
	ID        uint8
	Name      string // also the key derivation context
	KeySize   int
	NonceSize int
	Overhead  int // tag bytes added by sealing
}

// X25519 agreement, HKDF-SHA512 derivation, ChaCha20-Poly1305 sealing
var SessionSuite = Suite{
	ID:        1,
	Name:      "x25519-hkdf-chacha20poly1305",
	KeySize:   chacha20poly1305.KeySize,
	NonceSize: chacha20poly1305.NonceSize,
	Overhead:  chacha20poly1305.Overhead,
}

var suites = map[uint8]Suite{SessionSuite.ID: SessionSuite}

// Read only after init, safe for concurrent lookups
func LookupSuite(id uint8) (suite Suite, known bool) {
	suite, known = suites[id]
	return
}
