package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// Length of X25519 private keys, public keys and shared secrets
const PointSize int = curve25519.PointSize

// Fresh X25519 key pair
func GenerateKeyPair() (private, public []byte, err error) {
	private = make([]byte, curve25519.ScalarSize)
	if _, err = rand.Read(private); err != nil {
		err = fmt.Errorf("failed reading random private key: %w", err)
		return
	}
	public, err = curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		Memzero(private)
		err = fmt.Errorf("failed computing public key: %w", err)
	}
	return
}

// Responder side: agrees with peerPublic through a throwaway key pair.
// The throwaway private key is cleared before returning.
func AgreeEphemeral(peerPublic []byte) (secret, ephemeralPublic []byte, err error) {
	private, ephemeralPublic, err := GenerateKeyPair()
	if err != nil {
		return
	}
	defer Memzero(private)

	secret, err = Agree(private, peerPublic)
	return
}

// Initiator side: recomputes the secret from its own private key and the peer's public key
func Agree(private, peerPublic []byte) (secret []byte, err error) {
	if len(peerPublic) != PointSize {
		err = fmt.Errorf("peer public key has length %d, expected %d", len(peerPublic), PointSize)
		return
	}
	secret, err = curve25519.X25519(private, peerPublic)
	if err != nil {
		err = fmt.Errorf("failed computing shared secret: %w", err)
	}
	return
}
