package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypts plaintext under key with a fresh random nonce. Key is not modified.
func Seal(key, plaintext, additional []byte) (nonce, sealed []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		err = fmt.Errorf("failed creating cipher: %w", err)
		return
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		nonce = nil
		err = fmt.Errorf("failed reading random nonce: %w", err)
		return
	}
	sealed = aead.Seal(nil, nonce, plaintext, additional)
	return
}

// Authenticates and decrypts sealed. Any change to sealed, nonce or additional fails.
func Open(key, nonce, sealed, additional []byte) (plaintext []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		err = fmt.Errorf("failed creating cipher: %w", err)
		return
	}
	if len(nonce) != aead.NonceSize() {
		err = fmt.Errorf("nonce has length %d, expected %d", len(nonce), aead.NonceSize())
		return
	}

	plaintext, err = aead.Open(nil, nonce, sealed, additional)
	if err != nil {
		err = fmt.Errorf("failed opening sealed message: %w", err)
	}
	return
}
