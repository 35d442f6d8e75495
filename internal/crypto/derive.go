package crypto

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Stretches secret into a key for suite. The salt is the SHA-512 of bindings in order,
// so both sides must pass the same values. Secret is cleared afterwards.
func DeriveKey(suite Suite, secret []byte, bindings ...[]byte) (key []byte, err error) {
	defer Memzero(secret)

	salter := sha512.New()
	for _, binding := range bindings {
		salter.Write(binding)
	}
	salt := salter.Sum(nil)
	defer Memzero(salt)

	key = make([]byte, suite.KeySize)
	_, err = io.ReadFull(hkdf.New(sha512.New, secret, salt, []byte(suite.Name)), key)
	if err != nil {
		Memzero(key)
		key = nil
		err = fmt.Errorf("failed deriving %s key: %w", suite.Name, err)
	}
	return
}
