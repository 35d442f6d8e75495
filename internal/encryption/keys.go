// Session key agreement and message wrapping for encrypted connections
package encryption

import (
	"cromp/internal/crypto"
	"fmt"
)

// Suite used for every session key
const SuiteID uint8 = 1

// Asymmetric key pair held by a client for the exchange.
// Values are never mutated after creation so one pair may be shared between sessions.
type KeyPair struct {
	private []byte
	public  []byte
}

func NewKeyPair() (pair KeyPair, err error) {
	private, public, err := crypto.GenerateKeyPair()
	if err != nil {
		err = fmt.Errorf("failed creating key pair: %w", err)
		return
	}
	pair = KeyPair{private: private, public: public}
	return
}

// Copy of the public half
func (pair KeyPair) Public() (public []byte) {
	public = append([]byte(nil), pair.public...)
	return
}

func (pair KeyPair) Empty() (empty bool) {
	empty = len(pair.private) == 0
	return
}

// Derives the session key from the server's ephemeral public key
func (pair KeyPair) Complete(serverEphemeral []byte) (sessionKey []byte, err error) {
	if pair.Empty() {
		err = fmt.Errorf("key pair not initialized")
		return
	}
	private := append([]byte(nil), pair.private...)
	secret, err := crypto.Agree(private, serverEphemeral)
	crypto.Memzero(private)
	if err != nil {
		return
	}
	sessionKey, err = deriveSessionKey(secret, pair.public, serverEphemeral)
	return
}

// Server half of the exchange: returns the session key and the ephemeral public key for the client
func Exchange(clientPublic []byte) (sessionKey, ephemeralPublic []byte, err error) {
	secret, ephemeralPublic, err := crypto.AgreeEphemeral(clientPublic)
	if err != nil {
		return
	}
	sessionKey, err = deriveSessionKey(secret, clientPublic, ephemeralPublic)
	return
}

// Both sides bind the key to both public keys through the salt
func deriveSessionKey(secret, clientPublic, ephemeralPublic []byte) (sessionKey []byte, err error) {
	suite, known := crypto.LookupSuite(SuiteID)
	if !known {
		err = fmt.Errorf("unknown crypto suite %d", SuiteID)
		return
	}
	sessionKey, err = crypto.DeriveKey(suite, secret, clientPublic, ephemeralPublic)
	if err != nil {
		err = fmt.Errorf("failed deriving session key: %w", err)
	}
	return
}
