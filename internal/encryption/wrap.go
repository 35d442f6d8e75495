package encryption

import (
	"cromp/internal/crypto"
	"cromp/pkg/protocol"
	"fmt"
)

// Additional data binding ciphertext to the suite and the wrapper classifier
func additionalData() (aad []byte) {
	aad = append([]byte{SuiteID}, []byte(protocol.WrapperClass.String())...)
	return
}

// Seals the packed form of msg into a wrapper
func Wrap(msg protocol.Infoton, sessionKey []byte) (wrapped *protocol.Wrapper, err error) {
	packed, err := protocol.FastPack(msg)
	if err != nil {
		err = fmt.Errorf("failed packing message for wrapping: %w", err)
		return
	}

	nonce, sealed, err := crypto.Seal(sessionKey, packed, additionalData())
	if err != nil {
		return
	}

	wrapped = &protocol.Wrapper{Nonce: nonce, Sealed: sealed}
	return
}

// Opens wrapper, returning the packed inner message
func Unwrap(wrapped *protocol.Wrapper, sessionKey []byte) (packed []byte, err error) {
	if wrapped == nil {
		err = fmt.Errorf("no wrapper supplied")
		return
	}
	packed, err = crypto.Open(sessionKey, wrapped.Nonce, wrapped.Sealed, additionalData())
	return
}
