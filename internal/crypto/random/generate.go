// Cryptographically random values for identities, salts and test payloads
package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
)

func Uint32() (value uint32, err error) {
	var raw [4]byte
	if _, err = rand.Read(raw[:]); err != nil {
		err = fmt.Errorf("failed reading random bytes: %w", err)
		return
	}
	value = binary.BigEndian.Uint32(raw[:])
	return
}

// Uniform value in [low, high]
func Between(low, high int) (value int, err error) {
	if low > high {
		err = fmt.Errorf("empty range [%d, %d]", low, high)
		return
	}
	span, err := rand.Int(rand.Reader, big.NewInt(int64(high)-int64(low)+1))
	if err != nil {
		err = fmt.Errorf("failed reading random number: %w", err)
		return
	}
	value = low + int(span.Int64())
	return
}

// Size random bytes
func Bytes(size int) (data []byte, err error) {
	if size < 0 {
		err = fmt.Errorf("negative size %d", size)
		return
	}
	data = make([]byte, size)
	if _, err = rand.Read(data); err != nil {
		data = nil
		err = fmt.Errorf("failed reading random bytes: %w", err)
	}
	return
}
