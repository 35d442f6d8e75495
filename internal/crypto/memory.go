// Primitives behind the session key exchange and message wrapping
package crypto

import "runtime"

// Clears key material in place so every holder of the slice sees zeros
func Memzero(sensitive []byte) {
	clear(sensitive)
	runtime.KeepAlive(sensitive)
}
