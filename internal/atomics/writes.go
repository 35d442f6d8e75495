// Counter helpers shared by the queues and dispatch workers
package atomics

import "sync/atomic"

// Lowers source by value without wrapping below zero.
// Exact is false when the counter held less than value, which means the books were already off.
func Subtract(source *atomic.Uint64, value uint64) (exact bool) {
	for {
		current := source.Load()
		var next uint64
		if value <= current {
			next = current - value
		}
		if source.CompareAndSwap(current, next) {
			exact = value <= current
			return
		}
	}
}
