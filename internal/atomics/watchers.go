package atomics

import (
	"sync/atomic"
	"time"
)

const (
	pollInterval time.Duration = 5 * time.Millisecond

	// Zero must hold this many polls in a row, a worker may be between pop and account
	settledPolls int = 3
)

// Polls value until it has read zero for several polls in a row or timeout passes.
// Last is the final value seen.
func AwaitZero(value *atomic.Uint64, timeout time.Duration) (settled bool, last uint64) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	streak := 0
	for {
		last = value.Load()
		if last == 0 {
			streak++
		} else {
			streak = 0
		}
		if streak >= settledPolls {
			settled = true
			return
		}

		select {
		case <-deadline.C:
			last = value.Load()
			return
		case <-ticker.C:
		}
	}
}
