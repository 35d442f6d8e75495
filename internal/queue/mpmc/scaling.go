package mpmc

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"

	"github.com/pbnjay/memory"
)

const (
	growAtPercent   float64 = 90
	shrinkAtPercent float64 = 2
)

// Doubles a nearly full ring or halves a nearly idle one, within the configured bounds.
// Growth is refused when the larger ring would not fit in free memory.
func (container *Queue[T]) ScaleCapacity(ctx context.Context) (resized bool) {
	ring := container.ActiveWrite.Load()
	if container.ActiveRead.Load() != ring {
		return
	}

	depth := ring.Metrics.Depth.Load()
	utilization := float64(depth) / float64(ring.Size) * 100

	var target int
	switch {
	case utilization >= growAtPercent && ring.Size < container.maximumSize:
		target = min(nextPowerOfTwo(ring.Size+1), container.maximumSize)
		if depth > 0 {
			perItem := ring.Metrics.Bytes.Load() / depth
			if free := memory.FreeMemory(); free > 0 && perItem*uint64(target) > free {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
					"not growing queue to %d items, %d bytes free\n", target, free)
				return
			}
		}
	case utilization <= shrinkAtPercent && ring.Size > container.minimumSize:
		target = max(prevPowerOfTwo(ring.Size), container.minimumSize)
	default:
		return
	}

	err := container.resize(uint64(target))
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"failed to resize queue from %d to %d: %v\n", ring.Size, target, err)
		return
	}
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"resized queue from %d to %d\n", ring.Size, target)
	resized = true
	return
}

func nextPowerOfTwo(start int) (next int) {
	next = 1
	for next < start {
		next <<= 1
	}
	return
}

// Largest power of two strictly below start
func prevPowerOfTwo(start int) (prev int) {
	if start <= 1 {
		return
	}
	prev = nextPowerOfTwo(start) >> 1
	return
}
