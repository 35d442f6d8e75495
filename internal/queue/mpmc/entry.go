// Lock-free multi-producer multi-consumer ring queue that can grow or shrink while in use
package mpmc

import (
	"context"
	"cromp/internal/atomics"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"fmt"
	"runtime"
)

// Creates a queue with a power of two capacity that scaling keeps within min and max
func New[T any](namespace []string, initialCapacity uint64, minCapacity, maxCapacity int) (new *Queue[T], err error) {
	ring, err := newRing[T](namespace, initialCapacity)
	if err != nil {
		return
	}

	new = &Queue[T]{
		migrated:    make(chan struct{}, 1),
		minimumSize: minCapacity,
		maximumSize: maxCapacity,
	}
	new.ActiveRead.Store(ring)
	new.ActiveWrite.Store(ring)
	return
}

func newRing[T any](namespace []string, capacity uint64) (ring *QueueInst[T], err error) {
	if capacity < 2 {
		err = fmt.Errorf("queue capacity %d is below the minimum of 2", capacity)
		return
	}
	if capacity&(capacity-1) != 0 {
		err = fmt.Errorf("queue capacity %d is not a power of two", capacity)
		return
	}

	ring = &QueueInst[T]{
		Namespace: append(append([]string(nil), namespace...), global.NSQueue),
		Size:      int(capacity),
		mask:      capacity - 1,
		buf:       make([]cell[T], capacity),
		notEmpty:  make(chan struct{}, 1),
		Metrics:   &MetricStorage{},
	}
	for i := range ring.buf {
		ring.buf[i].seq.Store(uint64(i))
	}
	return
}

// Starts moving producers to a new ring. Consumers follow once the old ring is empty.
func (container *Queue[T]) resize(capacity uint64) (err error) {
	current := container.ActiveWrite.Load()
	if container.ActiveRead.Load() != current {
		err = fmt.Errorf("queue is still migrating")
		return
	}

	ring, err := newRing[T](current.Namespace[:len(current.Namespace)-1], capacity)
	if err != nil {
		return
	}

	current.draining.Store(true)
	container.ActiveWrite.Store(ring)

	// Old ring may already be empty, in which case no pop will signal
	if current.head.Load() == current.tail.Load() {
		container.signalMigrated()
	}
	return
}

func (container *Queue[T]) signalMigrated() {
	select {
	case container.migrated <- struct{}{}:
	default:
	}
}

// Adds one item of the given byte size. False when the ring is full.
func (container *Queue[T]) Push(value T, size int) (success bool) {
	ring := container.ActiveWrite.Load()
	for ring.draining.Load() {
		// Resize stores the replacement right after marking the old ring
		runtime.Gosched()
		ring = container.ActiveWrite.Load()
	}
	ring.Metrics.PushAttempts.Add(1)

	var pos uint64
	var slot *cell[T]
	for {
		pos = ring.tail.Load()
		slot = &ring.buf[pos&ring.mask]
		seq := slot.seq.Load()

		if seq == pos {
			if ring.tail.CompareAndSwap(pos, pos+1) {
				break
			}
			ring.Metrics.PushCASRetries.Add(1)
			continue
		}
		if seq < pos {
			ring.Metrics.PushFull.Add(1)
			return
		}
		// Slot not yet released by a consumer a lap behind
		ring.Metrics.PushSeqAhead.Add(1)
		runtime.Gosched()
	}

	slot.data = value
	slot.size = size
	slot.seq.Store(pos + 1)

	ring.Metrics.PushSuccess.Add(1)
	ring.Metrics.Depth.Add(1)
	ring.Metrics.Bytes.Add(uint64(size))

	select {
	case ring.notEmpty <- struct{}{}:
	default:
	}
	success = true
	return
}

// Takes the oldest item, waiting until one arrives. False only when ctx ends first.
func (container *Queue[T]) Pop(ctx context.Context) (out T, success bool) {
	for {
		ring := container.ActiveRead.Load()
		ring.Metrics.PopAttempts.Add(1)

		pos := ring.head.Load()
		slot := &ring.buf[pos&ring.mask]
		seq := slot.seq.Load()

		switch {
		case seq == pos+1:
			if !ring.head.CompareAndSwap(pos, pos+1) {
				ring.Metrics.PopCASRetries.Add(1)
				continue
			}
			var blank T
			out, slot.data = slot.data, blank
			size := slot.size
			slot.seq.Store(pos + ring.mask + 1)

			ring.Metrics.PopSuccess.Add(1)
			depthOK := atomics.Subtract(&ring.Metrics.Depth, 1)
			bytesOK := atomics.Subtract(&ring.Metrics.Bytes, uint64(size))
			if !depthOK || !bytesOK {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
					"queue accounting out of step after pop\n")
			}
			if ring.draining.Load() && ring.head.Load() == ring.tail.Load() {
				container.signalMigrated()
			}
			success = true
			return
		case seq < pos+1:
			ring.Metrics.PopEmpty.Add(1)
			select {
			case <-ctx.Done():
				return
			case <-ring.notEmpty:
				ring.Metrics.PopWaitSignals.Add(1)
			case <-container.migrated:
				// Producers may still be finishing a write into the old ring
				if ring.draining.Load() && ring.head.Load() == ring.tail.Load() {
					container.ActiveRead.Store(container.ActiveWrite.Load())
				}
			}
		default:
			ring.Metrics.PopSeqBehind.Add(1)
		}
	}
}

// Items and bytes waiting across both rings
func (container *Queue[T]) Pending() (items, bytes uint64) {
	write := container.ActiveWrite.Load()
	items, bytes = write.Metrics.Depth.Load(), write.Metrics.Bytes.Load()
	if read := container.ActiveRead.Load(); read != write {
		items += read.Metrics.Depth.Load()
		bytes += read.Metrics.Bytes.Load()
	}
	return
}

// Capacity of the ring producers write to
func (container *Queue[T]) Capacity() int {
	return container.ActiveWrite.Load().Size
}
