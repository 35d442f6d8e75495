package octopus

import (
	"context"
	"cromp/internal/atomics"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/queue/mpmc"
	"cromp/pkg/protocol"
	"runtime/debug"
	"time"
)

const (
	// Starting capacity of background queues (above the minimum so scaling can engage)
	initialQueueCapacity uint64 = 128

	// Longest wait for queued background work at shutdown
	drainTimeout time.Duration = 2 * time.Second
)

func (octo *Octopus) startWorker(target *arm) (err error) {
	ns := append(append([]string(nil), octo.Namespace...), global.NSTentacle, target.tentacle.Group().String())
	target.queue, err = mpmc.New[job](ns, initialQueueCapacity, global.DefaultMinQueueSize, global.DefaultMaxQueueSize)
	if err != nil {
		return
	}

	var ctx context.Context
	ctx, target.cancel = context.WithCancel(octo.ctx)
	ctx = logctx.AppendCtxTag(ctx, global.NSTentacle)
	target.done = make(chan struct{})

	go octo.runWorker(ctx, target)
	return
}

// Hands message to a background worker. Each entity may have at most
// the per-entity budget of packed bytes waiting in one worker's queue.
func (octo *Octopus) enqueue(owner *arm, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome) {
	size := uint64(item.PackedSize())
	if !owner.reserve(id.Entity, size, uint64(octo.maxPerEntity)) {
		result = protocol.NoSpace
		return
	}

	next := job{item: item, id: id, size: int(size)}
	if !owner.queue.Push(next, next.size) {
		owner.queue.ScaleCapacity(octo.ctx)
		if !owner.queue.Push(next, next.size) {
			owner.release(id.Entity, size)
			result = protocol.NoSpace
			return
		}
	}

	octo.Metrics.Backgrounded.Add(1)
	result = protocol.OK
	return
}

func (target *arm) reserve(ent protocol.Entity, size, budget uint64) (ok bool) {
	target.pendingMu.Lock()
	defer target.pendingMu.Unlock()

	if target.perEntity[ent]+size > budget {
		return
	}
	if target.perEntity == nil {
		target.perEntity = make(map[protocol.Entity]uint64)
	}
	target.perEntity[ent] += size
	target.pending.Add(size)
	ok = true
	return
}

func (target *arm) release(ent protocol.Entity, size uint64) {
	target.pendingMu.Lock()
	defer target.pendingMu.Unlock()

	left := target.perEntity[ent]
	if size >= left {
		delete(target.perEntity, ent)
	} else {
		target.perEntity[ent] = left - size
	}
	atomics.Subtract(&target.pending, size)
}

func (octo *Octopus) runWorker(ctx context.Context, target *arm) {
	defer close(target.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			// Record panics and continue working
			defer func() {
				if fatalError := recover(); fatalError != nil {
					stack := debug.Stack()
					logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
						"panic in background tentacle %s: %v\n%s", target.tentacle.Group(), fatalError, stack)
				}
			}()

			next, ok := target.queue.Pop(ctx)
			if !ok {
				return
			}
			// Drain waits for consumption to finish, not just the pop
			defer target.release(next.id.Entity, uint64(next.size))

			result, _ := target.tentacle.Consume(ctx, next.item, next.id)
			if result != protocol.OK {
				octo.reject(ctx, next.item.Classifier(), next.id, result)
			}
		}()
	}
}

// Waits for queued work to be consumed. Reports the bytes still pending on timeout.
func (target *arm) drain() (drained bool, pending uint64) {
	if target.queue == nil {
		drained = true
		return
	}
	drained, pending = atomics.AwaitZero(&target.pending, drainTimeout)
	return
}

// Stops the worker (if any) and waits for it to exit
func (target *arm) stop() {
	if target.cancel == nil {
		return
	}
	target.cancel()
	<-target.done
}
