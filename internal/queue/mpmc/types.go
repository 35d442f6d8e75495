package mpmc

import "sync/atomic"

type cell[T any] struct {
	seq  atomic.Uint64
	size int
	data T
}

// One fixed capacity ring. A queue holds two when it is migrating to a new capacity.
type QueueInst[T any] struct {
	Namespace []string
	Size      int
	mask      uint64
	buf       []cell[T]
	head      atomic.Uint64
	tail      atomic.Uint64
	notEmpty  chan struct{}
	draining  atomic.Bool // closed to producers, consumers empty it before switching over
	Metrics   *MetricStorage
}

// Resizable queue. Producers write to ActiveWrite while consumers read ActiveRead;
// both point at the same ring except during a capacity migration.
type Queue[T any] struct {
	ActiveWrite atomic.Pointer[QueueInst[T]]
	ActiveRead  atomic.Pointer[QueueInst[T]]
	migrated    chan struct{} // signalled once a draining ring is empty
	minimumSize int
	maximumSize int
}
