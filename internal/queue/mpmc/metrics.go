package mpmc

import (
	"cromp/internal/metrics"
	"sync/atomic"
	"time"
)

type MetricStorage struct {
	Depth atomic.Uint64 // Items waiting
	Bytes atomic.Uint64 // Sum of the sizes given at push for waiting items

	PushAttempts   atomic.Uint64
	PushSuccess    atomic.Uint64
	PushCASRetries atomic.Uint64
	PushFull       atomic.Uint64 // Refused, ring full
	PushSeqAhead   atomic.Uint64 // Slot still held by a consumer a lap behind

	PopAttempts    atomic.Uint64
	PopSuccess     atomic.Uint64
	PopCASRetries  atomic.Uint64
	PopEmpty       atomic.Uint64
	PopWaitSignals atomic.Uint64 // Woken by a producer
	PopSeqBehind   atomic.Uint64 // Another consumer took the slot first
}

// Gauges cover both rings while migrating. Counters are reset on every collection.
func (container *Queue[T]) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	rings := []*QueueInst[T]{container.ActiveWrite.Load()}
	if read := container.ActiveRead.Load(); read != rings[0] {
		rings = append(rings, read)
	}
	namespace := rings[0].Namespace
	now := time.Now()

	emit := func(name, unit, description string, kind metrics.MetricType, value uint64) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   namespace,
			Type:        kind,
			Timestamp:   now,
			Value: metrics.MetricValue{
				Raw:      value,
				Unit:     unit,
				Interval: interval,
			},
		})
	}
	drain := func(pick func(m *MetricStorage) *atomic.Uint64) (total uint64) {
		for _, ring := range rings {
			total += pick(ring.Metrics).Swap(0)
		}
		return
	}

	items, bytes := container.Pending()
	emit("depth", "count", "Jobs waiting for the worker", metrics.Gauge, items)
	emit("byte_sum", "bytes", "Packed bytes of jobs waiting for the worker", metrics.Gauge, bytes)
	emit("capacity", "count", "Slots in the ring accepting jobs", metrics.Gauge, uint64(rings[0].Size))

	counters := []struct {
		name, description string
		pick              func(m *MetricStorage) *atomic.Uint64
	}{
		{"push_attempts", "Push calls in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PushAttempts }},
		{"push_success", "Jobs queued in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PushSuccess }},
		{"push_cas_retries", "Producer slot contention in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PushCASRetries }},
		{"push_full", "Jobs refused by a full ring in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PushFull }},
		{"pop_attempts", "Pop loop passes in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PopAttempts }},
		{"pop_success", "Jobs taken by the worker in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PopSuccess }},
		{"pop_cas_retries", "Consumer slot contention in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PopCASRetries }},
		{"pop_empty", "Pops that found nothing waiting in the interval", func(m *MetricStorage) *atomic.Uint64 { return &m.PopEmpty }},
	}
	for _, counter := range counters {
		emit(counter.name, "count", counter.description, metrics.Counter, drain(counter.pick))
	}
	return
}
