package octopus

import (
	"cromp/internal/metrics"
	"time"
)

func (octo *Octopus) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   octo.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	reg := octo.current.Load()
	add("tentacles", uint64(len(reg.arms)), "count", metrics.Gauge, "Registered tentacles")
	add("filters", uint64(len(reg.filters)), "count", metrics.Gauge, "Registered filters")
	add("evaluated", octo.Metrics.Evaluated.Swap(0), "count", metrics.Counter, "Messages dispatched in the interval")
	add("rejected", octo.Metrics.Rejected.Swap(0), "count", metrics.Counter, "Messages answered with an unhandled reply in the interval")
	add("backgrounded", octo.Metrics.Backgrounded.Swap(0), "count", metrics.Counter, "Messages handed to background workers in the interval")
	add("restored", octo.Metrics.Restored.Swap(0), "count", metrics.Counter, "Messages reconstituted in the interval")
	add("restore_failed", octo.Metrics.RestoreFailed.Swap(0), "count", metrics.Counter, "Messages that could not be reconstituted in the interval")
	add("identities", octo.Metrics.Identities.Swap(0), "count", metrics.Counter, "Entities issued in the interval")

	collection = append(collection, octo.responses.CollectMetrics(interval)...)
	for _, existing := range reg.arms {
		if existing.queue != nil {
			collection = append(collection, existing.queue.CollectMetrics(interval)...)
		}
	}
	return
}
