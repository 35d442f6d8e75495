package databin

import (
	"cromp/internal/metrics"
	"time"
)

func (bin *Bin) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	bin.mu.Lock()
	items := uint64(bin.items)
	bytes := uint64(bin.bytes)
	baskets := uint64(len(bin.baskets))
	bin.mu.Unlock()

	added := bin.Metrics.Added.Swap(0)
	rejected := bin.Metrics.Rejected.Swap(0)
	acquired := bin.Metrics.Acquired.Swap(0)
	decayed := bin.Metrics.Decayed.Swap(0)

	recordTime := time.Now()

	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   bin.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("items_held", items, "count", metrics.Gauge, "Messages currently waiting for pickup")
	add("bytes_held", bytes, "bytes", metrics.Gauge, "Packed size of all waiting messages")
	add("entities", baskets, "count", metrics.Gauge, "Entities with at least one waiting message")
	add("added", added, "count", metrics.Counter, "Messages accepted in the interval")
	add("rejected", rejected, "count", metrics.Counter, "Messages refused for exceeding the entity budget in the interval")
	add("acquired", acquired, "count", metrics.Counter, "Messages picked up in the interval")
	add("decayed", decayed, "count", metrics.Counter, "Messages dropped after waiting too long in the interval")
	return
}
