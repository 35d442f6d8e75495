package transfer

import (
	"cromp/internal/metrics"
	"time"
)

func (tentacle *Tentacle) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	now := time.Now()
	counters := []struct {
		name, unit, description string
		value                   uint64
	}{
		{"listings", "count", "Directory listings answered in the interval", tentacle.Metrics.Listings.Swap(0)},
		{"fetches", "count", "File chunks answered in the interval", tentacle.Metrics.Fetches.Swap(0)},
		{"bytes_served", "bytes", "File bytes read for clients in the interval", tentacle.Metrics.BytesServed.Swap(0)},
		{"bytes_on_wire", "bytes", "File bytes sent after compression in the interval", tentacle.Metrics.BytesOnWire.Swap(0)},
		{"refused", "count", "Requests naming unknown mappings or escaping a root in the interval", tentacle.Metrics.Refused.Swap(0)},
	}
	for _, counter := range counters {
		collection = append(collection, metrics.Metric{
			Name:        counter.name,
			Description: counter.description,
			Namespace:   tentacle.Namespace,
			Type:        metrics.Counter,
			Timestamp:   now,
			Value: metrics.MetricValue{
				Raw:      counter.value,
				Unit:     counter.unit,
				Interval: interval,
			},
		})
	}
	return
}
