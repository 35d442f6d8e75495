package metrics

import (
	"cromp/internal/metrics"
	"time"
)

// Anything able to report its metrics for an interval
type Collector interface {
	CollectMetrics(interval time.Duration) []metrics.Metric
}

// Adapts a plain function to Collector
type CollectorFunc func(interval time.Duration) []metrics.Metric

func (fn CollectorFunc) CollectMetrics(interval time.Duration) []metrics.Metric {
	return fn(interval)
}

type Gatherer struct {
	Interval   time.Duration     // Polling interval to gather metrics at
	Retention  time.Duration     // Maximum time to maintain metrics for
	Registry   *metrics.Registry // Storage for metric data
	Collectors []Collector       // Sources read every interval
}
