package metrics

import (
	"sync"
	"time"
)

// Time-bucketed store of collected metrics
type Registry struct {
	mu     sync.RWMutex
	slices []*timeSlice // ascending by at
}

// Everything collected for one interval
type timeSlice struct {
	at     time.Time
	series map[seriesKey]Metric
}

type seriesKey struct {
	namespace string // joined with "/"
	name      string
}

type MetricType string

const (
	Counter MetricType = "counter" // events within the interval
	Gauge   MetricType = "gauge"   // level at collection time
	Summary MetricType = "summary" // derived from other samples
)

type Metric struct {
	Name        string // e.g. evaluated, bytes_served
	Description string
	Namespace   []string // e.g. CrompServer/Octopus
	Value       MetricValue
	Type        MetricType
	Timestamp   time.Time
}

type MetricValue struct {
	Raw      any // any integer or float type, or a numeric string
	Unit     string
	Interval time.Duration // window the value covers
}

// Wire form served by the query endpoint
type JMetric struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Namespace   string       `json:"namespace"`
	Value       JMetricValue `json:"value"`
	Type        string       `json:"type"`
	Timestamp   string       `json:"timestamp"`
}

type JMetricValue struct {
	Raw      string `json:"raw"`
	Unit     string `json:"unit"`
	Interval string `json:"interval"`
}
