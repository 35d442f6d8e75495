package query

import (
	"cromp/internal/metrics"
	"net"
	"net/http"
	"time"
)

// Registry views the endpoint answers from. Any of them may be nil, its route then answers 503.
type Sources struct {
	Search    func(name string, namespacePrefix []string, start, end time.Time) []metrics.Metric
	Discover  func(name, description string, namespacePrefix []string, unit string, metricType metrics.MetricType) []metrics.Metric
	Aggregate func(aggType string, name string, namespacePrefix []string, start, end time.Time) (metrics.Metric, error)
}

// Bound but not yet serving metric query endpoint
type Endpoint struct {
	*http.Server
	listener net.Listener
}

// Time range selected by starttime and endtime
type window struct {
	start time.Time
	end   time.Time
}

type errorBody struct {
	Error string `json:"error"`
}

type helpFields struct {
	Address         string
	DataPath        string
	DiscoveryPath   string
	AggregationPath string
	Aggregations    []string
	Namespaces      []string
}
