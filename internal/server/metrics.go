package server

import (
	"cromp/internal/metrics"
	"time"
)

// Server counters plus registry and per client transport metrics
func (server *Server) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   server.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("clients", uint64(server.Clients()), "count", metrics.Gauge, "Client records currently held")
	add("accepted", server.Metrics.Accepted.Swap(0), "count", metrics.Counter, "Connections accepted in the interval")
	add("dropped", server.Metrics.Dropped.Swap(0), "count", metrics.Counter, "Dead clients removed in the interval")
	add("fixation_clash", server.Metrics.FixationClash.Swap(0), "count", metrics.Counter, "Requests refused for a changed entity in the interval")
	add("blank_entity", server.Metrics.BlankEntity.Swap(0), "count", metrics.Counter, "Requests discarded for a blank entity in the interval")
	add("wrap_skipped", server.Metrics.WrapSkipped.Swap(0), "count", metrics.Counter, "Replies sent unencrypted for lack of a session key in the interval")

	collection = append(collection, server.octo.CollectMetrics(interval)...)

	server.mu.Lock()
	records := append([]*clientRecord(nil), server.clients...)
	server.mu.Unlock()
	for _, record := range records {
		collection = append(collection, record.session.CollectMetrics(interval)...)
	}
	return
}
