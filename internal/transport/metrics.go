package transport

import (
	"cromp/internal/metrics"
	"time"
)

func (session *Session) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	recordTime := time.Now()

	add := func(name string, raw uint64, unit string, t metrics.MetricType, description string) {
		collection = append(collection, metrics.Metric{
			Name:        name,
			Description: description,
			Namespace:   session.Namespace,
			Type:        t,
			Timestamp:   recordTime,
			Value: metrics.MetricValue{
				Raw:      raw,
				Unit:     unit,
				Interval: interval,
			},
		})
	}

	add("bytes_in", session.Metrics.BytesIn.Swap(0), "bytes", metrics.Counter, "Bytes read from the socket in the interval")
	add("bytes_out", session.Metrics.BytesOut.Swap(0), "bytes", metrics.Counter, "Bytes written to the socket in the interval")
	add("frames_in", session.Metrics.FramesIn.Swap(0), "count", metrics.Counter, "Complete frames received in the interval")
	add("frames_out", session.Metrics.FramesOut.Swap(0), "count", metrics.Counter, "Frames queued for sending in the interval")
	add("resync_bytes", session.Metrics.Resyncs.Swap(0), "bytes", metrics.Counter, "Bytes skipped recovering frame boundaries in the interval")
	add("restore_failures", session.Metrics.RestoreFailures.Swap(0), "count", metrics.Counter, "Frames whose message could not be rebuilt in the interval")
	add("bin_rejects", session.Metrics.BinRejects.Swap(0), "count", metrics.Counter, "Restored messages refused by the request bin in the interval")
	add("outbound_buffered", uint64(session.Outbound()), "bytes", metrics.Gauge, "Bytes waiting to be sent")
	add("inbound_buffered", uint64(session.Inbound()), "bytes", metrics.Gauge, "Bytes received but not yet framed")

	collection = append(collection, session.requests.CollectMetrics(interval)...)
	return
}
