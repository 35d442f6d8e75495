package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Wire form of metric with every field rendered as text
func (metric Metric) Convert() (out JMetric) {
	out = JMetric{
		Name:        metric.Name,
		Description: metric.Description,
		Namespace:   strings.Join(metric.Namespace, "/"),
		Type:        string(metric.Type),
		Timestamp:   metric.Timestamp.Format(time.RFC3339Nano),
		Value: JMetricValue{
			Raw:      fmt.Sprint(metric.Value.Raw),
			Unit:     metric.Value.Unit,
			Interval: metric.Value.Interval.String(),
		},
	}
	return
}
