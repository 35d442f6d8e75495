package metrics

import (
	"cromp/internal/global"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Share of values dropped from each end for trimmed mean aggregation
const trimPercent float64 = 0.1

// Combines all values of the named metric under the namespace prefix within the time window into one summary metric
func (registry *Registry) Aggregate(aggType string, name string, namespacePrefix []string, start, end time.Time) (result Metric, err error) {
	matches := registry.Search(name, namespacePrefix, start, end)
	if len(matches) == 0 {
		err = fmt.Errorf("no metrics found for name '%s' in the requested window", name)
		return
	}

	values := make([]float64, 0, len(matches))
	for _, metric := range matches {
		var value float64
		value, err = toFloat(metric.Value.Raw)
		if err != nil {
			err = fmt.Errorf("metric '%s' at %s: %w", name, metric.Timestamp.Format(time.RFC3339), err)
			return
		}
		values = append(values, value)
	}

	var aggregate float64
	switch aggType {
	case global.MetricSum:
		for _, value := range values {
			aggregate += value
		}
	case global.MetricMin:
		aggregate = values[0]
		for _, value := range values[1:] {
			aggregate = min(aggregate, value)
		}
	case global.MetricMax:
		aggregate = values[0]
		for _, value := range values[1:] {
			aggregate = max(aggregate, value)
		}
	case global.MetricAvg:
		for _, value := range values {
			aggregate += value
		}
		aggregate /= float64(len(values))
	case global.MetricTrimmedMean:
		aggregate = trimmedMean(values, trimPercent)
	default:
		err = fmt.Errorf("unknown aggregation type '%s'", aggType)
		return
	}

	last := matches[len(matches)-1]
	result = Metric{
		Name:        name,
		Description: fmt.Sprintf("%s of %s", aggType, last.Description),
		Namespace:   namespacePrefix,
		Type:        Summary,
		Timestamp:   last.Timestamp,
		Value: MetricValue{
			Raw:      aggregate,
			Unit:     last.Value.Unit,
			Interval: last.Timestamp.Sub(matches[0].Timestamp) + last.Value.Interval,
		},
	}
	return
}

// Converts any stored raw value to float
func toFloat(raw any) (value float64, err error) {
	switch typed := raw.(type) {
	case uint64:
		value = float64(typed)
	case uint32:
		value = float64(typed)
	case int:
		value = float64(typed)
	case int64:
		value = float64(typed)
	case int32:
		value = float64(typed)
	case float64:
		value = typed
	case float32:
		value = float64(typed)
	case string:
		value, err = strconv.ParseFloat(typed, 64)
		if err != nil {
			err = fmt.Errorf("non-numeric string value '%s'", typed)
		}
	default:
		err = fmt.Errorf("unsupported value type %T", raw)
	}
	return
}

// Mean of values after dropping share of the sorted values from each end.
// At least one value always remains.
func trimmedMean(values []float64, share float64) (mean float64) {
	if len(values) == 0 {
		return
	}
	sorted := slices.Sorted(slices.Values(values))

	drop := int(float64(len(sorted)) * max(share, 0))
	drop = min(drop, (len(sorted)-1)/2)
	kept := sorted[drop : len(sorted)-drop]

	for _, value := range kept {
		mean += value
	}
	mean /= float64(len(kept))
	return
}
