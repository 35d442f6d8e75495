// In-memory metric storage queried by the metric endpoint
package metrics

import (
	"slices"
	"strings"
	"time"
)

func New() (registry *Registry) {
	registry = &Registry{}
	return
}

// Index of the slice at or after at, and whether it is exactly at
func (registry *Registry) locate(at time.Time) (index int, found bool) {
	index, found = slices.BinarySearchFunc(registry.slices, at, func(slice *timeSlice, target time.Time) int {
		return slice.at.Compare(target)
	})
	return
}

// Opens the slice now falls into, truncated to interval, and returns its key for Add
func (registry *Registry) NewTimeSlice(now time.Time, interval time.Duration) (at time.Time) {
	at = now
	if interval > 0 {
		at = now.Truncate(interval)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	index, found := registry.locate(at)
	if !found {
		registry.slices = slices.Insert(registry.slices, index, &timeSlice{
			at:     at,
			series: make(map[seriesKey]Metric),
		})
	}
	return
}

// Stores batch under the slice at. Batches for slices never opened, or already pruned, are dropped.
// A metric replaces an earlier one of the same namespace and name in that slice.
func (registry *Registry) Add(at time.Time, batch []Metric) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	index, found := registry.locate(at)
	if !found {
		return
	}
	series := registry.slices[index].series
	for _, metric := range batch {
		series[seriesKey{strings.Join(metric.Namespace, "/"), metric.Name}] = metric
	}
}

// Drops slices older than maxAge at now
func (registry *Registry) Prune(now time.Time, maxAge time.Duration) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.slices = slices.DeleteFunc(registry.slices, func(slice *timeSlice) bool {
		return now.Sub(slice.at) > maxAge
	})
}

// True when prefix is empty or leads namespace segment by segment
func matchesNamespace(namespace string, prefix []string) bool {
	if len(prefix) == 0 {
		return true
	}
	segments := strings.Split(namespace, "/")
	return len(segments) >= len(prefix) && slices.Equal(segments[:len(prefix)], prefix)
}

// Series keys of slice under prefix, ordered by namespace then name
func (slice *timeSlice) keys(prefix []string) (keys []seriesKey) {
	for key := range slice.series {
		if matchesNamespace(key.namespace, prefix) {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b seriesKey) int {
		if order := strings.Compare(a.namespace, b.namespace); order != 0 {
			return order
		}
		return strings.Compare(a.name, b.name)
	})
	return
}

// Samples named name (any name when empty) under namespacePrefix, oldest first.
// Zero start or end leaves that side of the window open.
func (registry *Registry) Search(name string, namespacePrefix []string, start, end time.Time) (results []Metric) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	first := 0
	if !start.IsZero() {
		first, _ = registry.locate(start)
	}
	for _, slice := range registry.slices[first:] {
		if !end.IsZero() && slice.at.After(end) {
			break
		}
		for _, key := range slice.keys(namespacePrefix) {
			if name == "" || key.name == name {
				results = append(results, slice.series[key])
			}
		}
	}
	return
}

// Distinct series matching every non-empty filter, without values or timestamps.
// Name and description match on substrings, unit and type exactly.
func (registry *Registry) Discover(name, description string, namespacePrefix []string, unit string, metricType MetricType) (results []Metric) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	type identity struct {
		series seriesKey
		kind   MetricType
		unit   string
	}
	seen := make(map[identity]bool)

	for _, slice := range registry.slices {
		for _, key := range slice.keys(namespacePrefix) {
			metric := slice.series[key]
			switch {
			case name != "" && !strings.Contains(metric.Name, name),
				description != "" && !strings.Contains(metric.Description, description),
				unit != "" && metric.Value.Unit != unit,
				metricType != "" && metric.Type != metricType:
				continue
			}

			id := identity{key, metric.Type, metric.Value.Unit}
			if seen[id] {
				continue
			}
			seen[id] = true
			results = append(results, Metric{
				Name:        metric.Name,
				Description: metric.Description,
				Namespace:   metric.Namespace,
				Type:        metric.Type,
				Value:       MetricValue{Unit: metric.Value.Unit},
			})
		}
	}

	slices.SortStableFunc(results, func(a, b Metric) int {
		if order := strings.Compare(a.Name, b.Name); order != 0 {
			return order
		}
		return strings.Compare(strings.Join(a.Namespace, "/"), strings.Join(b.Namespace, "/"))
	})
	return
}
