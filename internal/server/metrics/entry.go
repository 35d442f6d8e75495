// Periodic collection of server metrics into a registry
package metrics

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/metrics"
	"runtime/debug"
	"time"
)

// Collections between retention sweeps
const pruneEvery int = 30

func New(interval time.Duration, retention time.Duration, collectors ...Collector) (gatherer *Gatherer) {
	gatherer = &Gatherer{
		Registry:   metrics.New(),
		Interval:   interval,
		Retention:  retention,
		Collectors: collectors,
	}
	return
}

// Collects every Interval until ctx ends, pruning old slices every pruneEvery collections
func (gatherer *Gatherer) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSMetric)

	ticker := time.NewTicker(gatherer.Interval)
	defer ticker.Stop()

	for collected := 1; ; collected++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			gatherer.collect(ctx, gatherer.Registry.NewTimeSlice(now, gatherer.Interval))
			if collected%pruneEvery == 0 {
				gatherer.Registry.Prune(now, gatherer.Retention)
			}
		}
	}
}

// Stores one reading of every collector under slice
func (gatherer *Gatherer) collect(ctx context.Context, slice time.Time) {
	for _, collector := range gatherer.Collectors {
		if collector == nil {
			continue
		}
		gatherer.Registry.Add(slice, gatherer.read(ctx, collector))
	}
}

// A panicking collector loses this interval only
func (gatherer *Gatherer) read(ctx context.Context, collector Collector) (batch []metrics.Metric) {
	defer func() {
		if fault := recover(); fault != nil {
			batch = nil
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"metric collector %T panicked: %v\n%s", collector, fault, debug.Stack())
		}
	}()
	batch = collector.CollectMetrics(gatherer.Interval)
	return
}
