package octopus

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/pkg/protocol"
)

// Runs the message through every filter then hands it to its owner.
// Any failure leaves an unhandled reply for the requester so callers never wait on a lost request.
func (octo *Octopus) Evaluate(ctx context.Context, item protocol.Infoton, id protocol.RequestID, now bool) (result protocol.Outcome) {
	octo.PeriodicCleaning()
	octo.Metrics.Evaluated.Add(1)

	if item == nil {
		result = protocol.BadInput
		return
	}
	if !item.Classifier().Valid() {
		result = octo.reject(ctx, item.Classifier(), id, protocol.BadInput)
		return
	}

	reg := octo.current.Load()

	for _, filter := range reg.filters {
		relevant := item.Classifier().HasPrefix(filter.tentacle.Group())

		filterResult, transformed := filter.tentacle.Consume(ctx, item, id)
		if relevant {
			// Addressed to this filter, nothing further to do
			result = filterResult
			if result != protocol.OK {
				octo.reject(ctx, item.Classifier(), id, result)
			}
			return
		}

		if filterResult != protocol.Partial {
			logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
				"filter %s denied %s from %s: %s\n", filter.tentacle.Group(), item.Classifier(), id, filterResult)
			result = octo.reject(ctx, item.Classifier(), id, filterResult)
			return
		}

		if len(transformed) == 0 {
			continue
		}

		class, payload, err := protocol.FastUnpack(transformed)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"filter %s produced unreadable replacement for %s: %v\n", filter.tentacle.Group(), id, err)
			result = octo.reject(ctx, item.Classifier(), id, protocol.Garbage)
			return
		}
		substitute, restoreResult := octo.Restore(class, payload)
		if restoreResult != protocol.OK {
			result = octo.reject(ctx, class, id, restoreResult)
			return
		}
		item = substitute
	}

	owner := reg.lookup(item.Classifier())
	if owner == nil {
		result = octo.reject(ctx, item.Classifier(), id, protocol.NotFound)
		return
	}

	if !now && owner.queue != nil {
		result = octo.enqueue(owner, item, id)
		if result != protocol.OK {
			octo.reject(ctx, item.Classifier(), id, result)
		}
		return
	}

	result, _ = owner.tentacle.Consume(ctx, item, id)
	if result != protocol.OK {
		octo.reject(ctx, item.Classifier(), id, result)
	}
	return
}

// Stores unhandled reply for the request, returning the reason
func (octo *Octopus) reject(ctx context.Context, class protocol.Classifier, id protocol.RequestID, reason protocol.Outcome) (result protocol.Outcome) {
	result = reason
	octo.Metrics.Rejected.Add(1)

	if !octo.responses.AddItem(protocol.NewUnhandled(class, reason), id) {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"no room to store unhandled reply for %s\n", id)
	}
	return
}
