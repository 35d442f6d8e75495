package octopus

import (
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/pkg/protocol"
	"time"
)

// Age at which an uncollected response is discarded
const ResponseDecay time.Duration = 4 * time.Minute

// Removes stale responses when the cleaning interval has passed. Cheap to call often.
func (octo *Octopus) PeriodicCleaning() {
	next := octo.nextCleaning.Load()
	now := time.Now()
	if now.UnixNano() < next {
		return
	}
	// Single winner per interval
	if !octo.nextCleaning.CompareAndSwap(next, now.Add(CleaningInterval).UnixNano()) {
		return
	}

	removed := octo.responses.CleanOutDeadwood(ResponseDecay)
	if removed > 0 {
		logctx.LogEvent(octo.ctx, global.VerbosityProgress, global.InfoLog,
			"discarded %d uncollected responses\n", removed)
	}
}

// Forgets the entity everywhere: tentacle state first, then any waiting responses
func (octo *Octopus) Expunge(ent protocol.Entity) {
	for _, existing := range octo.current.Load().arms {
		existing.tentacle.Expunge(ent)
	}
	octo.responses.Drain(ent)
}
