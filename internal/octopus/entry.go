// Classifier based request dispatcher: tentacles own classifier groups, filters vet
// every message first, and replies are held per entity until picked up
package octopus

import (
	"context"
	"cromp/internal/databin"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/pkg/protocol"
	"os"
	"time"
)

// Interval between sweeps of stale responses
const CleaningInterval time.Duration = 4 * time.Minute

// Creates new registry holding the built-in identity and unhandled tentacles.
// Empty name uses the local hostname.
func New(ctx context.Context, namespace []string, name string, maxPerEntity int) (new *Octopus) {
	if name == "" {
		name = global.Hostname
	}
	if name == "" {
		name, _ = os.Hostname()
	}

	ns := append(append([]string(nil), namespace...), global.NSOctopus)
	ctx, cancel := context.WithCancel(ctx)

	new = &Octopus{
		Namespace: ns,
		name:      name,
		pid:       uint32(os.Getpid()),
		responses: databin.New(ns, maxPerEntity),
		ctx:       ctx,
		cancel:    cancel,
		Metrics:   &MetricStorage{},
	}
	new.maxPerEntity = new.responses.MaxPerEntity()
	new.current.Store(&registry{})
	new.nextCleaning.Store(time.Now().Add(CleaningInterval).UnixNano())

	new.AddTentacle(newIdentityTentacle(new))
	new.AddTentacle(newUnhandledTentacle())
	return
}

// Name used for issued entities
func (octo *Octopus) Name() string {
	return octo.name
}

// Replies waiting for pickup, keyed by requesting entity
func (octo *Octopus) Responses() (responses *databin.Bin) {
	responses = octo.responses
	return
}

// Registers tentacle as owner of its group, replacing and stopping any previous owner of the same group
func (octo *Octopus) AddTentacle(tentacle Tentacle) (result protocol.Outcome) {
	if tentacle == nil || !tentacle.Group().Valid() {
		result = protocol.BadInput
		return
	}

	tentacle.Attach(octo.responses)
	newArm := &arm{tentacle: tentacle}
	if tentacle.Backgrounded() {
		err := octo.startWorker(newArm)
		if err != nil {
			logctx.LogEvent(octo.ctx, global.VerbosityStandard, global.ErrorLog,
				"failed to start background worker for %s: %v\n", tentacle.Group(), err)
			result = protocol.Failure
			return
		}
	}

	octo.writeMu.Lock()
	old := octo.current.Load()
	next := &registry{arms: make([]*arm, 0, len(old.arms)+1)}

	// Replacement counts as a fresh registration and moves to the end
	var replaced *arm
	for _, existing := range old.arms {
		if replaced == nil && existing.tentacle.Group().Equal(tentacle.Group()) {
			replaced = existing
			continue
		}
		next.arms = append(next.arms, existing)
	}
	next.arms = append(next.arms, newArm)
	next.indexFilters()
	octo.current.Store(next)
	octo.writeMu.Unlock()

	if replaced != nil {
		replaced.stop()
		logctx.LogEvent(octo.ctx, global.VerbosityProgress, global.InfoLog,
			"replaced tentacle for %s\n", tentacle.Group())
	}

	result = protocol.OK
	return
}

// Removes the owner of exactly this group
func (octo *Octopus) ZapTentacle(group protocol.Classifier) (removed bool) {
	octo.writeMu.Lock()
	old := octo.current.Load()
	next := &registry{arms: make([]*arm, 0, len(old.arms))}

	var zapped *arm
	for _, existing := range old.arms {
		if zapped == nil && existing.tentacle.Group().Equal(group) {
			zapped = existing
			continue
		}
		next.arms = append(next.arms, existing)
	}
	if zapped != nil {
		next.indexFilters()
		octo.current.Store(next)
	}
	octo.writeMu.Unlock()

	if zapped == nil {
		return
	}
	zapped.stop()
	removed = true
	return
}

// Installs reconstituter used when no tentacle owns a classifier
func (octo *Octopus) SetFallback(restore Reconstituter) {
	if restore == nil {
		octo.fallback.Store(nil)
		return
	}
	octo.fallback.Store(&restore)
}

// Lets background workers finish queued work, then stops them
func (octo *Octopus) Shutdown() {
	for _, existing := range octo.current.Load().arms {
		drained, pending := existing.drain()
		if !drained {
			logctx.LogEvent(octo.ctx, global.VerbosityStandard, global.WarnLog,
				"abandoning %d queued bytes for %s\n", pending, existing.tentacle.Group())
		}
	}

	octo.cancel()
	for _, existing := range octo.current.Load().arms {
		existing.stop()
	}
}

// Rebuilds a message from its wire form using the owning tentacle
func (octo *Octopus) Restore(class protocol.Classifier, payload []byte) (msg protocol.Infoton, result protocol.Outcome) {
	octo.PeriodicCleaning()

	if !class.Valid() {
		result = protocol.BadInput
		return
	}

	owner := octo.current.Load().lookup(class)
	if owner != nil {
		msg, result = owner.tentacle.Reconstitute(class, payload)
	} else if fallback := octo.fallback.Load(); fallback != nil {
		msg, result = (*fallback)(class, payload)
	} else {
		result = protocol.NotFound
	}

	if result == protocol.OK {
		octo.Metrics.Restored.Add(1)
	} else {
		octo.Metrics.RestoreFailed.Add(1)
	}
	return
}

// Tentacle owning the classifier (longest matching group wins)
func (reg *registry) lookup(class protocol.Classifier) (owner *arm) {
	for _, candidate := range reg.arms {
		group := candidate.tentacle.Group()
		if !class.HasPrefix(group) {
			continue
		}
		if owner == nil || len(group) > len(owner.tentacle.Group()) {
			owner = candidate
		}
	}
	return
}

func (reg *registry) indexFilters() {
	reg.filters = nil
	for _, existing := range reg.arms {
		if existing.tentacle.Filter() {
			reg.filters = append(reg.filters, existing)
		}
	}
}

// Registered groups in registration order
func (octo *Octopus) Groups() (groups []protocol.Classifier) {
	for _, existing := range octo.current.Load().arms {
		groups = append(groups, existing.tentacle.Group())
	}
	return
}
