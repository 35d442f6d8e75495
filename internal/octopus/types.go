package octopus

import (
	"context"
	"cromp/internal/databin"
	"cromp/internal/queue/mpmc"
	"cromp/pkg/protocol"
	"sync"
	"sync/atomic"
)

// Rebuilds a typed message from its classifier and payload
type Reconstituter func(class protocol.Classifier, payload []byte) (msg protocol.Infoton, result protocol.Outcome)

// Handler owning one classifier group. Filters additionally vet every
// message that is not addressed to them before normal dispatch.
type Tentacle interface {
	Group() protocol.Classifier
	Filter() bool
	Backgrounded() bool

	// Response storage shared with the owning registry
	Attach(responses *databin.Bin)

	Reconstitute(class protocol.Classifier, payload []byte) (msg protocol.Infoton, result protocol.Outcome)

	// Filters vetting a foreign message return Partial to let it continue,
	// optionally with transformed packed bytes that replace it
	Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte)

	// Drops all state held for the entity
	Expunge(ent protocol.Entity)
}

// Registered tentacle plus its optional background worker
type arm struct {
	tentacle Tentacle
	queue    *mpmc.Queue[job] // nil when consumed inline
	cancel   context.CancelFunc
	done     chan struct{}

	pending   atomic.Uint64 // queued bytes across all entities
	pendingMu sync.Mutex
	perEntity map[protocol.Entity]uint64 // queued bytes, no zero entries
}

type job struct {
	item protocol.Infoton
	id   protocol.RequestID
	size int
}

// Immutable view of the registered tentacles, replaced whole on every change
type registry struct {
	arms    []*arm // registration order
	filters []*arm // registration order
}

// Classifier based dispatcher with filter chain and per-entity response storage
type Octopus struct {
	Namespace    []string
	name         string
	pid          uint32
	maxPerEntity int
	responses    *databin.Bin

	writeMu  sync.Mutex // serializes registry replacement
	current  atomic.Pointer[registry]
	fallback atomic.Pointer[Reconstituter]

	sequencer    atomic.Uint32
	nextCleaning atomic.Int64 // unix nano

	ctx    context.Context
	cancel context.CancelFunc

	Metrics *MetricStorage
}

type MetricStorage struct {
	Evaluated     atomic.Uint64 // Messages passed to Evaluate
	Rejected      atomic.Uint64 // Messages turned into unhandled replies
	Backgrounded  atomic.Uint64 // Messages handed to background workers
	Restored      atomic.Uint64 // Successful reconstitutions
	RestoreFailed atomic.Uint64 // Failed reconstitutions
	Identities    atomic.Uint64 // Entities issued
}
