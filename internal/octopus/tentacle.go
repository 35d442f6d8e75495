package octopus

import (
	"context"
	"cromp/internal/databin"
	"cromp/pkg/protocol"
	"sync/atomic"
)

// Common tentacle plumbing. Embed and override Consume (and Expunge when state is kept).
type Base struct {
	group      protocol.Classifier
	filter     bool
	background bool
	restore    Reconstituter
	responses  atomic.Pointer[databin.Bin]
}

func NewBase(group protocol.Classifier, filter bool, background bool, restore Reconstituter) (new *Base) {
	new = &Base{
		group:      group,
		filter:     filter,
		background: background,
		restore:    restore,
	}
	return
}

func (base *Base) Group() protocol.Classifier { return base.group }
func (base *Base) Filter() bool               { return base.filter }
func (base *Base) Backgrounded() bool         { return base.background }

func (base *Base) Attach(responses *databin.Bin) {
	base.responses.Store(responses)
}

func (base *Base) Reconstitute(class protocol.Classifier, payload []byte) (msg protocol.Infoton, result protocol.Outcome) {
	if base.restore == nil {
		result = protocol.NoHandler
		return
	}
	msg, result = base.restore(class, payload)
	return
}

func (base *Base) Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	result = protocol.NoHandler
	return
}

func (base *Base) Expunge(ent protocol.Entity) {}

// Queues reply for pickup by the requesting entity
func (base *Base) StoreProduct(reply protocol.Infoton, id protocol.RequestID) (result protocol.Outcome) {
	responses := base.responses.Load()
	if responses == nil {
		result = protocol.NoSpace
		return
	}
	if !responses.AddItem(reply, id) {
		result = protocol.NoSpace
		return
	}
	result = protocol.OK
	return
}

// Builds a reconstituter accepting only the exact classifier
func ExactRestore[T protocol.Infoton](class protocol.Classifier, unmarshal func(payload []byte) (T, error)) (restore Reconstituter) {
	restore = func(got protocol.Classifier, payload []byte) (msg protocol.Infoton, result protocol.Outcome) {
		if !got.Equal(class) {
			result = protocol.NoHandler
			return
		}
		typed, err := unmarshal(payload)
		if err != nil {
			result = protocol.Garbage
			return
		}
		msg = typed
		result = protocol.OK
		return
	}
	return
}

// Restores any classifier as an opaque blob
func RestoreBlob(class protocol.Classifier, payload []byte) (msg protocol.Infoton, result protocol.Outcome) {
	if !class.Valid() {
		result = protocol.BadInput
		return
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	msg = protocol.NewBlob(class, data)
	result = protocol.OK
	return
}
