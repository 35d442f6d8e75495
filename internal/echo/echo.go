// Application handler answering ping requests with their own payload
package echo

import (
	"context"
	"cromp/internal/octopus"
	"cromp/pkg/protocol"
)

// Classifier answered by the echo handler
var PingClass = protocol.Classifier{"app", "ping"}

type Tentacle struct {
	*octopus.Base
}

func New(background bool) (new *Tentacle) {
	new = &Tentacle{
		Base: octopus.NewBase(PingClass, false, background, octopus.RestoreBlob),
	}
	return
}

func (tentacle *Tentacle) Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	blob, ok := item.(*protocol.Blob)
	if !ok {
		result = protocol.BadInput
		return
	}
	result = tentacle.StoreProduct(protocol.NewBlob(blob.Class, blob.Data), id)
	return
}

// Builds a ping request
func NewPing(payload []byte) (msg *protocol.Blob) {
	msg = protocol.NewBlob(protocol.NewClassifier(PingClass...), payload)
	return
}
