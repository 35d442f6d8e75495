package octopus

import "cromp/pkg/protocol"

// Reconstitutes unhandled replies, never consumes anything
type unhandledTentacle struct {
	*Base
}

func newUnhandledTentacle() (new *unhandledTentacle) {
	new = &unhandledTentacle{
		Base: NewBase(protocol.UnhandledClass, false, false, ExactRestore(protocol.UnhandledClass, protocol.UnmarshalUnhandled)),
	}
	return
}
