package transport

import (
	"context"
	"cromp/internal/databin"
	"cromp/pkg/protocol"
	"time"
)

// Waits for the message answering id
func (session *Session) RetrieveAndRestore(ctx context.Context, id protocol.RequestID, timeout time.Duration) (item databin.Item, result protocol.Outcome) {
	item, result = session.retrieve(ctx, timeout, func() (databin.Item, bool) {
		return session.requests.AcquireForIdentifier(id)
	})
	return
}

// Waits for any inbound message
func (session *Session) RetrieveAndRestoreAny(ctx context.Context, timeout time.Duration) (item databin.Item, result protocol.Outcome) {
	item, result = session.retrieve(ctx, timeout, session.requests.AcquireForAny)
	return
}

// Polls the request bin, pumping the socket between polls.
// A zero timeout makes a single pass.
func (session *Session) retrieve(ctx context.Context, timeout time.Duration, acquire func() (databin.Item, bool)) (item databin.Item, result protocol.Outcome) {
	deadline := time.Now().Add(timeout)

	for {
		var found bool
		item, found = acquire()
		if found {
			result = protocol.OK
			return
		}
		if !session.Connected() {
			result = protocol.NoConnection
			return
		}

		session.GrabAnything(ctx, timeout > 0)
		session.PushOutgoing(ctx, 1)

		item, found = acquire()
		if found {
			result = protocol.OK
			return
		}

		if !time.Now().Before(deadline) || ctx.Err() != nil {
			result = protocol.TimedOut
			return
		}
	}
}
