package client

import (
	"context"
	"cromp/internal/crypto"
	"cromp/internal/databin"
	"cromp/internal/encryption"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/transport"
	"cromp/pkg/protocol"
	"time"
)

// Sends msg under the next request id. Wrapped when the channel is secured.
func (client *Client) Submit(ctx context.Context, msg protocol.Infoton) (id protocol.RequestID, result protocol.Outcome) {
	if client.disallowed.Load() {
		result = protocol.NoConnection
		return
	}
	id, result = client.submit(ctx, msg)
	return
}

// Waits for the reply to id. Unhandled replies report their reason.
func (client *Client) Acquire(ctx context.Context, id protocol.RequestID, timeout time.Duration) (reply protocol.Infoton, result protocol.Outcome) {
	if client.disallowed.Load() {
		result = protocol.NoConnection
		return
	}
	reply, result = client.acquire(ctx, id, timeout)
	return
}

// Waits for whichever reply arrives first
func (client *Client) AcquireAny(ctx context.Context, timeout time.Duration) (reply protocol.Infoton, id protocol.RequestID, result protocol.Outcome) {
	if client.disallowed.Load() {
		result = protocol.NoConnection
		return
	}

	session := client.session.Load()
	if session == nil {
		result = protocol.NoConnection
		return
	}
	item, result := session.RetrieveAndRestoreAny(ctx, timeout)
	if result != protocol.OK {
		return
	}
	id = item.ID
	reply, result = client.decode(ctx, item.Message, id)
	return
}

// Submits msg and waits for its reply
func (client *Client) SynchronousRequest(ctx context.Context, msg protocol.Infoton, timeout time.Duration) (reply protocol.Infoton, result protocol.Outcome) {
	if client.disallowed.Load() {
		result = protocol.NoConnection
		return
	}
	reply, result = client.request(ctx, msg, timeout)
	return
}

func (client *Client) request(ctx context.Context, msg protocol.Infoton, timeout time.Duration) (reply protocol.Infoton, result protocol.Outcome) {
	id, result := client.submit(ctx, msg)
	if result != protocol.OK {
		logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
			"failed to submit %s: %s\n", msg.Classifier(), result)
		return
	}
	reply, result = client.acquire(ctx, id, timeout)
	return
}

// Ships msg under a caller chosen id and waits for the reply
func (client *Client) exchange(ctx context.Context, msg protocol.Infoton, id protocol.RequestID, timeout time.Duration) (reply protocol.Infoton, result protocol.Outcome) {
	session := client.session.Load()
	if session == nil || !session.Connected() {
		result = protocol.NoConnection
		return
	}
	result = client.ship(ctx, session, msg, id)
	if result != protocol.OK {
		return
	}
	reply, result = client.acquire(ctx, id, timeout)
	return
}

func (client *Client) submit(ctx context.Context, msg protocol.Infoton) (id protocol.RequestID, result protocol.Outcome) {
	if msg == nil {
		result = protocol.BadInput
		return
	}
	session := client.session.Load()
	if session == nil || !session.Connected() {
		result = protocol.NoConnection
		return
	}
	if !client.identified.Load() && msg.Kind() != protocol.KindIdentity {
		result = protocol.BadInput
		return
	}

	id = client.nextID()
	result = client.ship(ctx, session, msg, id)
	return
}

func (client *Client) ship(ctx context.Context, session *transport.Session, msg protocol.Infoton, id protocol.RequestID) (result protocol.Outcome) {
	outgoing := msg
	if client.secured.Load() && msg.Kind().RequiresWrap() {
		key := client.key()
		wrapped, err := encryption.Wrap(msg, key)
		crypto.Memzero(key)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"failed to wrap %s: %v\n", msg.Classifier(), err)
			result = protocol.BadInput
			return
		}
		outgoing = wrapped
	}

	result = session.PackAndShip(ctx, []databin.Item{{Message: outgoing, ID: id}}, 1)
	return
}

func (client *Client) acquire(ctx context.Context, id protocol.RequestID, timeout time.Duration) (reply protocol.Infoton, result protocol.Outcome) {
	session := client.session.Load()
	if session == nil {
		result = protocol.NoConnection
		return
	}
	item, result := session.RetrieveAndRestore(ctx, id, timeout)
	if result != protocol.OK {
		return
	}
	reply, result = client.decode(ctx, item.Message, id)
	return
}

// Unwraps encrypted replies and turns unhandled replies into their reason
func (client *Client) decode(ctx context.Context, raw protocol.Infoton, id protocol.RequestID) (reply protocol.Infoton, result protocol.Outcome) {
	reply = raw

	if wrapped, ok := raw.(*protocol.Wrapper); ok {
		key := client.key()
		defer crypto.Memzero(key)
		if len(key) == 0 {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"received wrapped reply for %s without a secured channel\n", id)
			result = protocol.EncryptionMismatch
			return
		}

		packed, err := encryption.Unwrap(wrapped, key)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"failed to unwrap reply for %s: %v\n", id, err)
			result = protocol.EncryptionMismatch
			return
		}
		class, payload, err := protocol.FastUnpack(packed)
		if err != nil {
			result = protocol.EncryptionMismatch
			return
		}
		restored, restoreResult := client.octo.Restore(class, payload)
		if restoreResult != protocol.OK {
			result = protocol.EncryptionMismatch
			return
		}
		reply = restored
	}

	if unhandled, ok := reply.(*protocol.Unhandled); ok {
		result = unhandled.Reason
		if result == protocol.OK {
			result = protocol.Failure
		}
		return
	}
	result = protocol.OK
	return
}
