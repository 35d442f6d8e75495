package server

import (
	"context"
	"cromp/internal/audit"
	"cromp/internal/crypto"
	"cromp/internal/encryption"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/network"
	"cromp/internal/transport"
	"cromp/pkg/protocol"
	"runtime/debug"
)

// Wraps an accepted stream and starts its pump
func newClientRecord(server *Server, stream *network.Stream) (new *clientRecord) {
	ns := append(append([]string(nil), server.Namespace...), global.NSPump, stream.Address())

	ctx, cancel := context.WithCancel(server.ctx)
	ctx = logctx.AppendCtxTag(ctx, global.NSPump)

	new = &clientRecord{
		server:  server,
		session: transport.New(ns, stream, server.octo, server.cfg.MaxPerEntity),
		remote:  stream.Address(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	new.healthy.Store(true)
	new.stillConnected.Store(true)

	go new.pump(ctx)
	return
}

func (record *clientRecord) entity() (ent protocol.Entity) {
	record.entMu.Lock()
	ent = record.ent
	record.entMu.Unlock()
	return
}

// Moves data for this client until told to stop or the client leaves
func (record *clientRecord) pump(ctx context.Context) {
	defer close(record.done)
	defer func() {
		if fatalError := recover(); fatalError != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in client pump for %s: %v\n%s", record.remote, fatalError, debug.Stack())
			record.healthy.Store(false)
		}
	}()

	for ctx.Err() == nil {
		if !record.handleClientNeeds(ctx) {
			break
		}
	}

	if ent := record.entity(); !ent.Blank() && ctx.Err() == nil {
		record.server.octo.Expunge(ent)
	}
}

// One pump pass: alternate receiving and replying while either makes progress
func (record *clientRecord) handleClientNeeds(ctx context.Context) (keepRunning bool) {
	if !record.healthy.Load() {
		return
	}
	if !record.session.Connected() {
		record.stillConnected.Store(false)
		return
	}

	actions := 0
	keepGoing := true
	for keepGoing && actions < MaxActionsPerClient {
		if ctx.Err() != nil {
			return
		}
		keepGoing = false
		if record.getIncomingData(ctx, &actions) {
			keepGoing = true
		}
		if record.pushClientReplies(ctx, &actions) {
			keepGoing = true
		}
	}
	keepRunning = true
	return
}

// Feeds received requests to the registry. Returns true if anything arrived.
func (record *clientRecord) getIncomingData(ctx context.Context, actions *int) (sawSomething bool) {
	if !record.healthy.Load() {
		return
	}

	first := true
	for *actions < MaxActionsPerClient {
		*actions++

		wait := DataAwait
		if !first {
			wait = 0
		}
		first = false

		item, result := record.session.RetrieveAndRestoreAny(ctx, wait)
		if result != protocol.OK {
			if result == protocol.NoConnection {
				record.stillConnected.Store(false)
			}
			*actions--
			return
		}
		sawSomething = true

		id := item.ID
		if id.Entity.Blank() {
			record.server.Metrics.BlankEntity.Add(1)
			logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
				"discarding %s with blank entity from %s\n", item.Message.Classifier(), record.remote)
			continue
		}
		if !record.admit(ctx, id.Entity) {
			continue
		}
		if !record.healthy.Load() {
			continue
		}

		// Restore failures from the transport go straight back to the requester
		if unhandled, ok := item.Message.(*protocol.Unhandled); ok {
			record.server.SendToClient(id, unhandled)
			continue
		}

		// Failures leave an unhandled reply in the response bin
		record.server.octo.Evaluate(ctx, item.Message, id, record.server.cfg.Instantaneous)
	}
	return
}

// Entity fixation: the first entity is adopted, the first different one after that becomes permanent.
// Requests from any other entity after fixation are refused.
func (record *clientRecord) admit(ctx context.Context, ent protocol.Entity) (admitted bool) {
	record.entMu.Lock()
	switch {
	case !record.fixated && record.ent.Blank():
		record.ent = ent
	case !record.fixated && record.ent != ent:
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
			"fixated on entity %s where we used to have %s\n", ent, record.ent)
		record.ent = ent
		record.fixated = true
	case record.fixated && record.ent != ent:
		fixedOn := record.ent
		record.entMu.Unlock()

		record.server.Metrics.FixationClash.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"refusing request from %s on connection fixated on %s (%s)\n", ent, fixedOn, record.remote)
		record.server.audit(ctx, audit.Event{
			Action: audit.ActionFixationClash,
			Entity: ent,
			Remote: record.remote,
			Result: protocol.Disallowed,
			Detail: "connection fixated on " + fixedOn.String(),
		})
		return
	}
	record.entMu.Unlock()
	admitted = true
	return
}

// Ships replies waiting for this client's entity. Returns true if more may be waiting.
func (record *clientRecord) pushClientReplies(ctx context.Context, actions *int) (anyLeft bool) {
	if !record.healthy.Load() {
		return
	}
	ent := record.entity()
	if ent.Blank() {
		// Nothing asked yet
		return
	}

	session := record.session
	if session.Outbound() > ClogCeiling {
		*actions += ExtremeSendTries
		session.PushOutgoing(ctx, ExtremeSendTries)
		if session.Outbound() > ClogCeiling {
			logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
				"could not clear send clog for %s\n", ent)
			anyLeft = true
			return
		}
	}

	responses := record.server.octo.Responses()
	anyLeft = true
	for *actions < MaxActionsPerClient {
		*actions++

		if responses.ItemsHeld() == 0 {
			anyLeft = false
			break
		}
		session.GrabAnything(ctx, false)

		batch := responses.AcquireForEntity(ent, BatchSize)
		if len(batch) == 0 {
			anyLeft = false
			break
		}

		if record.server.encrypting.Load() {
			for i := range batch {
				batch[i].Message = record.server.wrapReply(ctx, batch[i].Message, batch[i].ID.Entity)
			}
		}

		// No send attempt yet, only filling the buffer
		result := session.PackAndShip(ctx, batch, 0)
		if result != protocol.OK && result != protocol.TimedOut {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"failed to pack replies for %s: %s\n", ent, result)
			anyLeft = false
			break
		}

		if session.Outbound() > SendThreshold {
			session.PushOutgoing(ctx, SendTriesAllowed)
		}
	}

	session.PushOutgoing(ctx, SendTriesAllowed)
	if !session.Connected() {
		record.stillConnected.Store(false)
	}
	return
}

// Encrypts replies whose kind travels wrapped. Without a key the reply goes out as is.
func (server *Server) wrapReply(ctx context.Context, reply protocol.Infoton, ent protocol.Entity) (outgoing protocol.Infoton) {
	outgoing = reply
	if !reply.Kind().RequiresWrap() || server.keys == nil {
		return
	}

	key, found := server.keys.Lock(ent)
	if !found {
		server.Metrics.WrapSkipped.Add(1)
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
			"no session key for %s, sending %s unwrapped\n", ent, reply.Classifier())
		return
	}
	defer crypto.Memzero(key)

	wrapped, err := encryption.Wrap(reply, key)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"failed to wrap reply for %s: %v\n", ent, err)
		return
	}
	outgoing = wrapped
	return
}

// Stops the pump, drains what already arrived and drops the connection
func (record *clientRecord) croak() {
	record.croakOnce.Do(func() {
		record.cancel()
		<-record.done

		ctx := logctx.AppendCtxTag(record.server.ctx, global.NSPump)
		actions := 0
		for record.getIncomingData(ctx, &actions) {
		}

		record.healthy.Store(false)
		if ent := record.entity(); !ent.Blank() {
			record.server.octo.Expunge(ent)
		}
		record.session.Disconnect()
	})
}
