package transport

import (
	"context"
	"cromp/internal/databin"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/pkg/protocol"
	"time"
)

// Hands up to MaxSend queued bytes to the socket
func (session *Session) SendBuffer() (result protocol.Outcome) {
	session.sendMu.Lock()
	defer session.sendMu.Unlock()

	if len(session.outbound) == 0 {
		result = protocol.OK
		return
	}

	chunk := session.outbound[:min(MaxSend, len(session.outbound))]
	sent, sendResult := session.stream.Send(chunk)
	if sent > 0 {
		session.outbound = session.outbound[sent:]
		if len(session.outbound) == 0 {
			session.outbound = nil
		}
		session.Metrics.BytesOut.Add(uint64(sent))
	}

	switch sendResult {
	case protocol.OK, protocol.Partial:
		result = sendResult
	case protocol.NoneReady:
		result = protocol.TooFull
	case protocol.NoConnection, protocol.TimedOut:
		result = sendResult
	default:
		result = protocol.Disallowed
	}
	return
}

// Pulls whatever the socket has into the inbound buffer.
// Queued output keeps moving while waiting for data.
func (session *Session) SnarfFromSocket(wait bool) (result protocol.Outcome) {
	if !session.Connected() {
		result = protocol.NoConnection
		return
	}

	if wait {
		deadline := time.Now().Add(DataAwait)
		for {
			readable := session.stream.AwaitReadable(QuickSnooze)
			if readable == protocol.OK {
				break
			}
			if readable == protocol.NoConnection {
				result = protocol.NoConnection
				return
			}
			session.SendBuffer()
			if !time.Now().Before(deadline) {
				result = protocol.NoneReady
				return
			}
		}
	}

	result = protocol.NoneReady
	for range ReceivesPerSnarf {
		data, received := session.stream.Receive(ReceiveChunk)
		if received == protocol.NoneReady {
			break
		}
		if received != protocol.OK {
			result = received
			return
		}

		session.recvMu.Lock()
		session.inbound = append(session.inbound, data...)
		session.recvMu.Unlock()

		session.Metrics.BytesIn.Add(uint64(len(data)))
		session.lastDataSeen.Store(time.Now().UnixNano())
		result = protocol.OK

		session.SendBuffer()
	}
	return
}

// Frames, unpacks and restores every complete message in the inbound buffer.
// Corrupt input is skipped a byte at a time until the next frame header.
func (session *Session) ProcessAccumulator(ctx context.Context) {
	session.recvMu.Lock()
	defer session.recvMu.Unlock()

	for len(session.inbound) > 0 {
		peek, _ := protocol.PeekHeader(session.inbound)
		if peek == protocol.WayTooSmall || peek == protocol.Partial {
			lastSeen := time.Unix(0, session.lastDataSeen.Load())
			if time.Since(lastSeen) > StalenessLimit {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
					"discarding stale partial frame (%d bytes buffered)\n", len(session.inbound))
				session.lastDataSeen.Store(time.Now().UnixNano())
				if session.skipLocked() {
					// A frame may be buried behind the abandoned header
					continue
				}
			}
			return
		}
		if peek != protocol.OK {
			if !session.skipLocked() {
				return
			}
			continue
		}

		id, packed, consumed, unflattened := protocol.Unflatten(session.inbound)
		if unflattened != protocol.OK {
			if !session.skipLocked() {
				return
			}
			continue
		}
		class, payload, err := protocol.FastUnpack(packed)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
				"unreadable message in frame for %s: %v\n", id, err)
			if !session.skipLocked() {
				return
			}
			continue
		}
		session.inbound = session.inbound[consumed:]
		if len(session.inbound) == 0 {
			session.inbound = nil
		}
		session.Metrics.FramesIn.Add(1)

		var msg protocol.Infoton
		restored := protocol.NoHandler
		if session.restorer != nil {
			msg, restored = session.restorer.Restore(class, payload)
		}
		if restored != protocol.OK {
			session.Metrics.RestoreFailures.Add(1)
			logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
				"could not restore %s from %s: %s\n", class, id, restored)
			msg = protocol.NewUnhandled(class, restored)
		}

		if !session.requests.AddItem(msg, id) {
			session.Metrics.BinRejects.Add(1)
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"request bin full for %s, dropped %s\n", id.Entity, class)
		}
	}
}

// Drops one byte and resynchronizes. Caller holds recvMu.
func (session *Session) skipLocked() (synced bool) {
	before := len(session.inbound)
	session.inbound, synced = protocol.Resynchronize(session.inbound[1:])
	session.Metrics.Resyncs.Add(uint64(before - len(session.inbound)))
	if !synced {
		session.inbound = nil
	}
	return
}

// Snarfs from the socket then frames what arrived
func (session *Session) GrabAnything(ctx context.Context, wait bool) (result protocol.Outcome) {
	result = session.SnarfFromSocket(wait)
	session.ProcessAccumulator(ctx)
	return
}

// Sends queued output, reading inbound while the socket is full.
// Progress resets the attempt count; maxTries bounds consecutive full-socket waits.
func (session *Session) PushOutgoing(ctx context.Context, maxTries int) (result protocol.Outcome) {
	if maxTries <= 0 {
		result = protocol.OK
		return
	}

	session.GrabAnything(ctx, false)

	attempts := 0
	for session.Outbound() > 0 {
		result = session.SendBuffer()
		switch result {
		case protocol.OK, protocol.Partial:
			attempts = 0
			continue
		case protocol.TooFull:
			attempts++
			if attempts >= maxTries {
				return
			}

			deadline := time.Now().Add(SendDelay)
			for time.Now().Before(deadline) {
				session.GrabAnything(ctx, false)
				if session.stream.AwaitWritable(QuickSnooze) == protocol.OK {
					break
				}
			}
		default:
			return
		}
	}
	result = protocol.OK
	return
}

// Frames every item into the send buffer then pushes
func (session *Session) PackAndShip(ctx context.Context, items []databin.Item, maxTries int) (result protocol.Outcome) {
	session.ConditionalCleaning()

	packFailed := false
	session.sendMu.Lock()
	for _, item := range items {
		frame, err := protocol.Flatten(session.outbound, item.Message, item.ID)
		if err != nil {
			packFailed = true
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"failed to frame reply for %s: %v\n", item.ID, err)
			continue
		}
		session.outbound = frame
		session.Metrics.FramesOut.Add(1)
	}
	session.sendMu.Unlock()

	result = session.PushOutgoing(ctx, maxTries)
	if result == protocol.OK && packFailed {
		result = protocol.BadInput
	}
	return
}
