package transport

import (
	"cromp/internal/databin"
	"cromp/internal/global"
	"cromp/internal/network"
	"time"
)

// Creates a session around an existing stream.
// Restored requests are budgeted per entity by maxPerEntity (0 for default).
func New(namespace []string, stream *network.Stream, restorer Restorer, maxPerEntity int) (new *Session) {
	if maxPerEntity <= 0 {
		maxPerEntity = DefaultMaxPerEntity
	}

	ns := append([]string{}, namespace...)
	ns = append(ns, global.NSTransport)

	new = &Session{
		Namespace: ns,
		stream:    stream,
		restorer:  restorer,
		requests:  databin.New(ns, maxPerEntity),
		Metrics:   &MetricStorage{},
	}
	new.lastDataSeen.Store(time.Now().UnixNano())
	new.nextCleaning.Store(time.Now().Add(CleanupInterval).UnixNano())
	return
}

func (session *Session) Stream() (stream *network.Stream) {
	stream = session.stream
	return
}

// Bin holding restored inbound messages until picked up
func (session *Session) Requests() (requests *databin.Bin) {
	requests = session.requests
	return
}

func (session *Session) Connected() (connected bool) {
	connected = session.stream != nil && session.stream.Connected()
	return
}

// Bytes queued for sending
func (session *Session) Outbound() (size int) {
	session.sendMu.Lock()
	size = len(session.outbound)
	session.sendMu.Unlock()
	return
}

// Bytes received but not yet framed
func (session *Session) Inbound() (size int) {
	session.recvMu.Lock()
	size = len(session.inbound)
	session.recvMu.Unlock()
	return
}

// Throws away everything buffered in either direction
func (session *Session) Reset() {
	session.sendMu.Lock()
	session.outbound = nil
	session.sendMu.Unlock()

	session.recvMu.Lock()
	session.inbound = nil
	session.recvMu.Unlock()

	session.lastDataSeen.Store(time.Now().UnixNano())
}

// Closes the socket and clears buffers
func (session *Session) Disconnect() {
	if session.stream != nil {
		session.stream.Disconnect()
	}
	session.Reset()
}

// Drops stale requests from the bin once per cleanup interval
func (session *Session) ConditionalCleaning() {
	now := time.Now()
	next := session.nextCleaning.Load()
	if now.UnixNano() < next {
		return
	}
	if !session.nextCleaning.CompareAndSwap(next, now.Add(CleanupInterval).UnixNano()) {
		return
	}
	session.requests.CleanOutDeadwood(StalenessLimit)
}
