package network

import (
	"context"
	"cromp/pkg/protocol"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// Longest a receive call blocks when nothing is buffered
	receivePoll time.Duration = 2 * time.Millisecond

	// Longest a send call blocks on a full socket buffer
	sendWait time.Duration = 20 * time.Millisecond

	// Longest a waiting accept blocks
	acceptWait time.Duration = 60 * time.Millisecond

	// Read size used while waiting for readability
	peekSize int = 64 * 1024
)

// Byte stream socket with non-fatal, outcome based calls.
// One stream is either a listener or a connection.
type Stream struct {
	address  string
	mu       sync.Mutex // guards conn and listener replacement
	conn     net.Conn
	listener net.Listener

	readMu  sync.Mutex
	pending []byte // data read while waiting for readability
	writeMu sync.Mutex

	connected atomic.Bool
}

// Creates unconnected client stream for host:port
func NewStream(address string) (new *Stream) {
	new = &Stream{address: address}
	return
}

// Opens a listening stream. Fails when another listener holds the port.
func Listen(address string) (new *Stream, err error) {
	listener, err := ListenTCP(address)
	if err != nil {
		return
	}
	new = &Stream{
		address:  listener.Addr().String(),
		listener: listener,
	}
	new.connected.Store(true)
	return
}

func newAcceptedStream(conn net.Conn) (new *Stream) {
	new = &Stream{
		address: conn.RemoteAddr().String(),
		conn:    conn,
	}
	new.connected.Store(true)
	return
}

// Address dialed, listened on, or (for accepted streams) the remote peer
func (stream *Stream) Address() string {
	return stream.address
}

func (stream *Stream) Connected() (connected bool) {
	connected = stream.connected.Load()
	return
}

// Dials the configured address
func (stream *Stream) Connect(timeout time.Duration) (result protocol.Outcome) {
	if stream.Connected() {
		result = protocol.OK
		return
	}

	dialer := net.Dialer{Timeout: timeout}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", stream.address)
	if err != nil {
		result = dialOutcome(err)
		return
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	stream.mu.Lock()
	stream.conn = conn
	stream.mu.Unlock()

	stream.readMu.Lock()
	stream.pending = nil
	stream.readMu.Unlock()

	stream.connected.Store(true)
	result = protocol.OK
	return
}

// Maps dial errors to outcomes
func dialOutcome(err error) (result protocol.Outcome) {
	var netErr net.Error
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		result = protocol.NoAnswer
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		result = protocol.AccessDenied
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		result = protocol.TimedOut
	case errors.As(err, &netErr) && netErr.Timeout():
		result = protocol.TimedOut
	default:
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			result = protocol.NoAnswer
			return
		}
		result = protocol.NoConnection
	}
	return
}

// Takes one pending connection from a listening stream.
// NoConnection means nothing arrived in time.
func (stream *Stream) Accept(wait bool) (client *Stream, result protocol.Outcome) {
	stream.mu.Lock()
	listener := stream.listener
	stream.mu.Unlock()
	if listener == nil || !stream.Connected() {
		result = protocol.NoServer
		return
	}

	deadline := time.Now().Add(time.Millisecond)
	if wait {
		deadline = time.Now().Add(acceptWait)
	}
	if tcpListener, ok := listener.(*net.TCPListener); ok {
		tcpListener.SetDeadline(deadline)
	}

	conn, err := listener.Accept()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			result = protocol.NoConnection
			return
		}
		if errors.Is(err, net.ErrClosed) {
			result = protocol.NoServer
			return
		}
		result = protocol.Failure
		return
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	client = newAcceptedStream(conn)
	result = protocol.OK
	return
}

func (stream *Stream) current() (conn net.Conn) {
	stream.mu.Lock()
	conn = stream.conn
	stream.mu.Unlock()
	return
}

// Writes as much of data as the socket accepts without blocking long
func (stream *Stream) Send(data []byte) (sent int, result protocol.Outcome) {
	conn := stream.current()
	if conn == nil || !stream.Connected() {
		result = protocol.NoConnection
		return
	}
	if len(data) == 0 {
		result = protocol.OK
		return
	}

	stream.writeMu.Lock()
	defer stream.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(sendWait))
	sent, err := conn.Write(data)
	if err == nil {
		result = protocol.OK
		return
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if sent > 0 {
			result = protocol.Partial
			return
		}
		result = protocol.NoneReady
		return
	}

	stream.markLost()
	result = protocol.NoConnection
	return
}

// Reads up to max bytes that are already available
func (stream *Stream) Receive(max int) (data []byte, result protocol.Outcome) {
	stream.readMu.Lock()
	defer stream.readMu.Unlock()

	if len(stream.pending) > 0 {
		count := min(max, len(stream.pending))
		data = append([]byte(nil), stream.pending[:count]...)
		stream.pending = stream.pending[count:]
		if len(stream.pending) == 0 {
			stream.pending = nil
		}
		result = protocol.OK
		return
	}

	data, result = stream.read(max, receivePoll)
	return
}

// Waits until data can be received. Data read while waiting is kept for the next receive.
func (stream *Stream) AwaitReadable(wait time.Duration) (result protocol.Outcome) {
	stream.readMu.Lock()
	defer stream.readMu.Unlock()

	if len(stream.pending) > 0 {
		result = protocol.OK
		return
	}

	data, result := stream.read(peekSize, wait)
	if result == protocol.OK {
		stream.pending = data
	}
	return
}

// Sends never queue inside the stream so a connected stream is always writable
func (stream *Stream) AwaitWritable(wait time.Duration) (result protocol.Outcome) {
	if !stream.Connected() {
		result = protocol.NoConnection
		return
	}
	result = protocol.OK
	return
}

// Caller holds readMu
func (stream *Stream) read(max int, wait time.Duration) (data []byte, result protocol.Outcome) {
	conn := stream.current()
	if conn == nil || !stream.Connected() {
		result = protocol.NoConnection
		return
	}

	buf := make([]byte, max)
	conn.SetReadDeadline(time.Now().Add(wait))
	count, err := conn.Read(buf)
	if count > 0 {
		data = buf[:count]
		result = protocol.OK
		return
	}
	if err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
		result = protocol.NoneReady
		return
	}

	// EOF, resets and closed sockets all end the connection
	stream.markLost()
	result = protocol.NoConnection
	return
}

func (stream *Stream) markLost() {
	stream.connected.Store(false)
}

// Closes the connection or listener. Safe to call repeatedly.
func (stream *Stream) Disconnect() {
	stream.connected.Store(false)

	stream.mu.Lock()
	conn := stream.conn
	listener := stream.listener
	stream.conn = nil
	stream.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if listener != nil {
		listener.Close()
	}

	stream.readMu.Lock()
	stream.pending = nil
	stream.readMu.Unlock()
}
