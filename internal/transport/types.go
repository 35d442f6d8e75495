package transport

import (
	"cromp/internal/databin"
	"cromp/internal/network"
	"cromp/pkg/protocol"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Partial frames older than this are treated as corruption
	StalenessLimit time.Duration = 2 * time.Minute

	// Longest wait for a full socket buffer to drain
	SendDelay time.Duration = 200 * time.Millisecond

	// Longest wait for inbound data when asked to wait
	DataAwait time.Duration = 80 * time.Millisecond

	// Poll step inside the longer waits
	QuickSnooze time.Duration = 28 * time.Millisecond

	// Socket read size and reads per snarf
	ReceiveChunk     int = 256 * 1024
	ReceivesPerSnarf int = 70

	// Most bytes handed to the socket per send
	MaxSend int = 128 * 1024

	// Request bin deadwood cleaning interval
	CleanupInterval time.Duration = 28 * time.Second

	// Default request bin budget per entity
	DefaultMaxPerEntity int = 14 * 1024 * 1024

	// Outbound bytes beyond which a session counts as clogged
	DefaultClogSize int = 1024 * 1024
)

// Turns a classifier and payload back into a typed message
type Restorer interface {
	Restore(class protocol.Classifier, payload []byte) (msg protocol.Infoton, result protocol.Outcome)
}

// Pumps bytes between one stream socket and the framer.
// Inbound frames land in the request bin, outbound frames queue in the send buffer.
type Session struct {
	Namespace []string
	stream    *network.Stream
	restorer  Restorer
	requests  *databin.Bin

	sendMu   sync.Mutex
	outbound []byte

	recvMu  sync.Mutex
	inbound []byte

	lastDataSeen atomic.Int64 // unix nanos
	nextCleaning atomic.Int64 // unix nanos

	Metrics *MetricStorage
}

type MetricStorage struct {
	BytesIn         atomic.Uint64
	BytesOut        atomic.Uint64
	FramesIn        atomic.Uint64
	FramesOut       atomic.Uint64
	Resyncs         atomic.Uint64 // Bytes skipped to recover the frame boundary
	RestoreFailures atomic.Uint64 // Frames whose message could not be rebuilt
	BinRejects      atomic.Uint64 // Restored frames refused by the request bin
}
