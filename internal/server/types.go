package server

import (
	"context"
	"cromp/internal/audit"
	"cromp/internal/encryption"
	"cromp/internal/network"
	"cromp/internal/octopus"
	"cromp/internal/transport"
	"cromp/pkg/protocol"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// Minimum spacing between dead client sweeps
	SweepInterval time.Duration = 1 * time.Second

	// Sends plus receives handled per pump pass
	MaxActionsPerClient int = 4000

	// Push attempts per flush
	SendTriesAllowed int = 1

	// Pending output that triggers a flush mid-batch
	SendThreshold int = 512 * 1024

	// Push attempts when clogged
	ExtremeSendTries int = 28

	// Pending output beyond which no new replies are packed
	ClogCeiling int = 2 * 1024 * 1024

	// Reply bytes taken per batch
	BatchSize int = 384 * 1024

	// Dropper tick
	DroppingInterval time.Duration = 500 * time.Millisecond

	// First receive wait per pump pass
	DataAwait time.Duration = 14 * time.Millisecond

	// Accepter nap when nobody is connecting
	AcceptSnooze time.Duration = 60 * time.Millisecond

	DefaultAccepters int = 7
)

// Receives security relevant events
type Auditor func(ctx context.Context, event audit.Event)

type Config struct {
	Address       string // host:port to listen on
	Accepters     int
	Instantaneous bool // Evaluate every request inline instead of queueing for background handlers
	MaxPerEntity  int  // Response budget per entity (0 for default)
	Name          string
	Audit         Auditor
}

// Accepts clients and runs one pump per connection between its socket and the shared registry
type Server struct {
	Namespace []string
	ctx       context.Context
	cfg       Config
	octo      *octopus.Octopus

	enabled    atomic.Bool
	encrypting atomic.Bool
	keys       *encryption.KeyRepository
	listener   *network.Stream

	mu        sync.Mutex // guards clients and nextSweep
	clients   []*clientRecord
	nextSweep time.Time

	cancel  context.CancelFunc
	workers *errgroup.Group

	Metrics *MetricStorage
}

type MetricStorage struct {
	Accepted      atomic.Uint64 // New connections
	Dropped       atomic.Uint64 // Records removed by the dropper
	FixationClash atomic.Uint64 // Requests refused for a changed entity
	BlankEntity   atomic.Uint64 // Requests discarded for a blank entity
	WrapSkipped   atomic.Uint64 // Replies sent in the clear for lack of a key
}

// One connected client
type clientRecord struct {
	server  *Server
	session *transport.Session
	remote  string

	entMu   sync.Mutex
	ent     protocol.Entity
	fixated bool

	healthy        atomic.Bool
	stillConnected atomic.Bool

	cancel    context.CancelFunc
	done      chan struct{}
	croakOnce sync.Once
}
