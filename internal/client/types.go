package client

import (
	"context"
	"cromp/internal/encryption"
	"cromp/internal/octopus"
	"cromp/internal/transport"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Socket connects tried per connect call
	ConnectAttempts int = 3

	// Pause between failed socket connects
	ConnectSnooze time.Duration = 200 * time.Millisecond

	DefaultConnectTimeout time.Duration = 5 * time.Second

	// Wait for each reply during login
	LoginTimeout time.Duration = 10 * time.Second

	// Default pump interval while idling
	KeepAliveInterval time.Duration = 40 * time.Millisecond
)

type Config struct {
	Address        string        // host:port of the server
	Encrypt        bool          // Secure the channel before logging in
	Verification   []byte        // Token presented at login
	ConnectTimeout time.Duration // Per socket connect attempt
	MaxPerEntity   int           // Inbound budget (0 for default)

	// Shared key pair used instead of a fresh pair when the server is on a loopback address
	LocalhostKey encryption.KeyPair
}

// Connection to one server: identity, optional encryption and login are negotiated on connect
type Client struct {
	Namespace []string
	ctx       context.Context
	cfg       Config
	octo      *octopus.Octopus

	mu         sync.Mutex // serializes connect, login and disconnect
	session    atomic.Pointer[transport.Session]
	entity     atomic.Pointer[entityBox]
	sessionKey []byte // guarded by keyMu
	keyMu      sync.RWMutex
	sequence   atomic.Uint32

	identified atomic.Bool
	secured    atomic.Bool
	authorized atomic.Bool

	// Set while the background connector owns the connection
	disallowed atomic.Bool
	connector  *connector
	connLock   sync.Mutex // guards connector
}

type connector struct {
	cancel context.CancelFunc
	done   chan struct{}
}
