package client

import (
	"bytes"
	"context"
	"cromp/internal/echo"
	"cromp/internal/octopus"
	"cromp/internal/server"
	"cromp/pkg/protocol"
	"net"
	"sync"
	"testing"
	"time"
)

// Address of a port nothing is listening on
func closedAddress(t *testing.T) (address string) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	address = listener.Addr().String()
	listener.Close()
	return
}

func echoServer(t *testing.T, encrypt bool) (srv *server.Server) {
	t.Helper()

	srv = server.New(context.Background(), server.Config{
		Address:   "127.0.0.1:0",
		Accepters: 1,
		Name:      "client-test",
	})
	srv.Octopus().AddTentacle(echo.New(false))
	if result := srv.EnableServers(encrypt, nil); result != protocol.OK {
		t.Fatalf("expected server to enable, got %s", result)
	}
	t.Cleanup(func() {
		srv.DisableServers()
		srv.Octopus().Shutdown()
	})
	return
}

func newClient(t *testing.T, cfg Config) (conn *Client) {
	t.Helper()

	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = time.Second
	}
	conn, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	t.Cleanup(conn.Close)
	return
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"Host and port", "localhost:10008", false},
		{"IPv6", "[::1]:10008", false},
		{"Empty", "", true},
		{"Missing port", "localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := New(context.Background(), Config{Address: tt.address})
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err != nil {
				return
			}
			defer conn.Close()

			if conn.cfg.ConnectTimeout != DefaultConnectTimeout {
				t.Errorf("expected default connect timeout, got %v", conn.cfg.ConnectTimeout)
			}
			if conn.Connected() || conn.Identified() || conn.Secured() || conn.Authorized() {
				t.Errorf("expected new client to hold no session state")
			}
			if !conn.Entity().Blank() {
				t.Errorf("expected blank entity before connect, got %s", conn.Entity())
			}
		})
	}
}

func TestNewCopiesVerification(t *testing.T) {
	token := []byte("token")
	conn := newClient(t, Config{Address: "localhost:1", Verification: token})

	token[0] = 'X'
	if string(conn.cfg.Verification) != "token" {
		t.Errorf("expected client to keep its own copy of the token, got %q", conn.cfg.Verification)
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		address string
		want    bool
	}{
		{"localhost:1", true},
		{"127.0.0.1:1", true},
		{"127.8.9.10:1", true},
		{"[::1]:1", true},
		{"192.0.2.1:1", false},
		{"example.com:1", false},
		{"no-port", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			if got := isLoopback(tt.address); got != tt.want {
				t.Errorf("isLoopback(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestNextSequence(t *testing.T) {
	conn := newClient(t, Config{Address: "localhost:1"})

	if seq := conn.nextSequence(); seq != 1 {
		t.Errorf("expected first sequence 1, got %d", seq)
	}
	if seq := conn.nextSequence(); seq != 2 {
		t.Errorf("expected second sequence 2, got %d", seq)
	}

	conn.sequence.Store(protocol.MaximumSequence - 1)
	if seq := conn.nextSequence(); seq != 1 {
		t.Errorf("expected sequence to roll over to 1, got %d", seq)
	}
}

func TestUnconnectedCalls(t *testing.T) {
	conn := newClient(t, Config{Address: closedAddress(t)})
	ctx := context.Background()

	if _, result := conn.SynchronousRequest(ctx, echo.NewPing(nil), 10*time.Millisecond); result != protocol.NoConnection {
		t.Errorf("expected NoConnection from request, got %s", result)
	}
	if _, result := conn.Submit(ctx, nil); result != protocol.BadInput {
		t.Errorf("expected BadInput for nil message, got %s", result)
	}
	if _, result := conn.Acquire(ctx, protocol.RequestID{}, 0); result != protocol.NoConnection {
		t.Errorf("expected NoConnection from acquire, got %s", result)
	}
	if _, _, result := conn.AcquireAny(ctx, 0); result != protocol.NoConnection {
		t.Errorf("expected NoConnection from acquire any, got %s", result)
	}
	if result := conn.Login(ctx); result != protocol.NoConnection {
		t.Errorf("expected NoConnection from login, got %s", result)
	}
	if result := conn.Disconnect(); result != protocol.OK {
		t.Errorf("expected disconnect of idle client to be OK, got %s", result)
	}
}

func TestConnectRefused(t *testing.T) {
	conn := newClient(t, Config{Address: closedAddress(t)})

	result := conn.Connect(context.Background())
	if result != protocol.NoServer {
		t.Fatalf("expected NoServer, got %s", result)
	}
	if conn.Connected() {
		t.Errorf("expected client to stay unconnected")
	}
	if !conn.Entity().Blank() {
		t.Errorf("expected entity cleared after failed connect")
	}
}

func TestAsynchConnect(t *testing.T) {
	conn := newClient(t, Config{Address: closedAddress(t)})
	ctx := context.Background()

	if result := conn.AsynchConnect(); result != protocol.NoConnection {
		t.Fatalf("expected NoConnection while connecting, got %s", result)
	}
	if result := conn.AsynchConnect(); result != protocol.NoConnection {
		t.Errorf("expected second call to report NoConnection, got %s", result)
	}

	// Everything else is locked out while the connector runs
	if _, result := conn.Submit(ctx, echo.NewPing(nil)); result != protocol.NoConnection {
		t.Errorf("expected submit to be locked out, got %s", result)
	}
	if result := conn.Logout(ctx); result != protocol.NoConnection {
		t.Errorf("expected logout to be locked out, got %s", result)
	}

	conn.CloseAsynchConnect()
	if conn.disallowed.Load() {
		t.Errorf("expected lockout lifted after closing connector")
	}
	if _, result := conn.Submit(ctx, nil); result != protocol.BadInput {
		t.Errorf("expected calls to reach the session checks again, got %s", result)
	}
}

func TestAsynchConnectReachesServer(t *testing.T) {
	srv := echoServer(t, false)
	conn := newClient(t, Config{Address: srv.Address()})

	conn.AsynchConnect()

	deadline := time.Now().Add(5 * time.Second)
	for !conn.Connected() || conn.disallowed.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("background connector never finished")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if result := conn.AsynchConnect(); result != protocol.OK {
		t.Errorf("expected OK once connected, got %s", result)
	}
	if !conn.Authorized() {
		t.Errorf("expected background connect to log in")
	}
}

func TestRequestAndLogout(t *testing.T) {
	tests := []struct {
		name    string
		encrypt bool
	}{
		{"Plain", false},
		{"Encrypted", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := echoServer(t, tt.encrypt)
			conn := newClient(t, Config{Address: srv.Address(), Encrypt: tt.encrypt})
			ctx := context.Background()

			if result := conn.Connect(ctx); result != protocol.OK {
				t.Fatalf("expected connect OK, got %s", result)
			}
			if conn.Entity().Blank() {
				t.Fatalf("expected server issued entity")
			}
			if conn.Secured() != tt.encrypt {
				t.Errorf("expected secured %v, got %v", tt.encrypt, conn.Secured())
			}

			payload := []byte("are you there")
			id, result := conn.Submit(ctx, echo.NewPing(payload))
			if result != protocol.OK {
				t.Fatalf("expected submit OK, got %s", result)
			}
			if id.Entity != conn.Entity() {
				t.Errorf("expected request id to carry the client entity")
			}
			reply, result := conn.Acquire(ctx, id, 5*time.Second)
			if result != protocol.OK {
				t.Fatalf("expected reply, got %s", result)
			}
			blob, ok := reply.(*protocol.Blob)
			if !ok {
				t.Fatalf("expected blob reply, got %T", reply)
			}
			if !bytes.Equal(blob.Data, payload) {
				t.Errorf("expected echoed payload %q, got %q", payload, blob.Data)
			}

			if result := conn.Logout(ctx); result != protocol.OK {
				t.Fatalf("expected logout OK, got %s", result)
			}
			if conn.Authorized() {
				t.Errorf("expected client to be logged out")
			}
			if !conn.Connected() {
				t.Errorf("expected connection to survive logout")
			}

			if result := conn.Login(ctx); result != protocol.OK {
				t.Fatalf("expected login again OK, got %s", result)
			}
			if !conn.Authorized() {
				t.Errorf("expected client authorized after login")
			}

			conn.Disconnect()
			if conn.Connected() || conn.Identified() || conn.Secured() || conn.Authorized() {
				t.Errorf("expected disconnect to clear all session state")
			}
		})
	}
}

func TestKeepAlivePause(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		interval time.Duration
		maxTaken time.Duration
	}{
		{"Zero duration", 0, 0, 500 * time.Millisecond},
		{"Negative duration", -time.Second, 0, 500 * time.Millisecond},
		{"Short pause", 60 * time.Millisecond, 10 * time.Millisecond, time.Second},
		{"Interval longer than pause", 30 * time.Millisecond, time.Hour, time.Second},
	}

	srv := echoServer(t, false)
	conn := newClient(t, Config{Address: srv.Address()})
	if result := conn.Connect(context.Background()); result != protocol.OK {
		t.Fatalf("expected connect OK, got %s", result)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			conn.KeepAlivePause(context.Background(), tt.duration, tt.interval)
			taken := time.Since(start)

			if tt.duration > 0 && taken < tt.duration {
				t.Errorf("expected pause of at least %v, returned after %v", tt.duration, taken)
			}
			if taken > tt.maxTaken {
				t.Errorf("expected pause to end within %v, took %v", tt.maxTaken, taken)
			}
		})
	}

	if !conn.Connected() {
		t.Errorf("expected connection to survive keep alive")
	}
}

func TestKeepAlivePauseCancelled(t *testing.T) {
	conn := newClient(t, Config{Address: "localhost:1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	conn.KeepAlivePause(ctx, time.Hour, 10*time.Millisecond)
	if taken := time.Since(start); taken > time.Second {
		t.Errorf("expected cancelled pause to return promptly, took %v", taken)
	}
}

// Server filter noting the classifier of every message as it came off the wire
type wireTap struct {
	*octopus.Base
	mu      sync.Mutex
	classes []protocol.Classifier
}

func (tap *wireTap) Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	tap.mu.Lock()
	tap.classes = append(tap.classes, item.Classifier())
	tap.mu.Unlock()
	result = protocol.Partial
	return
}

func (tap *wireTap) seen() (classes []protocol.Classifier) {
	tap.mu.Lock()
	defer tap.mu.Unlock()
	classes = append(classes, tap.classes...)
	return
}

func TestSecuredRequestsTravelWrapped(t *testing.T) {
	tests := []struct {
		name    string
		encrypt bool
	}{
		{"Plain channel", false},
		{"Secured channel", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := server.New(context.Background(), server.Config{
				Address:   "127.0.0.1:0",
				Accepters: 1,
				Name:      "client-test",
			})
			// Registered ahead of the decrypting filter so it sees messages as sent
			tap := &wireTap{Base: octopus.NewBase(protocol.NewClassifier("tap"), true, false, octopus.RestoreBlob)}
			srv.Octopus().AddTentacle(tap)
			srv.Octopus().AddTentacle(echo.New(false))
			if result := srv.EnableServers(tt.encrypt, nil); result != protocol.OK {
				t.Fatalf("expected server to enable, got %s", result)
			}
			t.Cleanup(func() {
				srv.DisableServers()
				srv.Octopus().Shutdown()
			})

			conn := newClient(t, Config{Address: srv.Address(), Encrypt: tt.encrypt})
			if result := conn.Connect(context.Background()); result != protocol.OK {
				t.Fatalf("expected connect OK, got %s", result)
			}
			if _, result := conn.SynchronousRequest(context.Background(), echo.NewPing([]byte("hello")), 5*time.Second); result != protocol.OK {
				t.Fatalf("expected ping OK, got %s", result)
			}

			var wrapped, clearPings int
			for _, class := range tap.seen() {
				switch {
				case class.Equal(protocol.WrapperClass):
					wrapped++
				case class.Equal(echo.PingClass):
					clearPings++
				case class.Equal(protocol.IdentityClass), class.Equal(protocol.EncryptionClass):
				default:
					if tt.encrypt {
						t.Errorf("expected only bootstrap messages in the clear, saw %s", class)
					}
				}
			}

			if tt.encrypt {
				if wrapped == 0 || clearPings != 0 {
					t.Errorf("expected ping wrapped on the wire, got %d wrapped and %d clear", wrapped, clearPings)
				}
				return
			}
			if wrapped != 0 || clearPings != 1 {
				t.Errorf("expected one clear ping and nothing wrapped, got %d wrapped and %d clear", wrapped, clearPings)
			}
		})
	}
}
