package server

import (
	"bytes"
	"context"
	"cromp/internal/audit"
	"cromp/internal/client"
	"cromp/internal/echo"
	"cromp/internal/encryption"
	"cromp/internal/security"
	"cromp/pkg/protocol"
	"sync"
	"testing"
	"time"
)

// Starts a loopback server answering pings
func startServer(t *testing.T, encrypt bool, registry security.EntityRegistry, auditor Auditor) (server *Server) {
	t.Helper()

	server = New(context.Background(), Config{
		Address:   "127.0.0.1:0",
		Accepters: 2,
		Name:      "tester",
		Audit:     auditor,
	})
	server.Octopus().AddTentacle(echo.New(false))

	result := server.EnableServers(encrypt, registry)
	if result != protocol.OK {
		t.Fatalf("expected server to enable, got %s", result)
	}
	t.Cleanup(func() {
		server.DisableServers()
		server.Octopus().Shutdown()
	})
	return
}

func connectClient(t *testing.T, server *Server, encrypt bool, token []byte) (conn *client.Client, result protocol.Outcome) {
	t.Helper()

	conn, err := client.New(context.Background(), client.Config{
		Address:        server.Address(),
		Encrypt:        encrypt,
		Verification:   token,
		ConnectTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	t.Cleanup(conn.Close)

	result = conn.Connect(context.Background())
	return
}

func TestPingRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		encrypt bool
		payload []byte
	}{
		{"Plain", false, []byte("hello")},
		{"Plain empty", false, nil},
		{"Encrypted", true, []byte("secret hello")},
		{"Encrypted large", true, bytes.Repeat([]byte("z"), 600*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.encrypt, nil, nil)
			conn, result := connectClient(t, server, tt.encrypt, nil)
			if result != protocol.OK {
				t.Fatalf("expected connect OK, got %s", result)
			}
			if !conn.Identified() || !conn.Authorized() {
				t.Fatalf("expected identified and authorized client")
			}
			if conn.Secured() != tt.encrypt {
				t.Fatalf("expected secured=%t, got %t", tt.encrypt, conn.Secured())
			}

			reply, result := conn.SynchronousRequest(context.Background(), echo.NewPing(tt.payload), 5*time.Second)
			if result != protocol.OK {
				t.Fatalf("expected ping OK, got %s", result)
			}
			blob, ok := reply.(*protocol.Blob)
			if !ok {
				t.Fatalf("expected blob reply, got %T", reply)
			}
			if !blob.Class.Equal(echo.PingClass) {
				t.Errorf("expected classifier %s, got %s", echo.PingClass, blob.Class)
			}
			if !bytes.Equal(blob.Data, tt.payload) {
				t.Errorf("payload mismatch: sent %d bytes, got %d", len(tt.payload), len(blob.Data))
			}
		})
	}
}

func TestRequestOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		encrypt bool
		msg     protocol.Infoton
		want    protocol.Outcome
	}{
		{"Unknown classifier", false, protocol.NewBlob(protocol.NewClassifier("app", "nobody"), []byte("x")), protocol.NotFound},
		{"Unknown classifier encrypted", true, protocol.NewBlob(protocol.NewClassifier("app", "nobody"), []byte("x")), protocol.NotFound},
		{"Invalid classifier", false, protocol.NewBlob(protocol.Classifier{}, nil), protocol.BadInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.encrypt, nil, nil)
			conn, result := connectClient(t, server, tt.encrypt, nil)
			if result != protocol.OK {
				t.Fatalf("expected connect OK, got %s", result)
			}

			_, result = conn.SynchronousRequest(context.Background(), tt.msg, 5*time.Second)
			if result != tt.want {
				t.Errorf("expected %s, got %s", tt.want, result)
			}
		})
	}
}

func TestTokenLogin(t *testing.T) {
	token := []byte("open sesame")

	tests := []struct {
		name  string
		token []byte
		want  protocol.Outcome
	}{
		{"Correct token", token, protocol.OK},
		{"Wrong token", []byte("open barley"), protocol.Disallowed},
		{"No token", nil, protocol.Disallowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var events []audit.Event
			collect := func(ctx context.Context, event audit.Event) {
				mu.Lock()
				events = append(events, event)
				mu.Unlock()
			}

			server := startServer(t, false, security.NewTokenRegistry(token), collect)
			conn, result := connectClient(t, server, false, tt.token)
			if result != tt.want {
				t.Fatalf("expected login %s, got %s", tt.want, result)
			}
			if conn.Authorized() != (tt.want == protocol.OK) {
				t.Errorf("unexpected authorization state %t", conn.Authorized())
			}

			mu.Lock()
			defer mu.Unlock()
			if len(events) == 0 {
				t.Fatalf("expected a login audit event")
			}
			last := events[len(events)-1]
			if last.Action != audit.ActionLogin || last.Result != tt.want {
				t.Errorf("expected login audit with %s, got %s with %s", tt.want, last.Action, last.Result)
			}
			if last.Entity != conn.Entity() {
				t.Errorf("expected audit for %s, got %s", conn.Entity(), last.Entity)
			}
		})
	}
}

func TestUnauthorizedRequest(t *testing.T) {
	server := startServer(t, false, security.NewTokenRegistry([]byte("token")), nil)
	conn, result := connectClient(t, server, false, nil)
	if result != protocol.Disallowed {
		t.Fatalf("expected login refusal, got %s", result)
	}

	_, result = conn.SynchronousRequest(context.Background(), echo.NewPing([]byte("hi")), 5*time.Second)
	if result == protocol.OK {
		t.Errorf("expected unauthorized ping to fail")
	}
}

func TestEntityTracking(t *testing.T) {
	server := startServer(t, false, nil, nil)
	conn, result := connectClient(t, server, false, nil)
	if result != protocol.OK {
		t.Fatalf("expected connect OK, got %s", result)
	}

	ent := conn.Entity()
	remote, found := server.FindEntity(ent)
	if !found || remote == "" {
		t.Fatalf("expected server to know entity %s", ent)
	}
	if server.Clients() != 1 {
		t.Errorf("expected 1 client, got %d", server.Clients())
	}
	if _, found := server.FindEntity(protocol.Entity{Hostname: "nobody", Salt: 1}); found {
		t.Errorf("expected unknown entity to be missing")
	}

	if !server.DisconnectEntity(ent) {
		t.Fatalf("expected disconnect to find %s", ent)
	}

	deadline := time.Now().Add(5 * time.Second)
	for server.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if server.Clients() != 0 {
		t.Errorf("expected dropped client to be swept, %d remain", server.Clients())
	}
	if server.Metrics.Dropped.Load() == 0 {
		t.Errorf("expected dropped counter to move")
	}
}

func TestEntityFixation(t *testing.T) {
	var mu sync.Mutex
	var events []audit.Event
	server := New(context.Background(), Config{
		Address: "127.0.0.1:0",
		Audit: func(ctx context.Context, event audit.Event) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		},
	})
	defer server.Octopus().Shutdown()
	record := &clientRecord{server: server, remote: "127.0.0.1:9"}

	first := protocol.Entity{Hostname: "first", Salt: 1}
	second := protocol.Entity{Hostname: "second", Salt: 2}
	third := protocol.Entity{Hostname: "third", Salt: 3}

	steps := []struct {
		name  string
		ent   protocol.Entity
		admit bool
		now   protocol.Entity
	}{
		{"First entity adopted", first, true, first},
		{"Same entity again", first, true, first},
		{"Different entity fixates", second, true, second},
		{"Third entity refused", third, false, second},
		{"Original entity refused", first, false, second},
		{"Fixated entity admitted", second, true, second},
	}

	for _, step := range steps {
		admitted := record.admit(context.Background(), step.ent)
		if admitted != step.admit {
			t.Errorf("%s: expected admit %t, got %t", step.name, step.admit, admitted)
		}
		if record.entity() != step.now {
			t.Errorf("%s: expected record entity %s, got %s", step.name, step.now, record.entity())
		}
	}

	if server.Metrics.FixationClash.Load() != 2 {
		t.Errorf("expected 2 fixation clashes, got %d", server.Metrics.FixationClash.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0].Action != audit.ActionFixationClash || events[0].Entity != third {
		t.Errorf("expected fixation clash audit for %s, got %+v", third, events)
	}
}

func TestWrapReply(t *testing.T) {
	key := bytes.Repeat([]byte{0x17}, 32)
	ent := protocol.Entity{Hostname: "wrapped", Salt: 9}
	stranger := protocol.Entity{Hostname: "stranger", Salt: 10}

	server := New(context.Background(), Config{Address: "127.0.0.1:0"})
	defer server.Octopus().Shutdown()
	server.keys = encryption.NewKeyRepository()
	server.keys.Add(ent, key)

	ping := echo.NewPing([]byte("wrap me"))

	tests := []struct {
		name    string
		reply   protocol.Infoton
		ent     protocol.Entity
		wrapped bool
	}{
		{"Application reply", ping, ent, true},
		{"Unhandled reply", protocol.NewUnhandled(echo.PingClass, protocol.NotFound), ent, true},
		{"Identity reply", &protocol.Identity{NewName: ent}, ent, false},
		{"Encryption reply", &protocol.Encryption{Success: protocol.OK}, ent, false},
		{"No key", ping, stranger, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := server.wrapReply(context.Background(), tt.reply, tt.ent)

			wrapper, isWrapper := out.(*protocol.Wrapper)
			if isWrapper != tt.wrapped {
				t.Fatalf("expected wrapped=%t, got %T", tt.wrapped, out)
			}
			if !tt.wrapped {
				if out != tt.reply {
					t.Errorf("expected reply to pass through untouched")
				}
				return
			}

			if !wrapper.Classifier().Equal(protocol.WrapperClass) {
				t.Errorf("expected wire classifier %s, got %s", protocol.WrapperClass, wrapper.Classifier())
			}
			packed, err := encryption.Unwrap(wrapper, key)
			if err != nil {
				t.Fatalf("unexpected error unwrapping: %v", err)
			}
			want, err := protocol.FastPack(tt.reply)
			if err != nil {
				t.Fatalf("unexpected error packing: %v", err)
			}
			if !bytes.Equal(packed, want) {
				t.Errorf("decrypted bytes differ from the packed reply")
			}
		})
	}

	if server.Metrics.WrapSkipped.Load() != 1 {
		t.Errorf("expected 1 skipped wrap, got %d", server.Metrics.WrapSkipped.Load())
	}
}

func TestSendToClientDisabled(t *testing.T) {
	server := New(context.Background(), Config{Address: "127.0.0.1:0", Name: "tester"})
	defer server.Octopus().Shutdown()

	id := protocol.RequestID{Entity: protocol.Entity{Hostname: "x", Salt: 1}, Sequence: 1}
	if result := server.SendToClient(id, echo.NewPing(nil)); result != protocol.NoServer {
		t.Errorf("expected NoServer while disabled, got %s", result)
	}
	if server.DisconnectEntity(id.Entity) {
		t.Errorf("expected no disconnect while disabled")
	}
	if server.Address() != "" {
		t.Errorf("expected no address while disabled")
	}
}

func TestEnableServersOccupiedPort(t *testing.T) {
	first := startServer(t, false, nil, nil)

	second := New(context.Background(), Config{Address: first.Address(), Accepters: 1, Name: "second"})
	defer second.Octopus().Shutdown()

	result := second.EnableServers(false, nil)
	if result == protocol.OK {
		second.DisableServers()
		t.Fatalf("expected enabling on occupied %s to fail", first.Address())
	}
	if second.Enabled() || second.Address() != "" {
		t.Errorf("expected second server to stay disabled")
	}

	// The first server keeps every client
	conn, result := connectClient(t, first, false, nil)
	if result != protocol.OK {
		t.Fatalf("expected connect to first server OK, got %s", result)
	}
	if _, found := first.FindEntity(conn.Entity()); !found {
		t.Errorf("expected first server to hold the client")
	}
}

func TestCollectMetrics(t *testing.T) {
	server := startServer(t, false, nil, nil)
	_, result := connectClient(t, server, false, nil)
	if result != protocol.OK {
		t.Fatalf("expected connect OK, got %s", result)
	}

	collection := server.CollectMetrics(time.Second)
	names := make(map[string]bool)
	for _, metric := range collection {
		names[metric.Name] = true
	}
	for _, want := range []string{"clients", "accepted", "fixation_clash", "bytes_in"} {
		if !names[want] {
			t.Errorf("expected metric %q in collection", want)
		}
	}
}
