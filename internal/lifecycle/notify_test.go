package lifecycle

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestNotify(t *testing.T) {
	tests := []struct {
		name   string
		send   func(ctx context.Context) error
		prefix string
	}{
		{"Ready", NotifyReady, "READY=1"},
		{"Stopping", NotifyStopping, "STOPPING=1"},
		{"Reload", NotifyReload, "RELOADING=1\nMONOTONIC_USEC="},
		{"Status", func(ctx context.Context) error { return NotifyStatus(ctx, "serving") }, "STATUS=serving"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sockPath := filepath.Join(t.TempDir(), "notify.sock")
			conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sockPath, Net: "unixgram"})
			if err != nil {
				t.Fatalf("failed to open notify socket: %v", err)
			}
			defer conn.Close()
			t.Setenv("NOTIFY_SOCKET", sockPath)

			err = tt.send(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			buf := make([]byte, 256)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := conn.Read(buf)
			if err != nil {
				t.Fatalf("failed reading notify message: %v", err)
			}
			if !strings.HasPrefix(string(buf[:n]), tt.prefix) {
				t.Errorf("expected message starting %q, got %q", tt.prefix, buf[:n])
			}
		})
	}
}

func TestNotifyWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if err := NotifyReady(context.Background()); err != nil {
		t.Errorf("expected no-op without socket, got %v", err)
	}
}

type recordingDaemon struct {
	calls    []string
	startErr error
}

func (daemon *recordingDaemon) Start(context.Context) error {
	daemon.calls = append(daemon.calls, "start")
	return daemon.startErr
}

func (daemon *recordingDaemon) Shutdown() {
	daemon.calls = append(daemon.calls, "shutdown")
}

func TestHandleSignals(t *testing.T) {
	tests := []struct {
		name      string
		received  []os.Signal
		startErr  error
		wantCalls []string
	}{
		{"Terminate", []os.Signal{syscall.SIGTERM}, nil, []string{"shutdown"}},
		{"Interrupt", []os.Signal{syscall.SIGINT}, nil, []string{"shutdown"}},
		{"Restart then quit", []os.Signal{syscall.SIGHUP, syscall.SIGQUIT}, nil,
			[]string{"shutdown", "start", "shutdown"}},
		{"Failed restart keeps handling", []os.Signal{syscall.SIGHUP, syscall.SIGHUP, syscall.SIGTERM}, errors.New("port taken"),
			[]string{"shutdown", "start", "shutdown", "start", "shutdown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NOTIFY_SOCKET", "")
			daemon := &recordingDaemon{startErr: tt.startErr}
			signals := make(chan os.Signal, len(tt.received))
			for _, sig := range tt.received {
				signals <- sig
			}

			handleSignals(context.Background(), daemon, signals)

			if !slices.Equal(daemon.calls, tt.wantCalls) {
				t.Errorf("expected %v, got %v", tt.wantCalls, daemon.calls)
			}
		})
	}
}

func TestHandleSignalsStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	daemon := &recordingDaemon{}
	handleSignals(ctx, daemon, make(chan os.Signal))
	if len(daemon.calls) != 0 {
		t.Errorf("expected daemon untouched, got %v", daemon.calls)
	}
}
