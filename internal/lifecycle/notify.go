// Daemon process lifecycle: signal handling and systemd readiness notification
package lifecycle

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Startup finished, clients are being served
func NotifyReady(ctx context.Context) (err error) {
	err = notify(ctx, "READY=1")
	return
}

// Shutdown has begun
func NotifyStopping(ctx context.Context) (err error) {
	err = notify(ctx, "STOPPING=1")
	return
}

// Restart in place has begun. systemd requires the monotonic time alongside.
func NotifyReload(ctx context.Context) (err error) {
	var now unix.Timespec
	if err = unix.ClockGettime(unix.CLOCK_MONOTONIC, &now); err != nil {
		err = fmt.Errorf("failed reading monotonic clock: %w", err)
		return
	}
	micros := int64(now.Sec)*1_000_000 + int64(now.Nsec)/1_000
	err = notify(ctx, "RELOADING=1", "MONOTONIC_USEC="+strconv.FormatInt(micros, 10))
	return
}

// Free text shown by systemctl status
func NotifyStatus(ctx context.Context, status string) (err error) {
	err = notify(ctx, "STATUS="+status)
	return
}

// Sends assignments as one datagram to NOTIFY_SOCKET. Does nothing outside systemd.
func notify(ctx context.Context, assignments ...string) (err error) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socket, Net: "unixgram"})
	if err != nil {
		err = fmt.Errorf("failed reaching notify socket: %w", err)
		return
	}
	defer conn.Close()

	message := strings.Join(assignments, "\n")
	if _, err = conn.Write([]byte(message)); err != nil {
		err = fmt.Errorf("failed sending %q to notify socket: %w", message, err)
		return
	}

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "told systemd %s\n", assignments[0])
	return
}

// Notification failures never stop the daemon, they are only logged
func notifyOrWarn(ctx context.Context, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "%v\n", err)
	}
}
