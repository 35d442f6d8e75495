package lifecycle

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"os"
	"os/signal"
	"syscall"
)

// What SignalHandler drives
type DaemonLike interface {
	Start(context.Context) (err error)
	Shutdown()
}

// Blocks until the daemon is told to stop. SIGHUP restarts it in place,
// SIGINT, SIGQUIT and SIGTERM shut it down and return.
func SignalHandler(ctx context.Context, daemon DaemonLike) {
	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	handleSignals(ctx, daemon, signals)
}

func handleSignals(ctx context.Context, daemon DaemonLike, signals <-chan os.Signal) {
	for {
		var received os.Signal
		select {
		case <-ctx.Done():
			return
		case received = <-signals:
		}
		logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "received %v\n", received)

		if received != syscall.SIGHUP {
			notifyOrWarn(ctx, NotifyStopping)
			daemon.Shutdown()
			return
		}
		restart(ctx, daemon)
	}
}

// A failed restart leaves the daemon down but the handler keeps waiting, so another SIGHUP can retry
func restart(ctx context.Context, daemon DaemonLike) {
	notifyOrWarn(ctx, NotifyReload)

	daemon.Shutdown()
	if err := daemon.Start(ctx); err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "restart failed: %v\n", err)
		notifyOrWarn(ctx, func(ctx context.Context) error {
			return NotifyStatus(ctx, "Restart failed, see daemon log")
		})
		return
	}
	notifyOrWarn(ctx, NotifyReady)
}
