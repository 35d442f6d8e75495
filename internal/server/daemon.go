// Daemon serving clients until signalled, with metrics, query server and audit output around it
package server

import (
	"context"
	"cromp/internal/audit"
	"cromp/internal/echo"
	"cromp/internal/externalio/beats"
	"cromp/internal/externalio/file"
	"cromp/internal/externalio/journald"
	"cromp/internal/externalio/query"
	"cromp/internal/global"
	"cromp/internal/logctx"
	metricGlb "cromp/internal/metrics"
	"cromp/internal/security"
	"cromp/internal/server/metrics"
	"cromp/internal/transfer"
	"cromp/pkg/protocol"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Interval between registry prunes
const pruneInterval time.Duration = 10 * time.Minute

// Create new server daemon instance
func NewDaemon(cfg DaemonConfig) (new *Daemon) {
	ctx, cancel := context.WithCancel(context.Background())
	new = &Daemon{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	return
}

// Brings up audit outputs, handlers, the client listener, metrics and the query endpoint in that order.
// Anything already running is torn down again when a later step fails.
func (daemon *Daemon) Start(globalCtx context.Context) (err error) {
	daemon.ctx, daemon.cancel = context.WithCancel(context.Background())
	daemon.ctx = logctx.WithLogger(daemon.ctx, logctx.GetLogger(globalCtx))
	daemon.cfg.setDefaults()

	defer func() {
		if err != nil {
			daemon.Shutdown()
		}
	}()

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "Starting cromp daemon\n")

	if global.Hostname, err = os.Hostname(); err != nil {
		err = fmt.Errorf("failed to determine local hostname: %w", err)
		return
	}
	global.PID = os.Getpid()

	if err = daemon.openAuditOutputs(); err != nil {
		return
	}

	if daemon.cfg.Token != "" {
		daemon.registry = security.NewTokenRegistry([]byte(daemon.cfg.Token))
	} else {
		daemon.registry = security.NewSimpleRegistry()
	}

	daemon.Server = New(daemon.ctx, Config{
		Address:       net.JoinHostPort(daemon.cfg.ListenIP, strconv.Itoa(daemon.cfg.ListenPort)),
		Accepters:     daemon.cfg.Accepters,
		Instantaneous: daemon.cfg.Instantaneous,
		MaxPerEntity:  daemon.cfg.MaxPerEntity,
		Audit:         daemon.audit,
	})
	if err = daemon.addHandlers(); err != nil {
		return
	}

	if result := daemon.Server.EnableServers(daemon.cfg.Encrypt, daemon.registry); result != protocol.OK {
		err = fmt.Errorf("failed enabling server on port %d: %w", daemon.cfg.ListenPort, result)
		return
	}

	if pruner, ok := daemon.registry.(interface{ Prune(time.Duration) int }); ok {
		daemon.spawn(daemon.ctx, func(ctx context.Context) { daemon.runPruner(ctx, pruner.Prune) })
	}

	collectors := []metrics.Collector{daemon.Server, metrics.CollectorFunc(daemon.collectRegistryMetrics)}
	if daemon.transfers != nil {
		collectors = append(collectors, daemon.transfers)
	}
	daemon.metricsCollector = metrics.New(daemon.cfg.MetricCollectionInterval, daemon.cfg.MetricMaxAge, collectors...)
	daemon.spawn(daemon.ctx, daemon.metricsCollector.Run)

	stored := daemon.metricsCollector.Registry
	daemon.Metrics = query.Sources{Search: stored.Search, Discover: stored.Discover, Aggregate: stored.Aggregate}

	if daemon.cfg.MetricQueryServerEnabled {
		queryCtx := logctx.AppendCtxTag(logctx.AppendCtxTag(daemon.ctx, global.NSMetric), global.NSMetricSrv)
		daemon.MetricServer, err = query.SetupListener(queryCtx, daemon.cfg.MetricQueryServerPort, daemon.Metrics)
		if err != nil {
			err = fmt.Errorf("failed setting up metric query server: %w", err)
			return
		}
		daemon.spawn(queryCtx, daemon.MetricServer.Serve)
	}

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Serving clients on %s\n", daemon.Server.Address())
	return
}

// Runs task under the daemon wait group
func (daemon *Daemon) spawn(ctx context.Context, task func(context.Context)) {
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		task(ctx)
	}()
}

func (daemon *Daemon) openAuditOutputs() (err error) {
	auditBeats, err := beats.NewOutput(daemon.cfg.BeatsEndpoint)
	if err != nil {
		err = fmt.Errorf("failed starting beats audit output: %w", err)
		return
	}
	daemon.auditBeats.Store(auditBeats)

	auditFile, err := file.NewOutput(daemon.cfg.AuditFilePath)
	if err != nil {
		err = fmt.Errorf("failed starting file audit output: %w", err)
		return
	}
	daemon.auditFile.Store(auditFile)

	auditJournal, err := journald.NewOutput(daemon.cfg.JournaldURL)
	if err != nil {
		err = fmt.Errorf("failed starting journald audit output: %w", err)
		return
	}
	daemon.auditJournal.Store(auditJournal)
	return
}

// Registers the configured tentacles with the server octopus
func (daemon *Daemon) addHandlers() (err error) {
	octo := daemon.Server.Octopus()

	if daemon.cfg.EchoEnabled {
		if result := octo.AddTentacle(echo.New(daemon.cfg.EchoBackground)); result != protocol.OK {
			err = fmt.Errorf("failed adding echo handler: %w", result)
			return
		}
	}

	if len(daemon.cfg.TransferRoots) == 0 {
		return
	}
	daemon.transfers, err = transfer.New(daemon.Server.Namespace, daemon.cfg.TransferChunk)
	if err != nil {
		err = fmt.Errorf("failed creating transfer handler: %w", err)
		return
	}
	for name, root := range daemon.cfg.TransferRoots {
		if err = daemon.transfers.AddCorrespondence(name, root); err != nil {
			err = fmt.Errorf("failed publishing transfer mapping: %w", err)
			return
		}
	}
	if result := octo.AddTentacle(daemon.transfers); result != protocol.OK {
		err = fmt.Errorf("failed adding transfer handler: %w", result)
	}
	return
}

// Stops the query endpoint and listener first, then waits out workers and closes audit outputs.
// Problems are logged, never returned.
func (daemon *Daemon) Shutdown() {
	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "Stopping cromp daemon\n")

	if daemon.MetricServer != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := daemon.MetricServer.Shutdown(stopCtx); err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"metric server did not stop cleanly: %v\n", err)
		}
		cancel()
		daemon.MetricServer = nil
	}

	if daemon.Server != nil {
		daemon.Server.DisableServers()
		daemon.Server.Octopus().Shutdown()
	}
	daemon.cancel()

	workersDone := make(chan struct{})
	go func() {
		daemon.wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-time.After(global.ServerShutdownTimeout):
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
			"background workers still running after %v, continuing\n", global.ServerShutdownTimeout)
	}

	// Nil modules shut down as no-ops
	outputs := map[string]interface{ Shutdown() error }{
		"beats":    daemon.auditBeats.Swap(nil),
		"file":     daemon.auditFile.Swap(nil),
		"journald": daemon.auditJournal.Swap(nil),
	}
	for name, output := range outputs {
		if err := output.Shutdown(); err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"%s audit output did not close cleanly: %v\n", name, err)
		}
	}

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "cromp daemon stopped\n")
}

// Forwards audit events to every configured output
func (daemon *Daemon) audit(ctx context.Context, event audit.Event) {
	ctx = logctx.AppendCtxTag(ctx, global.NSAudit)
	severity := global.InfoLog
	if event.Refused() {
		severity = global.WarnLog
	}
	logctx.LogEvent(ctx, global.VerbosityProgress, severity,
		"%s by %s from %s: %s\n", event.Action, event.Entity, event.Remote, event.Result)

	_, err := daemon.auditBeats.Load().Write(ctx, event)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"failed sending audit event to beats: %v\n", err)
	}
	_, err = daemon.auditFile.Load().Write(ctx, event)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"failed writing audit event to file: %v\n", err)
	}
	_, err = daemon.auditJournal.Load().Write(ctx, event)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"failed sending audit event to journald: %v\n", err)
	}
}

func (daemon *Daemon) runPruner(ctx context.Context, prune func(time.Duration) int) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := prune(daemon.cfg.Dormancy)
			if removed > 0 {
				logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
					"pruned %d dormant entities from registry\n", removed)
			}
		}
	}
}

func (daemon *Daemon) collectRegistryMetrics(interval time.Duration) (collection []metricGlb.Metric) {
	counter, ok := daemon.registry.(interface{ Count() int })
	if !ok {
		return
	}
	collection = append(collection, metricGlb.Metric{
		Name:        "registered_entities",
		Description: "Entities currently logged in",
		Namespace:   []string{global.NSServer, global.NSSecurity},
		Type:        metricGlb.Gauge,
		Timestamp:   time.Now(),
		Value: metricGlb.MetricValue{
			Raw:      uint64(counter.Count()),
			Unit:     "count",
			Interval: interval,
		},
	})
	return
}
