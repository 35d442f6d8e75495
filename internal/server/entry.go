// Server side of the transport: accepter pool, per-client pumps and dead client dropping
package server

import (
	"context"
	"cromp/internal/audit"
	"cromp/internal/encryption"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/network"
	"cromp/internal/octopus"
	"cromp/internal/security"
	"cromp/pkg/protocol"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Creates a disabled server. Handlers may be added to its registry before enabling.
func New(ctx context.Context, cfg Config) (new *Server) {
	if cfg.Accepters <= 0 {
		cfg.Accepters = DefaultAccepters
	}
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf(":%d", global.DefaultPort)
	}
	if cfg.Name == "" {
		host := global.Hostname
		if host == "" {
			host, _ = os.Hostname()
		}
		cfg.Name = network.ChewHostname(host, nil)
	}

	ns := []string{global.NSServer}
	ctx = logctx.AppendCtxTag(ctx, global.NSServer)

	new = &Server{
		Namespace: ns,
		ctx:       ctx,
		cfg:       cfg,
		octo:      octopus.New(ctx, ns, cfg.Name, cfg.MaxPerEntity),
		Metrics:   &MetricStorage{},
	}
	return
}

// Registry dispatching client requests
func (server *Server) Octopus() (octo *octopus.Octopus) {
	octo = server.octo
	return
}

func (server *Server) Enabled() bool {
	return server.enabled.Load()
}

// Installs the security filters, opens the listener and starts accepting.
// A nil registry admits everyone.
func (server *Server) EnableServers(encrypt bool, registry security.EntityRegistry) (result protocol.Outcome) {
	if server.enabled.Load() {
		result = protocol.OK
		return
	}

	if encrypt {
		encryptArm := encryption.NewServerTentacle(nil)
		server.octo.AddTentacle(encryptArm)
		server.octo.AddTentacle(encryption.NewUnwrappingTentacle())
		server.keys = encryptArm.Keys()
	}
	server.encrypting.Store(encrypt)

	if registry == nil {
		registry = security.BlankRegistry{}
	}
	server.octo.AddTentacle(security.NewLoginTentacle(registry, server.auditLogin))

	listener, err := network.Listen(server.cfg.Address)
	if err != nil {
		logctx.LogEvent(server.ctx, global.VerbosityStandard, global.ErrorLog,
			"failed to open listener: %v\n", err)
		result = protocol.Disallowed
		return
	}
	server.listener = listener
	server.nextSweep = time.Now().Add(SweepInterval)
	server.enabled.Store(true)

	// First accept without waiting
	result = server.acceptOne(false)
	if result != protocol.OK && result != protocol.NotFound {
		logctx.LogEvent(server.ctx, global.VerbosityStandard, global.ErrorLog,
			"failure starting up server: %s\n", result)
		server.enabled.Store(false)
		listener.Disconnect()
		return
	}

	ctx, cancel := context.WithCancel(server.ctx)
	server.cancel = cancel
	group, groupCtx := errgroup.WithContext(ctx)
	server.workers = group

	for i := 0; i < server.cfg.Accepters; i++ {
		accepterCtx := logctx.AppendCtxTag(groupCtx, global.NSAccepter)
		group.Go(func() error {
			return server.lookForClients(accepterCtx)
		})
	}
	dropperCtx := logctx.AppendCtxTag(groupCtx, global.NSDropper)
	group.Go(func() error {
		server.runDropper(dropperCtx)
		return nil
	})

	logctx.LogEvent(server.ctx, global.VerbosityStandard, global.InfoLog,
		"listening on %s with %d accepters (encryption: %t)\n", listener.Address(), server.cfg.Accepters, encrypt)
	result = protocol.OK
	return
}

// Stops accepting, drops every client and closes the listener
func (server *Server) DisableServers() {
	if !server.enabled.CompareAndSwap(true, false) {
		return
	}

	server.cancel()
	if err := server.workers.Wait(); err != nil {
		logctx.LogEvent(server.ctx, global.VerbosityStandard, global.WarnLog,
			"accepter exited with error: %v\n", err)
	}

	server.mu.Lock()
	records := server.clients
	server.clients = nil
	server.mu.Unlock()
	for _, record := range records {
		record.croak()
	}

	server.listener.Disconnect()

	// Security arms are reinstalled on the next enable
	server.octo.ZapTentacle(protocol.EncryptionClass)
	server.octo.ZapTentacle(protocol.WrapperClass)
	server.octo.ZapTentacle(protocol.SecurityClass)
	server.encrypting.Store(false)
	server.keys = nil

	logctx.LogEvent(server.ctx, global.VerbosityStandard, global.InfoLog, "server disabled\n")
}

// Takes at most one pending connection.
// NotFound means nobody was waiting.
func (server *Server) acceptOne(wait bool) (result protocol.Outcome) {
	if !server.enabled.Load() {
		result = protocol.NoServer
		return
	}

	accepted, acceptResult := server.listener.Accept(wait)
	switch acceptResult {
	case protocol.OK:
		record := newClientRecord(server, accepted)
		server.mu.Lock()
		server.clients = append(server.clients, record)
		server.mu.Unlock()
		server.Metrics.Accepted.Add(1)
		logctx.LogEvent(server.ctx, global.VerbosityProgress, global.InfoLog,
			"accepted client from %s\n", accepted.Address())
		result = protocol.OK
	case protocol.NoConnection:
		result = protocol.NotFound
	default:
		result = protocol.Disallowed
	}
	return
}

// Accepter loop
func (server *Server) lookForClients(ctx context.Context) (err error) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic in accepter: %v\n%s", fatalError, debug.Stack())
			err = fmt.Errorf("accepter panic: %v", fatalError)
		}
	}()

	for ctx.Err() == nil {
		result := server.acceptOne(false)
		if result != protocol.OK && result != protocol.NotFound {
			if ctx.Err() != nil {
				return
			}
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"real error on listening socket, accepter leaving: %s\n", result)
			err = fmt.Errorf("accept failed: %w", result)
			return
		}
		if result == protocol.OK {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(AcceptSnooze):
		}
	}
	return
}

func (server *Server) runDropper(ctx context.Context) {
	ticker := time.NewTicker(DroppingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			server.DropDeadClients()
		}
	}
}

// Croaks and removes records whose client went away.
// Sweeps at most once per sweep interval.
func (server *Server) DropDeadClients() {
	if !server.enabled.Load() {
		return
	}

	server.mu.Lock()
	now := time.Now()
	if now.Before(server.nextSweep) {
		server.mu.Unlock()
		return
	}
	var dead []*clientRecord
	kept := make([]*clientRecord, 0, len(server.clients))
	for _, record := range server.clients {
		if record.stillConnected.Load() && record.healthy.Load() {
			kept = append(kept, record)
			continue
		}
		dead = append(dead, record)
	}
	server.clients = kept
	server.nextSweep = now.Add(SweepInterval)
	server.mu.Unlock()

	// Croaking waits on the pump, which may need the list lock
	for _, record := range dead {
		ent := record.entity()
		logctx.LogEvent(server.ctx, global.VerbosityProgress, global.InfoLog,
			"dropping disconnected client %s (%s)\n", record.remote, ent)
		record.croak()
		server.Metrics.Dropped.Add(1)
		server.audit(server.ctx, audit.Event{
			Action: audit.ActionDropped,
			Entity: ent,
			Remote: record.remote,
			Result: protocol.NoConnection,
		})
	}
}

func (server *Server) audit(ctx context.Context, event audit.Event) {
	if server.cfg.Audit == nil {
		return
	}
	server.cfg.Audit(ctx, event.Stamped())
}

func (server *Server) auditLogin(ctx context.Context, mode protocol.LoginMode, ent protocol.Entity, result protocol.Outcome) {
	action := audit.ActionLogin
	switch mode {
	case protocol.LoginModeLogout:
		action = audit.ActionLogout
	case protocol.LoginModeRefresh:
		action = audit.ActionRefresh
	}

	remote, _ := server.FindEntity(ent)
	server.audit(ctx, audit.Event{
		Action: action,
		Entity: ent,
		Remote: remote,
		Result: result,
	})
}
