package client

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/network"
	"cromp/internal/transport"
	"cromp/pkg/protocol"
	"time"
)

// Opens the connection and logs in. Stops any background connector first.
func (client *Client) Connect(ctx context.Context) (result protocol.Outcome) {
	client.CloseAsynchConnect()

	client.mu.Lock()
	defer client.mu.Unlock()
	result = client.lockedConnect(ctx)
	return
}

// Caller holds mu
func (client *Client) lockedConnect(ctx context.Context) (result protocol.Outcome) {
	if client.Connected() {
		result = protocol.OK
		return
	}

	client.lockedDisconnect()
	client.setEntity(randomizeEntity(client.cfg.Address))

	for attempt := 1; attempt <= ConnectAttempts; attempt++ {
		stream := network.NewStream(client.cfg.Address)
		connectResult := stream.Connect(client.cfg.ConnectTimeout)

		switch connectResult {
		case protocol.OK:
			client.session.Store(transport.New(client.Namespace, stream, client.octo, client.cfg.MaxPerEntity))
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
				"connected to %s, logging in\n", client.cfg.Address)
			result = client.login(ctx)
			return
		case protocol.TimedOut:
			result = protocol.TimedOut
			return
		case protocol.NoAnswer, protocol.AccessDenied:
			client.lockedDisconnect()
			result = protocol.NoServer
			return
		}

		logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
			"connect attempt %d to %s failed: %s\n", attempt, client.cfg.Address, connectResult)
		if attempt < ConnectAttempts {
			select {
			case <-ctx.Done():
				attempt = ConnectAttempts
			case <-time.After(ConnectSnooze):
			}
		}
	}

	logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
		"failed to connect to %s\n", client.cfg.Address)
	client.lockedDisconnect()
	result = protocol.NoConnection
	return
}

// Starts connecting in the background. Returns NoConnection until connected;
// every other call is locked out while the connector runs.
func (client *Client) AsynchConnect() (result protocol.Outcome) {
	if client.Connected() {
		result = protocol.OK
		return
	}

	client.connLock.Lock()
	defer client.connLock.Unlock()

	if client.connector != nil {
		select {
		case <-client.connector.done:
			// Finished on its own, free to start another
			client.connector = nil
		default:
			result = protocol.NoConnection
			return
		}
	}

	ctx, cancel := context.WithCancel(client.ctx)
	ctx = logctx.AppendCtxTag(ctx, global.NSConnector)
	runner := &connector{cancel: cancel, done: make(chan struct{})}
	client.connector = runner
	client.disallowed.Store(true)

	go func() {
		defer close(runner.done)
		defer client.disallowed.Store(false)

		for ctx.Err() == nil {
			if client.Connected() {
				logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
					"connected to %s\n", client.cfg.Address)
				return
			}

			client.mu.Lock()
			connectResult := client.lockedConnect(ctx)
			client.mu.Unlock()
			if connectResult == protocol.OK {
				continue
			}

			logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
				"still unconnected to %s: %s\n", client.cfg.Address, connectResult)
			select {
			case <-ctx.Done():
			case <-time.After(ConnectSnooze):
			}
		}
	}()

	result = protocol.NoConnection
	return
}

// Stops the background connector (if any) and lifts the lockout
func (client *Client) CloseAsynchConnect() {
	client.connLock.Lock()
	runner := client.connector
	client.connector = nil
	client.connLock.Unlock()

	if runner != nil {
		runner.cancel()
		<-runner.done
	}
	client.disallowed.Store(false)
}

// Drops the connection and forgets identity, encryption and login state
func (client *Client) Disconnect() (result protocol.Outcome) {
	client.CloseAsynchConnect()

	client.mu.Lock()
	defer client.mu.Unlock()
	client.lockedDisconnect()
	result = protocol.OK
	return
}

// Caller holds mu
func (client *Client) lockedDisconnect() {
	if session := client.session.Swap(nil); session != nil {
		session.Disconnect()
	}
	client.identified.Store(false)
	client.authorized.Store(false)
	client.secured.Store(false)
	client.setKey(nil)
	client.setEntity(protocol.Entity{})
}

// Keeps traffic moving for duration while the caller has nothing to send
func (client *Client) KeepAlivePause(ctx context.Context, duration, interval time.Duration) {
	if duration < 0 {
		duration = 0
	}
	if interval <= 0 {
		interval = KeepAliveInterval
	}
	if interval > duration {
		interval = duration
	}

	leaveAt := time.Now().Add(duration)
	for {
		if session := client.session.Load(); session != nil {
			session.PushOutgoing(ctx, 1)
			session.GrabAnything(ctx, false)
		}
		if duration == 0 || !time.Now().Before(leaveAt) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Releases the connection and the reply registry
func (client *Client) Close() {
	client.Disconnect()
	client.octo.Shutdown()
}
