package client

import (
	"context"
	"cromp/internal/crypto"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/pkg/protocol"
)

// Completes whichever of identity, encryption and authorization is still outstanding
func (client *Client) Login(ctx context.Context) (result protocol.Outcome) {
	if client.disallowed.Load() {
		result = protocol.NoConnection
		return
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	result = client.login(ctx)
	return
}

// Caller holds mu
func (client *Client) login(ctx context.Context) (result protocol.Outcome) {
	if !client.identified.Load() {
		client.secured.Store(false)

		id, err := protocol.RandomizedID()
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"failed to create identity request: %v\n", err)
			result = protocol.Failure
			return
		}

		var reply protocol.Infoton
		reply, result = client.exchange(ctx, &protocol.Identity{}, id, LoginTimeout)
		if result != protocol.OK {
			return
		}
		identity, ok := reply.(*protocol.Identity)
		if !ok || identity.NewName.Blank() {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"server at %s did not issue an identity\n", client.cfg.Address)
			result = protocol.NoServer
			return
		}

		client.setEntity(identity.NewName)
		client.identified.Store(true)
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
			"identified as %s\n", identity.NewName)
	}

	if client.cfg.Encrypt && !client.secured.Load() {
		result = client.secure(ctx)
		if result != protocol.OK {
			return
		}
	}

	if !client.authorized.Load() {
		request := &protocol.Security{
			Mode:         protocol.LoginModeLogin,
			Success:      protocol.OK,
			Verification: client.cfg.Verification,
		}

		var reply protocol.Infoton
		reply, result = client.request(ctx, request, LoginTimeout)
		if result != protocol.OK {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"login to %s refused: %s\n", client.cfg.Address, result)
			return
		}
		security, ok := reply.(*protocol.Security)
		if !ok {
			result = protocol.NoServer
			return
		}
		if security.Success != protocol.OK {
			result = security.Success
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"login to %s refused: %s\n", client.cfg.Address, result)
			return
		}
		client.authorized.Store(true)
	}

	result = protocol.OK
	return
}

// Key exchange with the server. Caller holds mu.
func (client *Client) secure(ctx context.Context) (result protocol.Outcome) {
	pair, err := client.exchangePair()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
			"failed to prepare key exchange: %v\n", err)
		result = protocol.Failure
		return
	}

	reply, result := client.request(ctx, &protocol.Encryption{PublicKey: pair.Public()}, LoginTimeout)
	if result != protocol.OK {
		return
	}
	answer, ok := reply.(*protocol.Encryption)
	if !ok {
		result = protocol.EncryptionMismatch
		return
	}
	if answer.Success != protocol.OK {
		result = answer.Success
		return
	}

	sessionKey, err := pair.Complete(answer.KeyMaterial)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"failed to derive session key with %s: %v\n", client.cfg.Address, err)
		crypto.Memzero(sessionKey)
		result = protocol.EncryptionMismatch
		return
	}

	client.setKey(sessionKey)
	client.secured.Store(true)
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"channel to %s secured\n", client.cfg.Address)
	result = protocol.OK
	return
}

// Ends the authorized session while keeping the connection
func (client *Client) Logout(ctx context.Context) (result protocol.Outcome) {
	if client.disallowed.Load() {
		result = protocol.NoConnection
		return
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	reply, result := client.request(ctx, &protocol.Security{Mode: protocol.LoginModeLogout, Success: protocol.OK}, LoginTimeout)
	if result != protocol.OK {
		return
	}
	security, ok := reply.(*protocol.Security)
	if !ok {
		result = protocol.NoServer
		return
	}
	result = security.Success
	if result == protocol.OK {
		client.authorized.Store(false)
	}
	return
}
