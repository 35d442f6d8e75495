package encryption

import (
	"context"
	"cromp/internal/crypto"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/octopus"
	"cromp/pkg/protocol"
)

// Server filter performing key exchanges and decrypting wrapped messages before dispatch
type ServerTentacle struct {
	*octopus.Base
	keys *KeyRepository
}

func NewServerTentacle(keys *KeyRepository) (new *ServerTentacle) {
	if keys == nil {
		keys = NewKeyRepository()
	}
	new = &ServerTentacle{
		Base: octopus.NewBase(protocol.EncryptionClass, true, false, octopus.ExactRestore(protocol.EncryptionClass, protocol.UnmarshalEncryption)),
		keys: keys,
	}
	return
}

func (tentacle *ServerTentacle) Keys() (keys *KeyRepository) {
	keys = tentacle.keys
	return
}

func (tentacle *ServerTentacle) Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	switch msg := item.(type) {
	case *protocol.Encryption:
		result = tentacle.exchange(ctx, msg, id)
	case *protocol.Wrapper:
		result, transformed = tentacle.unwrap(ctx, msg, id)
	default:
		// Everything that must be wrapped is refused in the clear
		if item.Kind().RequiresWrap() {
			logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
				"refusing unwrapped %s from %s\n", item.Classifier(), id.Entity)
			result = protocol.EncryptionMismatch
			return
		}
		result = protocol.Partial
	}
	return
}

func (tentacle *ServerTentacle) exchange(ctx context.Context, request *protocol.Encryption, id protocol.RequestID) (result protocol.Outcome) {
	reply := &protocol.Encryption{Success: protocol.OK}

	sessionKey, ephemeralPublic, err := Exchange(request.PublicKey)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"key exchange with %s failed: %v\n", id.Entity, err)
		reply.Success = protocol.Failure
	} else {
		tentacle.keys.Add(id.Entity, sessionKey)
		crypto.Memzero(sessionKey)
		reply.KeyMaterial = ephemeralPublic
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
			"agreed session key with %s\n", id.Entity)
	}

	result = tentacle.StoreProduct(reply, id)
	return
}

func (tentacle *ServerTentacle) unwrap(ctx context.Context, wrapped *protocol.Wrapper, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	key, found := tentacle.keys.Lock(id.Entity)
	if !found {
		logctx.LogEvent(ctx, global.VerbosityData, global.WarnLog,
			"no session key for %s, rejecting wrapped message\n", id.Entity)
		result = protocol.Disallowed
		return
	}
	defer crypto.Memzero(key)

	packed, err := Unwrap(wrapped, key)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"denying %s due to failed decryption: %v\n", id.Entity, err)
		result = protocol.Disallowed
		return
	}

	result = protocol.Partial
	transformed = packed
	return
}

func (tentacle *ServerTentacle) Expunge(ent protocol.Entity) {
	tentacle.keys.Whack(ent)
}

// Owns the wrapper classifier so wrapped messages can be reconstituted
type UnwrappingTentacle struct {
	*octopus.Base
}

func NewUnwrappingTentacle() (new *UnwrappingTentacle) {
	new = &UnwrappingTentacle{
		Base: octopus.NewBase(protocol.WrapperClass, false, false, octopus.ExactRestore(protocol.WrapperClass, protocol.UnmarshalWrapper)),
	}
	return
}
