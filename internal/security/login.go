package security

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/octopus"
	"cromp/pkg/protocol"
)

// Receives login outcomes (for auditing)
type Auditor func(ctx context.Context, mode protocol.LoginMode, ent protocol.Entity, result protocol.Outcome)

// Filter handling login requests and refusing every other message from unauthorized entities
type LoginTentacle struct {
	*octopus.Base
	registry EntityRegistry
	audit    Auditor
}

func NewLoginTentacle(registry EntityRegistry, audit Auditor) (new *LoginTentacle) {
	if registry == nil {
		registry = BlankRegistry{}
	}
	new = &LoginTentacle{
		Base:     octopus.NewBase(protocol.SecurityClass, true, false, octopus.ExactRestore(protocol.SecurityClass, protocol.UnmarshalSecurity)),
		registry: registry,
		audit:    audit,
	}
	return
}

func (tentacle *LoginTentacle) Registry() (registry EntityRegistry) {
	registry = tentacle.registry
	return
}

func (tentacle *LoginTentacle) Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	request, ok := item.(*protocol.Security)
	if !ok {
		if tentacle.registry.Authorized(id.Entity) {
			result = protocol.Partial
			return
		}
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
			"refusing %s from unauthorized %s\n", item.Classifier(), id.Entity)
		result = protocol.Disallowed
		return
	}

	reply := &protocol.Security{Mode: request.Mode}
	switch request.Mode {
	case protocol.LoginModeLogin, protocol.LoginModeRefresh:
		reply.Success = successFrom(tentacle.registry.Add(id.Entity, request.Verification))
	case protocol.LoginModeLogout:
		reply.Success = successFrom(tentacle.registry.Zap(id.Entity))
	default:
		reply.Success = protocol.BadInput
	}
	// Verification never goes back over the wire

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"%s for %s: %s\n", request.Mode, id.Entity, reply.Success)
	if tentacle.audit != nil {
		tentacle.audit(ctx, request.Mode, id.Entity, reply.Success)
	}

	result = tentacle.StoreProduct(reply, id)
	return
}

func (tentacle *LoginTentacle) Expunge(ent protocol.Entity) {
	tentacle.registry.Zap(ent)
}

func successFrom(succeeded bool) (result protocol.Outcome) {
	if succeeded {
		result = protocol.OK
		return
	}
	result = protocol.Disallowed
	return
}
