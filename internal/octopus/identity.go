package octopus

import (
	"context"
	"cromp/internal/crypto/random"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/pkg/protocol"
	"math"
)

const (
	sequencerCeiling uint32 = math.MaxInt32 / 2
	saltCeiling      int    = math.MaxInt32 / 4
)

// Creates a new unique entity name for a client of this registry
func (octo *Octopus) IssueIdentity() (ent protocol.Entity) {
	var sequencer uint32
	for {
		current := octo.sequencer.Load()
		sequencer = current + 1
		if sequencer >= sequencerCeiling {
			sequencer = 1
		}
		if octo.sequencer.CompareAndSwap(current, sequencer) {
			break
		}
	}

	salt, err := random.Between(0, saltCeiling)
	if err != nil {
		logctx.LogEvent(octo.ctx, global.VerbosityStandard, global.WarnLog,
			"failed to generate entity salt, using sequencer: %v\n", err)
		salt = int(sequencer)
	}

	ent = protocol.Entity{
		Hostname:  octo.name,
		ProcessID: octo.pid,
		Sequencer: sequencer,
		Salt:      uint32(salt),
	}
	octo.Metrics.Identities.Add(1)
	return
}

// Filter answering identity requests with a freshly issued entity
type identityTentacle struct {
	*Base
	octo *Octopus
}

func newIdentityTentacle(octo *Octopus) (new *identityTentacle) {
	new = &identityTentacle{
		Base: NewBase(protocol.IdentityClass, true, false, ExactRestore(protocol.IdentityClass, protocol.UnmarshalIdentity)),
		octo: octo,
	}
	return
}

func (tentacle *identityTentacle) Consume(ctx context.Context, item protocol.Infoton, id protocol.RequestID) (result protocol.Outcome, transformed []byte) {
	if _, ok := item.(*protocol.Identity); !ok {
		// Not ours, no opinion
		result = protocol.Partial
		return
	}

	reply := &protocol.Identity{NewName: tentacle.octo.IssueIdentity()}
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"issued identity %s for request %s\n", reply.NewName, id)

	result = tentacle.StoreProduct(reply, id)
	return
}
