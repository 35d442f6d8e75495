package client

import (
	"context"
	"cromp/internal/crypto"
	"cromp/internal/crypto/random"
	"cromp/internal/encryption"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/network"
	"cromp/internal/octopus"
	"cromp/pkg/protocol"
	"fmt"
	"math"
	"net"
	"os"
	"time"
)

// Entity values are swapped whole so readers never see a partial update
type entityBox struct {
	ent protocol.Entity
}

// Creates an unconnected client for the configured server
func New(ctx context.Context, cfg Config) (new *Client, err error) {
	if cfg.Address == "" {
		err = fmt.Errorf("no server address given")
		return
	}
	if _, _, err = net.SplitHostPort(cfg.Address); err != nil {
		err = fmt.Errorf("invalid server address %q: %w", cfg.Address, err)
		return
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	cfg.Verification = append([]byte(nil), cfg.Verification...)

	ns := []string{global.NSClient}
	ctx = logctx.AppendCtxTag(ctx, global.NSClient)

	new = &Client{
		Namespace: ns,
		ctx:       ctx,
		cfg:       cfg,
		octo:      octopus.New(ctx, ns, "", cfg.MaxPerEntity),
	}
	new.entity.Store(&entityBox{})

	// Replies only need reconstituting here, nothing is dispatched locally
	new.octo.AddTentacle(octopus.NewBase(protocol.EncryptionClass, false, false,
		octopus.ExactRestore(protocol.EncryptionClass, protocol.UnmarshalEncryption)))
	new.octo.AddTentacle(octopus.NewBase(protocol.SecurityClass, false, false,
		octopus.ExactRestore(protocol.SecurityClass, protocol.UnmarshalSecurity)))
	new.octo.AddTentacle(encryption.NewUnwrappingTentacle())
	new.octo.SetFallback(octopus.RestoreBlob)
	return
}

// Registry used to rebuild replies. Applications may add their own restorers.
func (client *Client) Octopus() (octo *octopus.Octopus) {
	octo = client.octo
	return
}

func (client *Client) Address() string {
	return client.cfg.Address
}

func (client *Client) Entity() (ent protocol.Entity) {
	ent = client.entity.Load().ent
	return
}

func (client *Client) setEntity(ent protocol.Entity) {
	client.entity.Store(&entityBox{ent: ent})
}

func (client *Client) Connected() (connected bool) {
	session := client.session.Load()
	connected = session != nil && session.Connected()
	return
}

func (client *Client) Identified() bool { return client.identified.Load() }
func (client *Client) Secured() bool    { return client.secured.Load() }
func (client *Client) Authorized() bool { return client.authorized.Load() }

// Placeholder identity used until the server issues one
func randomizeEntity(address string) (ent protocol.Entity) {
	host := global.Hostname
	if host == "" {
		host, _ = os.Hostname()
	}

	source, err := network.SourceAddressFor(address)
	if err != nil {
		source = nil
	}

	values := make([]uint32, 2)
	for i := range values {
		number, err := random.Between(0, math.MaxInt32/3)
		if err != nil {
			number = int(time.Now().UnixNano() % (math.MaxInt32 / 3))
		}
		values[i] = uint32(number)
	}

	ent = protocol.Entity{
		Hostname:  network.ChewHostname(host, source),
		ProcessID: uint32(os.Getpid()),
		Sequencer: values[0],
		Salt:      values[1],
	}
	return
}

// Next request sequence, rolling over before the reserved top of the range
func (client *Client) nextSequence() (seq uint32) {
	for {
		current := client.sequence.Load()
		seq = current + 1
		if seq >= protocol.MaximumSequence {
			seq = 1
		}
		if client.sequence.CompareAndSwap(current, seq) {
			return
		}
	}
}

func (client *Client) nextID() (id protocol.RequestID) {
	id = protocol.RequestID{Entity: client.Entity(), Sequence: client.nextSequence()}
	return
}

// Copy of the session key, nil when the channel is not secured
func (client *Client) key() (key []byte) {
	client.keyMu.RLock()
	key = append([]byte(nil), client.sessionKey...)
	client.keyMu.RUnlock()
	return
}

func (client *Client) setKey(key []byte) {
	client.keyMu.Lock()
	crypto.Memzero(client.sessionKey)
	client.sessionKey = key
	client.keyMu.Unlock()
}

// Selects the key pair for an exchange with this server
func (client *Client) exchangePair() (pair encryption.KeyPair, err error) {
	if !client.cfg.LocalhostKey.Empty() && isLoopback(client.cfg.Address) {
		pair = client.cfg.LocalhostKey
		return
	}
	pair, err = encryption.NewKeyPair()
	return
}

func isLoopback(address string) (loopback bool) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return
	}
	if host == "localhost" {
		loopback = true
		return
	}
	ip := net.ParseIP(host)
	loopback = ip != nil && ip.IsLoopback()
	return
}
