package encryption

import (
	"bytes"
	"context"
	"cromp/internal/databin"
	"cromp/internal/global"
	"cromp/pkg/protocol"
	"testing"
)

func TestExchangeAgreement(t *testing.T) {
	pair, err := NewKeyPair()
	if err != nil {
		t.Fatalf("unexpected error creating pair: %v", err)
	}

	serverKey, ephemeral, err := Exchange(pair.Public())
	if err != nil {
		t.Fatalf("unexpected exchange error: %v", err)
	}
	clientKey, err := pair.Complete(ephemeral)
	if err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}

	if !bytes.Equal(serverKey, clientKey) {
		t.Fatalf("session keys differ")
	}
	if len(clientKey) != 32 {
		t.Errorf("expected 32 byte key, got %d", len(clientKey))
	}

	// Pair is reusable
	again, err := pair.Complete(ephemeral)
	if err != nil || !bytes.Equal(again, clientKey) {
		t.Errorf("expected pair to be reusable")
	}
}

func TestExchangeRejects(t *testing.T) {
	tests := []struct {
		name   string
		public []byte
	}{
		{"Nil key", nil},
		{"Short key", []byte{1, 2, 3}},
		{"Long key", make([]byte, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Exchange(tt.public)
			if err == nil {
				t.Errorf("expected error")
			}
		})
	}

	var empty KeyPair
	if _, err := empty.Complete(make([]byte, 32)); err == nil {
		t.Errorf("expected error completing with empty pair")
	}
}

func TestWrapUnwrap(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	original := protocol.NewBlob(protocol.NewClassifier("app", "ping"), []byte("hello there"))

	tests := []struct {
		name      string
		tamper    func(w *protocol.Wrapper)
		unwrapKey []byte
		wantErr   bool
	}{
		{
			name:      "Round trip",
			unwrapKey: key,
		},
		{
			name:      "Wrong key",
			unwrapKey: bytes.Repeat([]byte{0x43}, 32),
			wantErr:   true,
		},
		{
			name:      "Flipped ciphertext",
			tamper:    func(w *protocol.Wrapper) { w.Sealed[0] ^= 0xff },
			unwrapKey: key,
			wantErr:   true,
		},
		{
			name:      "Short nonce",
			tamper:    func(w *protocol.Wrapper) { w.Nonce = w.Nonce[:4] },
			unwrapKey: key,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped, err := Wrap(original, key)
			if err != nil {
				t.Fatalf("unexpected wrap error: %v", err)
			}
			if !bytes.Equal(key, bytes.Repeat([]byte{0x42}, 32)) {
				t.Fatalf("wrap modified caller key")
			}
			if tt.tamper != nil {
				tt.tamper(wrapped)
			}

			packed, err := Unwrap(wrapped, tt.unwrapKey)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected unwrap error: %v", err)
			}

			class, payload, err := protocol.FastUnpack(packed)
			if err != nil {
				t.Fatalf("unexpected unpack error: %v", err)
			}
			if !class.Equal(original.Class) || !bytes.Equal(payload, original.Data) {
				t.Errorf("unwrapped content differs: %s %q", class, payload)
			}
		})
	}
}

func TestKeyRepository(t *testing.T) {
	repo := NewKeyRepository()
	ent := protocol.Entity{Hostname: "a", ProcessID: 1, Sequencer: 2, Salt: 3}

	if _, found := repo.Lock(ent); found {
		t.Fatalf("expected empty repository")
	}

	source := []byte{1, 2, 3}
	repo.Add(ent, source)
	source[0] = 9

	key, found := repo.Lock(ent)
	if !found || key[0] != 1 {
		t.Fatalf("expected stored copy of key")
	}
	key[1] = 9
	again, _ := repo.Lock(ent)
	if again[1] != 2 {
		t.Errorf("expected lock to return a copy")
	}

	if !repo.Whack(ent) || repo.Whack(ent) {
		t.Errorf("expected exactly one successful whack")
	}
	if repo.Count() != 0 {
		t.Errorf("expected empty repository after whack")
	}
}

func TestServerTentacle(t *testing.T) {
	ctx := context.Background()
	responses := databin.New([]string{global.NSTest}, 0)
	tentacle := NewServerTentacle(nil)
	tentacle.Attach(responses)

	pair, err := NewKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id := protocol.RequestID{Entity: protocol.Entity{Hostname: "client", ProcessID: 1, Sequencer: 1, Salt: 1}, Sequence: 1}

	// Wrapped message before any exchange
	early, _ := Wrap(protocol.NewBlob(protocol.NewClassifier("app"), nil), bytes.Repeat([]byte{1}, 32))
	if result, _ := tentacle.Consume(ctx, early, id); result != protocol.Disallowed {
		t.Errorf("expected Disallowed without key, got %s", result)
	}

	result, _ := tentacle.Consume(ctx, &protocol.Encryption{PublicKey: pair.Public()}, id)
	if result != protocol.OK {
		t.Fatalf("expected OK exchange, got %s", result)
	}
	item, found := responses.AcquireForIdentifier(id)
	if !found {
		t.Fatalf("expected exchange reply")
	}
	reply := item.Message.(*protocol.Encryption)
	if reply.Success != protocol.OK {
		t.Fatalf("expected successful reply, got %s", reply.Success)
	}
	sessionKey, err := pair.Complete(reply.KeyMaterial)
	if err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}

	inner := protocol.NewBlob(protocol.NewClassifier("app", "ping"), []byte("payload"))
	wrapped, err := Wrap(inner, sessionKey)
	if err != nil {
		t.Fatalf("unexpected wrap error: %v", err)
	}
	result, transformed := tentacle.Consume(ctx, wrapped, id)
	if result != protocol.Partial {
		t.Fatalf("expected Partial for wrapper, got %s", result)
	}
	class, payload, err := protocol.FastUnpack(transformed)
	if err != nil || !class.Equal(inner.Class) || !bytes.Equal(payload, inner.Data) {
		t.Errorf("expected decrypted inner message, got %s %q (%v)", class, payload, err)
	}

	// Bootstrap kinds pass, everything else must be wrapped
	if result, _ := tentacle.Consume(ctx, &protocol.Identity{}, id); result != protocol.Partial {
		t.Errorf("expected identity to pass, got %s", result)
	}
	if result, _ := tentacle.Consume(ctx, inner, id); result != protocol.EncryptionMismatch {
		t.Errorf("expected EncryptionMismatch for clear message, got %s", result)
	}

	// Bad public key still answers
	badID := id
	badID.Sequence = 2
	tentacle.Consume(ctx, &protocol.Encryption{PublicKey: []byte{1}}, badID)
	item, found = responses.AcquireForIdentifier(badID)
	if !found || item.Message.(*protocol.Encryption).Success != protocol.Failure {
		t.Errorf("expected failure reply for bad public key")
	}

	tentacle.Expunge(id.Entity)
	if tentacle.Keys().Count() != 0 {
		t.Errorf("expected key removed on expunge")
	}
}
