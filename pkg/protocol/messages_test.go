package protocol

import (
	"bytes"
	"testing"
)

func TestKindRequiresWrap(t *testing.T) {
	tests := []struct {
		msg    Infoton
		expect bool
	}{
		{NewBlob(NewClassifier("app"), nil), true},
		{&Identity{}, false},
		{&Encryption{}, false},
		{&Wrapper{}, false},
		{&Security{}, true},
		{NewUnhandled(NewClassifier("app"), NotFound), true},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Kind().String(), func(t *testing.T) {
			if got := tt.msg.Kind().RequiresWrap(); got != tt.expect {
				t.Errorf("RequiresWrap() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestReservedMessagesRestore(t *testing.T) {
	tests := []struct {
		name    string
		msg     Infoton
		restore func([]byte) (Infoton, error)
	}{
		{
			name: "identity",
			msg:  &Identity{NewName: Entity{Hostname: "srv", ProcessID: 4, Sequencer: 5, Salt: 6}},
			restore: func(p []byte) (Infoton, error) {
				return UnmarshalIdentity(p)
			},
		},
		{
			name: "encryption",
			msg:  &Encryption{Success: EncryptionMismatch, PublicKey: []byte{1, 2}, KeyMaterial: []byte{3}},
			restore: func(p []byte) (Infoton, error) {
				return UnmarshalEncryption(p)
			},
		},
		{
			name: "security",
			msg:  &Security{Mode: LoginModeLogout, Success: OK},
			restore: func(p []byte) (Infoton, error) {
				return UnmarshalSecurity(p)
			},
		},
		{
			name: "wrapper",
			msg:  &Wrapper{Nonce: []byte("nonce"), Sealed: []byte("sealed")},
			restore: func(p []byte) (Infoton, error) {
				return UnmarshalWrapper(p)
			},
		},
		{
			name: "unhandled",
			msg:  NewUnhandled(NewClassifier("app", "unknown"), NotFound),
			restore: func(p []byte) (Infoton, error) {
				return UnmarshalUnhandled(p)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := tt.msg.MarshalPayload()
			if err != nil {
				t.Fatalf("MarshalPayload() error = %v", err)
			}
			restored, err := tt.restore(payload)
			if err != nil {
				t.Fatalf("restore error = %v", err)
			}
			again, err := restored.MarshalPayload()
			if err != nil {
				t.Fatalf("MarshalPayload() on restored error = %v", err)
			}
			if !bytes.Equal(payload, again) {
				t.Errorf("restored message re-serializes differently")
			}
			if !restored.Classifier().Equal(tt.msg.Classifier()) {
				t.Errorf("classifier mismatch %s vs %s", restored.Classifier(), tt.msg.Classifier())
			}

			// Every strict prefix of the payload must be rejected
			if len(payload) > 0 {
				if _, err := tt.restore(payload[:len(payload)-1]); err == nil {
					t.Errorf("truncated payload accepted")
				}
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		result Outcome
		expect string
	}{
		{OK, "OK"},
		{NotFound, "NOT_FOUND"},
		{EncryptionMismatch, "ENCRYPTION_MISMATCH"},
		{Outcome(9999), "OUTCOME(9999)"},
	}
	for _, tt := range tests {
		t.Run(tt.expect, func(t *testing.T) {
			if got := tt.result.String(); got != tt.expect {
				t.Errorf("String() = %q", got)
			}
			if tt.result.Error() != tt.expect {
				t.Errorf("Error() = %q", tt.result.Error())
			}
		})
	}
}
