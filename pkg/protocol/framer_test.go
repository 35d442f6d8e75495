package protocol

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func testID() RequestID {
	return RequestID{
		Entity: Entity{
			Hostname:  "host-a",
			ProcessID: 4412,
			Sequencer: 9,
			Salt:      77,
		},
		Sequence: 31,
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Infoton
	}{
		{
			name: "application blob",
			msg:  NewBlob(NewClassifier("app", "ping"), []byte("hello")),
		},
		{
			name: "empty payload",
			msg:  NewBlob(NewClassifier("app"), nil),
		},
		{
			name: "identity",
			msg:  &Identity{NewName: Entity{Hostname: "srv", ProcessID: 1, Sequencer: 2, Salt: 3}},
		},
		{
			name: "security with verification",
			msg:  &Security{Mode: LoginModeRefresh, Success: Disallowed, Verification: []byte("token")},
		},
		{
			name: "large payload",
			msg:  NewBlob(NewClassifier("app", "bulk", "data"), bytes.Repeat([]byte{0xAB}, 300*1024)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := testID()

			frame, err := Flatten(nil, tt.msg, id)
			if err != nil {
				t.Fatalf("Flatten() error = %v", err)
			}

			gotID, packed, consumed, result := Unflatten(frame)
			if result != OK {
				t.Fatalf("Unflatten() outcome = %v, want OK", result)
			}
			if consumed != len(frame) {
				t.Errorf("consumed %d bytes, frame is %d", consumed, len(frame))
			}
			if gotID != id {
				t.Errorf("request id mismatch: got %s want %s", gotID, id)
			}

			want, err := FastPack(tt.msg)
			if err != nil {
				t.Fatalf("FastPack() error = %v", err)
			}
			if !bytes.Equal(packed, want) {
				t.Errorf("packed message differs from re-serialized original")
			}
			if len(want) != tt.msg.PackedSize() {
				t.Errorf("PackedSize() = %d, actual packed length %d", tt.msg.PackedSize(), len(want))
			}
		})
	}
}

func TestFlattenAppends(t *testing.T) {
	prefix := []byte("leftover")
	frame, err := Flatten(append([]byte(nil), prefix...), NewBlob(NewClassifier("app"), []byte("x")), testID())
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if !bytes.HasPrefix(frame, prefix) {
		t.Fatalf("existing buffer content was not preserved")
	}
	result, total := PeekHeader(frame[len(prefix):])
	if result != OK || total != len(frame)-len(prefix) {
		t.Errorf("PeekHeader() = %v, %d", result, total)
	}
}

func TestPeekHeader(t *testing.T) {
	valid, err := Flatten(nil, NewBlob(NewClassifier("app", "ping"), []byte("abc")), testID())
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	tests := []struct {
		name   string
		input  []byte
		expect Outcome
	}{
		{"empty", nil, WayTooSmall},
		{"short of header", valid[:HeaderSize-1], WayTooSmall},
		{"header only", valid[:HeaderSize], Partial},
		{"missing last byte", valid[:len(valid)-1], Partial},
		{"complete", valid, OK},
		{"bad magic", append([]byte("crump!"), valid[lenMagic:]...), Garbage},
		{"non hex length", []byte("cromp!0000zz00" + strings.Repeat("x", 40)), Garbage},
		{"length over ceiling", []byte("cromp!7fffffff"), IllegalLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := PeekHeader(tt.input)
			if got != tt.expect {
				t.Errorf("PeekHeader() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestUnflattenGarbageRequestID(t *testing.T) {
	// Header claims 4 bytes, too short for any request id
	frame := []byte("cromp!00000004abcd")
	_, _, consumed, result := Unflatten(frame)
	if result != Garbage {
		t.Errorf("Unflatten() outcome = %v, want GARBAGE", result)
	}
	if consumed != 0 {
		t.Errorf("Unflatten() consumed %d bytes on failure", consumed)
	}
}

func TestResynchronize(t *testing.T) {
	valid, err := Flatten(nil, NewBlob(NewClassifier("app", "ping"), []byte("payload")), testID())
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	noise := make([]byte, 257)
	rand.Read(noise)
	// Keep the noise from accidentally containing a header start
	for i := range noise {
		if noise[i] == 'c' {
			noise[i] = 'x'
		}
	}

	tests := []struct {
		name        string
		input       []byte
		expectFound bool
		expectFrame bool
	}{
		{"random prefix then frame", append(append([]byte(nil), noise...), valid...), true, true},
		{"frame with one byte dropped then frame", append(append([]byte(nil), valid[1:]...), valid...), true, true},
		{"no magic anywhere", noise, false, false},
		{"empty buffer", nil, false, false},
		{"partial magic at tail", append(append([]byte(nil), noise...), "cro"...), true, false},
		{"magic followed by non hex", append([]byte("cromp!zz"), noise...), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synced, found := Resynchronize(tt.input)
			if found != tt.expectFound {
				t.Fatalf("Resynchronize() found = %v, want %v", found, tt.expectFound)
			}
			if !found && len(synced) != 0 {
				t.Errorf("exhausted buffer should be empty, has %d bytes", len(synced))
			}
			if tt.expectFrame {
				result, _ := PeekHeader(synced)
				if result != OK {
					t.Fatalf("PeekHeader() after resync = %v, want OK", result)
				}
				id, _, _, result := Unflatten(synced)
				if result != OK || id != testID() {
					t.Errorf("Unflatten() after resync = %v, id %s", result, id)
				}
			}
		})
	}
}

func TestFastUnpackRejects(t *testing.T) {
	good, err := FastPack(NewBlob(NewClassifier("app", "ping"), []byte("abc")))
	if err != nil {
		t.Fatalf("FastPack() error = %v", err)
	}

	wrongVersion := append([]byte(nil), good...)
	wrongVersion[0] = 0x13

	tests := []struct {
		name      string
		input     []byte
		expectErr bool
	}{
		{"valid", good, false},
		{"empty", nil, true},
		{"wrong version", wrongVersion, true},
		{"truncated payload", good[:len(good)-1], true},
		{"truncated classifier", good[:6], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, payload, err := FastUnpack(tt.input)
			if (err != nil) != tt.expectErr {
				t.Fatalf("FastUnpack() error = %v, expectErr %v", err, tt.expectErr)
			}
			if err == nil {
				if !class.Equal(NewClassifier("app", "ping")) || string(payload) != "abc" {
					t.Errorf("FastUnpack() = %s %q", class, payload)
				}
			}
		})
	}
}

func TestFastPackRejectsInvalidClassifier(t *testing.T) {
	tests := []struct {
		name string
		msg  Infoton
	}{
		{"nil message", nil},
		{"empty classifier", NewBlob(nil, []byte("x"))},
		{"empty name", NewBlob(NewClassifier("app", ""), []byte("x"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FastPack(tt.msg); err == nil {
				t.Errorf("FastPack() expected error")
			}
			if _, err := Flatten(nil, tt.msg, testID()); err == nil {
				t.Errorf("Flatten() expected error")
			}
		})
	}
}
