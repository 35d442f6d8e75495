package random

import (
	"bytes"
	"math"
	"testing"
)

func TestBetween(t *testing.T) {
	tests := []struct {
		name      string
		low, high int
		wantErr   bool
	}{
		{"Entity salt range", 0, math.MaxInt32 / 3, false},
		{"Single value", 7, 7, false},
		{"Negative span", -5, 5, false},
		{"Inverted", 10, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				value, err := Between(tt.low, tt.high)
				if (err != nil) != tt.wantErr {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				if tt.wantErr {
					return
				}
				if value < tt.low || value > tt.high {
					t.Fatalf("value %d outside [%d, %d]", value, tt.low, tt.high)
				}
			}
		})
	}
}

func TestBetweenCoversSmallRange(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 500 && len(seen) < 4; i++ {
		value, err := Between(1, 4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[value] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected every value of [1, 4] drawn, saw %v", seen)
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"Ping payload", 56, false},
		{"Empty payload", 0, false},
		{"Negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Bytes(tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && len(data) != tt.size {
				t.Errorf("expected %d bytes, got %d", tt.size, len(data))
			}
		})
	}

	first, _ := Bytes(32)
	second, _ := Bytes(32)
	if bytes.Equal(first, second) {
		t.Errorf("expected two draws to differ")
	}
}

func TestUint32Varies(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 16; i++ {
		value, err := Uint32()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[value] = true
	}
	if len(seen) < 15 {
		t.Errorf("expected distinct values, got %d of 16", len(seen))
	}
}
