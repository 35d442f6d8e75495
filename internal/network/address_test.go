package network

import (
	"net"
	"testing"
)

func TestChewHostname(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		address  net.IP
		expected string
	}{
		{
			name:     "long host",
			host:     "localhost",
			address:  net.IPv4(127, 0, 0, 1),
			expected: "localh7f000001",
		},
		{
			name:     "short host padded",
			host:     "ab",
			address:  net.IPv4(192, 168, 0, 1),
			expected: "ab----c0a80001",
		},
		{
			name:     "control characters replaced",
			host:     "a\tbcdefg",
			address:  net.IPv4(10, 0, 0, 1),
			expected: "a#bcdea000001",
		},
		{
			name:     "ipv6 halves",
			host:     "edge-node",
			address:  net.ParseIP("fd01::436a:353"),
			expected: "edge-nfd01000000000000436a0353",
		},
		{
			name:     "ipv6 without low half",
			host:     "gateway",
			address:  net.ParseIP("2001:db8::"),
			expected: "gatewa20010db800000000",
		},
		{
			name:     "unusable address",
			host:     "broken",
			address:  net.IP{1, 2, 3},
			expected: "broken",
		},
		{
			name:     "literal address resolves itself",
			host:     "127.0.0.1",
			expected: "127.0.7f000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChewHostname(tt.host, tt.address)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSourceAddressFor(t *testing.T) {
	source, err := SourceAddressFor("127.0.0.1:5000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !source.IsLoopback() {
		t.Errorf("expected loopback source, got %s", source)
	}

	_, err = SourceAddressFor("")
	if err == nil {
		t.Errorf("expected error for empty destination")
	}
}
