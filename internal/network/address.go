package network

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// Characters of the host name kept in entity names
const hostChop int = 6

// Compact machine name: the first few characters of the host (padded) followed by
// the hex form of its address. Unresolvable hosts use the loopback address.
func ChewHostname(host string, address net.IP) (chewed string) {
	if address == nil {
		address = resolveHost(host)
	}

	short := strings.Map(func(r rune) rune {
		if r < ' ' || r > '~' {
			return '#'
		}
		return r
	}, host)
	for len(short) < hostChop {
		short += "-"
	}
	short = short[:hostChop]

	chewed = short + addressDigits(address)
	return
}

// Hex of an IPv4 address as one number, or of an IPv6 address as two halves.
// The low half is left out when zero. Unusable addresses give nothing.
func addressDigits(address net.IP) (digits string) {
	if v4 := address.To4(); v4 != nil {
		digits = fmt.Sprintf("%x", binary.BigEndian.Uint32(v4))
		return
	}
	v6 := address.To16()
	if v6 == nil {
		return
	}
	digits = fmt.Sprintf("%x", binary.BigEndian.Uint64(v6[:8]))
	if lo := binary.BigEndian.Uint64(v6[8:]); lo != 0 {
		digits += fmt.Sprintf("%x", lo)
	}
	return
}

func resolveHost(host string) (address net.IP) {
	address = net.ParseIP(strings.Trim(host, "[]"))
	if address != nil {
		return
	}
	resolved, err := net.LookupIP(host)
	if err == nil && len(resolved) > 0 {
		address = resolved[0]
		return
	}
	address = net.IPv4(127, 0, 0, 1)
	return
}
