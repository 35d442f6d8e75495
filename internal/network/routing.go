package network

import (
	"fmt"
	"net"
	"strings"
)

// Determines the local address the system would use to reach the destination host
func SourceAddressFor(destination string) (source net.IP, err error) {
	host, _, splitErr := net.SplitHostPort(destination)
	if splitErr != nil {
		host = destination
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")

	destAddr := net.ParseIP(host)
	if destAddr == nil {
		var resolved []net.IP
		resolved, err = net.LookupIP(host)
		if err != nil || len(resolved) == 0 {
			err = fmt.Errorf("invalid destination address: %s", destination)
			return
		}
		destAddr = resolved[0]
	}

	// Quick dial to see what source address the system would use (nothing is sent)
	conn, dialErr := net.Dial("udp", net.JoinHostPort(destAddr.String(), "9"))
	if dialErr != nil {
		err = fmt.Errorf("failed to find route for destination %s: %w", destAddr, dialErr)
		return
	}
	defer conn.Close()

	source = conn.LocalAddr().(*net.UDPAddr).IP
	return
}
