package network

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Opens a TCP listener that can rebind a port still in TIME_WAIT.
// A port held by another live listener is refused.
func ListenTCP(addr string) (conn net.Listener, err error) {
	// Using x/sys/unix package for more up-to-date syscall numbers
	cfg := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var err error
			controlErr := c.Control(func(fd uintptr) {
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if controlErr != nil {
				return controlErr
			}
			return err
		},
	}

	conn, err = cfg.Listen(context.Background(), "tcp", addr)
	if err != nil {
		err = fmt.Errorf("failed to listen on %s: %w", addr, err)
		return
	}
	return
}
