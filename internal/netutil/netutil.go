package netutil

import (
	"fmt"
	"net"
	"time"
)

// DefaultPort is used when a probe address has no port.
const DefaultPort = "443"

// Reachable dials address over TCP and closes the connection straight
// away. A bare host is dialled on DefaultPort.
func Reachable(address string, timeout time.Duration) error {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, DefaultPort)
	}
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return fmt.Errorf("cannot reach %s: %w", address, err)
	}
	_ = conn.Close()
	return nil
}
