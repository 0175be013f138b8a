// Package network provides the default TCP implementations of the
// app.Dialer and app.TimeoutReader collaborators, grounded on TunGo's
// infrastructure/routing/client_routing/client_factory.dialTCP: a plain
// net.Dialer run under a context deadline, with TCP keep-alive enabled on
// the resulting connection.
package network

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"cwc/internal/app"
)

// TCPDialer is the default app.Dialer, dialing a plain TCP connection with
// keep-alives enabled.
type TCPDialer struct{}

// NewTCPDialer returns the default TCP-backed Dialer.
func NewTCPDialer() app.Dialer {
	return TCPDialer{}
}

func (TCPDialer) DialTimeout(ctx context.Context, hostname string, port uint16, timeout time.Duration) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &net.Dialer{}
	addr := net.JoinHostPort(hostname, strconv.Itoa(int(port)))
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: dial %s: %w", addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	return conn, nil
}
