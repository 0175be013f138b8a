package app

import (
	"context"
	"net"
	"time"
)

// Dialer establishes the TCP connection to a card server. It is the
// connect_with_timeout collaborator from the source protocol; the module
// never dials directly so tests can substitute an in-memory pipe.
type Dialer interface {
	DialTimeout(ctx context.Context, hostname string, port uint16, timeout time.Duration) (net.Conn, error)
}
