package transport

import (
	"context"
	"net"
)

// Dialer opens connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer returns the dialer used when ClientConfig.Dialer is nil.
func DefaultDialer() Dialer {
	return &net.Dialer{}
}
