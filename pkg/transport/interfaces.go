package transport

import (
	"context"
	"io"
	"net"
)

// Sender delivers payloads to endpoints.
// Implemented by Client.
type Sender interface {
	// Send writes payload to endpoint.
	Send(ctx context.Context, endpoint Endpoint, payload []byte) error

	// Endpoints returns the routed endpoints.
	Endpoints() []Endpoint

	// Close releases every connection.
	Close() error
}

// Sink accepts connections and consumes what peers send.
// Implemented by Server.
type Sink interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop closes the listener and all connections.
	Stop() error

	// Addr returns the listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// Compile-time interface satisfaction checks.
var (
	_ Sender    = (*Client)(nil)
	_ Sink      = (*Server)(nil)
	_ Dialer    = (*net.Dialer)(nil)
	_ io.Closer = (*Writer)(nil)
)
