package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gyrusdentatus/nym/pkg/connection"
)

// Transport errors.
var (
	// ErrUnknownDestination is returned for endpoints the client does not
	// route to, either never configured or evicted.
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrConnectionClosed is returned when the probe before a write finds
	// that the peer closed the connection.
	ErrConnectionClosed = errors.New("connection closed by peer")

	// ErrWriteFailed matches every *WriteError.
	ErrWriteFailed = errors.New("write failed")

	// ErrDestinationUnreachable matches every *UnreachableError.
	ErrDestinationUnreachable = errors.New("destination unreachable")

	// ErrBootstrapFailed matches every *BootstrapError.
	ErrBootstrapFailed = errors.New("bootstrap failed")

	// ErrClientClosed is returned by Send after Close.
	ErrClientClosed = errors.New("client closed")
)

// ErrMaxRetriesExceeded is re-exported for callers that only import transport.
var ErrMaxRetriesExceeded = connection.ErrMaxRetriesExceeded

// WriteError reports a failed write on an established connection.
type WriteError struct {
	Endpoint Endpoint
	Cause    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s failed: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying I/O error.
func (e *WriteError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrWriteFailed.
func (e *WriteError) Is(target error) bool { return target == ErrWriteFailed }

// UnreachableError reports that reconnection to an endpoint was abandoned
// and the endpoint evicted.
type UnreachableError struct {
	Endpoint Endpoint
	Cause    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the reconnection failure.
func (e *UnreachableError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrDestinationUnreachable.
func (e *UnreachableError) Is(target error) bool { return target == ErrDestinationUnreachable }

// BootstrapError lists the endpoints that could not be reached when a
// strict client was created.
type BootstrapError struct {
	// Endpoints failed, in configuration order.
	Endpoints []Endpoint

	// Err combines the dial errors.
	Err error
}

func (e *BootstrapError) Error() string {
	names := make([]string, len(e.Endpoints))
	for i, ep := range e.Endpoints {
		names[i] = ep.String()
	}
	return fmt.Sprintf("bootstrap failed for %s: %v", strings.Join(names, ", "), e.Err)
}

// Unwrap returns the combined dial errors.
func (e *BootstrapError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBootstrapFailed.
func (e *BootstrapError) Is(target error) bool { return target == ErrBootstrapFailed }
