package log

import (
	"time"
)

// Event represents a transport log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the socket (UUID). Empty for events
	// that are not tied to one socket, such as routing table changes.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the remote peer address (IP:port).
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// LocalAddr is the local socket address, when known.
	LocalAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Connection/route state
	Reconnect   *ReconnectEvent   `cbor:"12,keyasint,omitempty"` // Reconnect layer
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionOut indicates outgoing data (the zero value: this transport mostly writes).
	DirectionOut Direction = 0
	// DirectionIn indicates incoming data.
	DirectionIn Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the socket layer (writer and sink server).
	LayerTransport Layer = 0
	// LayerReconnect is the reconnection state machine.
	LayerReconnect Layer = 1
	// LayerClient is the multi-peer routing layer.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerReconnect:
		return "RECONNECT"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryData indicates bytes moved over a socket.
	CategoryData Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryReconnect indicates a reconnection attempt outcome.
	CategoryReconnect Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryData:
		return "DATA"
	case CategoryState:
		return "STATE"
	case CategoryReconnect:
		return "RECONNECT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures bytes written to or read from a socket.
type FrameEvent struct {
	// Size is the number of bytes transferred.
	Size int `cbor:"1,keyasint"`

	// Data is the payload (may be truncated for large writes).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxFrameData is the number of payload bytes kept in a FrameEvent.
const MaxFrameData = 64

// NewFrameEvent builds a FrameEvent for data, truncating the copy kept
// in the event to MaxFrameData bytes.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	kept := data
	if len(kept) > MaxFrameData {
		kept = kept[:MaxFrameData]
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), kept...)
	return fe
}

// StateChangeEvent captures connection and routing lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a socket state change.
	StateEntityConnection StateEntity = 0
	// StateEntityRoute indicates an endpoint entry in the client routing table.
	StateEntityRoute StateEntity = 1
	// StateEntityClient indicates a client lifecycle change.
	StateEntityClient StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityRoute:
		return "ROUTE"
	case StateEntityClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// ReconnectEvent captures the outcome of a single reconnection attempt.
type ReconnectEvent struct {
	// Attempt is the number of failed attempts so far (1-based after a failure).
	Attempt int `cbor:"1,keyasint"`

	// MaxAttempts is the configured retry budget.
	MaxAttempts int `cbor:"2,keyasint"`

	// Outcome of the attempt.
	Outcome ReconnectOutcome `cbor:"3,keyasint"`

	// NextDelay is the backoff before the next attempt (Retry only).
	// Stored as nanoseconds.
	NextDelay time.Duration `cbor:"4,keyasint,omitempty"`

	// Error is the dial error message, if any.
	Error string `cbor:"5,keyasint,omitempty"`
}

// ReconnectOutcome classifies a reconnection attempt.
type ReconnectOutcome uint8

const (
	// ReconnectRetry indicates a failed attempt followed by another backoff.
	ReconnectRetry ReconnectOutcome = 0
	// ReconnectConnected indicates the attempt established a connection.
	ReconnectConnected ReconnectOutcome = 1
	// ReconnectExhausted indicates the retry budget ran out.
	ReconnectExhausted ReconnectOutcome = 2
	// ReconnectCancelled indicates the reconnection was cancelled.
	ReconnectCancelled ReconnectOutcome = 3
)

// String returns the outcome name.
func (o ReconnectOutcome) String() string {
	switch o {
	case ReconnectRetry:
		return "RETRY"
	case ReconnectConnected:
		return "CONNECTED"
	case ReconnectExhausted:
		return "EXHAUSTED"
	case ReconnectCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed
	// (e.g. "write", "shutdown", "bootstrap", "send").
	Context string `cbor:"3,keyasint,omitempty"`
}
