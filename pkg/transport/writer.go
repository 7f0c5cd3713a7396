package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/gyrusdentatus/nym/pkg/log"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Logger receives frame, state and error events (optional).
	Logger log.Logger

	// WriteTimeout bounds each write. Zero means no deadline.
	WriteTimeout time.Duration
}

// Writer owns one established connection to one endpoint. It carries no
// retry state; a failed Writer is closed and replaced.
type Writer struct {
	conn         net.Conn
	endpoint     Endpoint
	connID       string
	logger       log.Logger
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// halfCloser is implemented by *net.TCPConn and *net.UnixConn.
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// NewWriter takes ownership of conn.
func NewWriter(conn net.Conn, endpoint Endpoint, cfg WriterConfig) *Writer {
	w := &Writer{
		conn:         conn,
		endpoint:     endpoint,
		connID:       uuid.New().String(),
		logger:       log.OrNoop(cfg.Logger),
		writeTimeout: cfg.WriteTimeout,
	}
	w.logState("", "CONNECTED", "")
	return w
}

// Endpoint returns the remote endpoint.
func (w *Writer) Endpoint() Endpoint {
	return w.endpoint
}

// ConnID returns the unique connection identifier used in events.
func (w *Writer) ConnID() string {
	return w.connID
}

// LocalAddr returns the local socket address.
func (w *Writer) LocalAddr() net.Addr {
	return w.conn.LocalAddr()
}

// Closed reports whether Close has been called.
func (w *Writer) Closed() bool {
	return w.closed.Load()
}

// Write probes the connection and writes p in full.
//
// It returns ErrConnectionClosed if the peer closed the connection (no
// bytes are written) and a *WriteError if the write itself fails.
func (w *Writer) Write(p []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.closed.Load() {
		return ErrConnectionClosed
	}

	if err := probe(w.conn); err != nil {
		w.logError("probe", err)
		return err
	}

	if w.writeTimeout > 0 {
		w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
		defer w.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := w.conn.Write(p); err != nil {
		werr := &WriteError{Endpoint: w.endpoint, Cause: err}
		w.logError("write", werr)
		return werr
	}

	w.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: w.connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryData,
		Endpoint:     w.endpoint.String(),
		Frame:        log.NewFrameEvent(p),
	})
	return nil
}

// Close shuts down both directions and releases the socket. Shutdown
// errors are logged, never returned; Close always returns nil.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)

		var err error
		if hc, ok := w.conn.(halfCloser); ok {
			err = multierr.Append(err, hc.CloseWrite())
			err = multierr.Append(err, hc.CloseRead())
		}
		err = multierr.Append(err, w.conn.Close())
		if err != nil {
			w.logError("shutdown", err)
		}
		w.logState("CONNECTED", "CLOSED", "")
	})
	return nil
}

func (w *Writer) logState(oldState, newState, reason string) {
	w.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: w.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Endpoint:     w.endpoint.String(),
		LocalAddr:    addrString(w.conn.LocalAddr()),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (w *Writer) logError(op string, err error) {
	w.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: w.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Endpoint:     w.endpoint.String(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	})
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
