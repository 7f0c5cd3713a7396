package log

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
)

// ErrLoggerClosed is reported for events logged after Close.
var ErrLoggerClosed = errors.New("log: logger closed")

// FileLoggerOption configures a FileLogger.
type FileLoggerOption func(*FileLogger)

// WithErrorHandler sets a callback for events that could not be written.
// It runs with the logger's lock held and must not log to the same
// FileLogger.
func WithErrorHandler(fn func(Event, error)) FileLoggerOption {
	return func(l *FileLogger) {
		l.onError = fn
	}
}

// FileLogger appends CBOR-encoded events to a file. It is safe for
// concurrent use. A failed write never reaches the caller of Log: it is
// counted in Dropped and passed to the error handler, if any.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	onError func(Event, error)
	dropped atomic.Uint64
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string, opts ...FileLoggerOption) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l := &FileLogger{
		file:    f,
		encoder: NewEncoder(f),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log appends event to the file.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := ErrLoggerClosed
	if !l.closed {
		err = l.encoder.Encode(event)
	}
	if err == nil {
		return
	}
	l.dropped.Add(1)
	if l.onError != nil {
		l.onError(event, err)
	}
}

// Dropped returns the number of events that were not written.
func (l *FileLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close closes the file. Further calls are no-ops.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
