// Package log provides structured transport event logging.
//
// This package defines the Logger interface and Event types for capturing
// transport-level events: bytes written to a peer, connection state changes,
// reconnection attempts and failures. It is separate from operational logging
// (slog): the event trace is complete and machine-readable, and every failure
// transition of a connection produces exactly one event.
//
// # Basic Usage
//
// Components accept a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("/var/log/mixtcp/client.mtlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: socket writes (FrameEvent), probe failures, shutdown errors
//   - Reconnect: backoff and dial attempts (ReconnectEvent)
//   - Client: routing table changes (StateChangeEvent) and send failures
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .mtlog extension.
// The mixtcp-log command provides viewing, statistics and export.
package log
