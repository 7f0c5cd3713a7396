package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gyrusdentatus/nym/pkg/log"
)

// ParseLevel parses a -log-level value.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s (use: debug, info, warn, error)", s)
	}
}

// NewLogger returns a text slog.Logger writing to w at level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// ProtocolLogger fans transport events out to the operational logger
// and, when path is set, to a CBOR event file. The returned close func
// closes the file and is never nil.
func ProtocolLogger(path string, logger *slog.Logger) (log.Logger, func() error, error) {
	console := log.NewSlogAdapter(logger)
	if path == "" {
		return console, func() error { return nil }, nil
	}

	file, err := log.NewFileLogger(path, log.WithErrorHandler(func(e log.Event, err error) {
		logger.Warn("protocol log write failed", "layer", e.Layer, "category", e.Category, "error", err)
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	logger.Info("protocol logging enabled", "path", path)
	return log.NewMultiLogger(console, file), file.Close, nil
}
