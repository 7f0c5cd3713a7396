package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes transport events to an slog.Logger.
//
// Errors and failed reconnection attempts are logged at Warn, state changes
// and successful reconnections at Info, data events at Debug.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}

	level := slog.LevelDebug
	msg := "transport"

	switch {
	case event.Frame != nil:
		msg = "data"
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.StateChange != nil:
		level = slog.LevelInfo
		msg = "state change"
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Reconnect != nil:
		msg = "reconnect"
		level = slog.LevelWarn
		if event.Reconnect.Outcome == ReconnectConnected {
			level = slog.LevelInfo
		}
		attrs = append(attrs,
			slog.String("outcome", event.Reconnect.Outcome.String()),
			slog.Int("attempt", event.Reconnect.Attempt),
			slog.Int("max_attempts", event.Reconnect.MaxAttempts),
		)
		if event.Reconnect.NextDelay > 0 {
			attrs = append(attrs, slog.Duration("next_delay", event.Reconnect.NextDelay))
		}
		if event.Reconnect.Error != "" {
			attrs = append(attrs, slog.String("error", event.Reconnect.Error))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		msg = "transport error"
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error", event.Error.Message),
			slog.String("context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
