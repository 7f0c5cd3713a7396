package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(buf *bytes.Buffer) *SlogAdapter {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogAdapter(slog.New(handler))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestSlogAdapterLevels(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		level string
		msg   string
	}{
		{
			name:  "frame",
			event: Event{Category: CategoryData, Frame: NewFrameEvent([]byte("hi"))},
			level: "DEBUG",
			msg:   "data",
		},
		{
			name: "state change",
			event: Event{Category: CategoryState, StateChange: &StateChangeEvent{
				Entity: StateEntityRoute, OldState: "ACTIVE", NewState: "EVICTED",
			}},
			level: "INFO",
			msg:   "state change",
		},
		{
			name:  "reconnect retry",
			event: Event{Category: CategoryReconnect, Reconnect: &ReconnectEvent{Attempt: 1, Outcome: ReconnectRetry}},
			level: "WARN",
			msg:   "reconnect",
		},
		{
			name:  "reconnect connected",
			event: Event{Category: CategoryReconnect, Reconnect: &ReconnectEvent{Attempt: 2, Outcome: ReconnectConnected}},
			level: "INFO",
			msg:   "reconnect",
		},
		{
			name:  "error",
			event: Event{Category: CategoryError, Error: &ErrorEventData{Message: "boom", Context: "write"}},
			level: "WARN",
			msg:   "transport error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newTestAdapter(&buf).Log(tt.event)

			record := decodeRecord(t, &buf)
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, tt.msg, record["msg"])
		})
	}
}

func TestSlogAdapterAttributes(t *testing.T) {
	var buf bytes.Buffer
	newTestAdapter(&buf).Log(Event{
		Timestamp: time.Now(),
		Layer:     LayerReconnect,
		Category:  CategoryReconnect,
		Endpoint:  "127.0.0.1:1789",
		Reconnect: &ReconnectEvent{
			Attempt:     3,
			MaxAttempts: 5,
			Outcome:     ReconnectRetry,
			NextDelay:   400 * time.Millisecond,
			Error:       "connection refused",
		},
	})

	record := decodeRecord(t, &buf)
	assert.Equal(t, "RECONNECT", record["layer"])
	assert.Equal(t, "127.0.0.1:1789", record["endpoint"])
	assert.Equal(t, "RETRY", record["outcome"])
	assert.EqualValues(t, 3, record["attempt"])
	assert.EqualValues(t, 5, record["max_attempts"])
	assert.Equal(t, "connection refused", record["error"])
	assert.Contains(t, record, "next_delay")
	assert.NotContains(t, record, "conn_id")
}

func TestSlogAdapterRespectsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	NewSlogAdapter(slog.New(handler)).Log(Event{Frame: NewFrameEvent([]byte("quiet"))})

	assert.Zero(t, buf.Len())
}
