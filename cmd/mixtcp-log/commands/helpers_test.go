package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gyrusdentatus/nym/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mtlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

var testStart = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

// sessionEvents is a short client session: connect, two writes, a
// failed write, an exhausted reconnect and the eviction.
func sessionEvents() []log.Event {
	const ep = "127.0.0.1:1789"
	const conn = "abc12345-6789-0123-4567-890abcdef012"
	return []log.Event{
		{
			Timestamp: testStart, ConnectionID: conn, Layer: log.LayerTransport,
			Category: log.CategoryState, Endpoint: ep,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, NewState: "CONNECTED"},
		},
		{
			Timestamp: testStart.Add(time.Millisecond), ConnectionID: conn, Layer: log.LayerTransport,
			Category: log.CategoryData, Endpoint: ep, Frame: log.NewFrameEvent([]byte("foomp1")),
		},
		{
			Timestamp: testStart.Add(2 * time.Millisecond), ConnectionID: conn, Layer: log.LayerTransport,
			Category: log.CategoryData, Endpoint: ep, Frame: log.NewFrameEvent([]byte("foomp2")),
		},
		{
			Timestamp: testStart.Add(time.Second), ConnectionID: conn, Layer: log.LayerTransport,
			Category: log.CategoryError, Endpoint: ep,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "connection reset", Context: "probe"},
		},
		{
			Timestamp: testStart.Add(2 * time.Second), Layer: log.LayerReconnect,
			Category: log.CategoryReconnect, Endpoint: ep,
			Reconnect: &log.ReconnectEvent{Attempt: 1, MaxAttempts: 2, Outcome: log.ReconnectRetry, NextDelay: 40 * time.Millisecond, Error: "refused"},
		},
		{
			Timestamp: testStart.Add(3 * time.Second), Layer: log.LayerReconnect,
			Category: log.CategoryReconnect, Endpoint: ep,
			Reconnect: &log.ReconnectEvent{Attempt: 2, MaxAttempts: 2, Outcome: log.ReconnectExhausted, Error: "refused"},
		},
		{
			Timestamp: testStart.Add(3 * time.Second), Layer: log.LayerClient,
			Category: log.CategoryState, Endpoint: ep,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityRoute, OldState: "PENDING", NewState: "EVICTED", Reason: "max retries"},
		},
	}
}
