package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestLog(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+FileExtension)
	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func sampleEvents(base time.Time) []Event {
	return []Event{
		{
			Timestamp:    base,
			ConnectionID: "conn-a",
			Layer:        LayerTransport,
			Category:     CategoryData,
			Endpoint:     "10.0.0.1:1789",
			Frame:        NewFrameEvent([]byte("foomp1")),
		},
		{
			Timestamp: base.Add(time.Second),
			Layer:     LayerReconnect,
			Category:  CategoryReconnect,
			Endpoint:  "10.0.0.2:1789",
			Reconnect: &ReconnectEvent{Attempt: 1, MaxAttempts: 5, Outcome: ReconnectRetry},
		},
		{
			Timestamp:    base.Add(2 * time.Second),
			ConnectionID: "conn-b",
			Direction:    DirectionIn,
			Layer:        LayerTransport,
			Category:     CategoryData,
			Endpoint:     "10.0.0.2:1789",
			Frame:        NewFrameEvent([]byte("foomp2")),
		},
		{
			Timestamp: base.Add(3 * time.Second),
			Layer:     LayerClient,
			Category:  CategoryError,
			Endpoint:  "10.0.0.2:1789",
			Error:     &ErrorEventData{Layer: LayerClient, Message: "unreachable", Context: "send"},
		},
	}
}

func TestReaderReadsAll(t *testing.T) {
	base := time.Now().Truncate(time.Millisecond)
	path := writeTestLog(t, sampleEvents(base))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "conn-a", events[0].ConnectionID)
	assert.Equal(t, ReconnectRetry, events[1].Reconnect.Outcome)
	assert.Equal(t, "send", events[3].Error.Context)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderFilters(t *testing.T) {
	base := time.Now().Truncate(time.Millisecond)
	path := writeTestLog(t, sampleEvents(base))

	in := DirectionIn
	transport := LayerTransport
	reconnect := CategoryReconnect
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"none", Filter{}, 4},
		{"connection", Filter{ConnectionID: "conn-b"}, 1},
		{"endpoint", Filter{Endpoint: "10.0.0.2:1789"}, 3},
		{"direction", Filter{Direction: &in}, 1},
		{"layer", Filter{Layer: &transport}, 2},
		{"category", Filter{Category: &reconnect}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{Endpoint: "10.0.0.2:1789", Layer: &transport}, 1},
		{"no match", Filter{ConnectionID: "missing"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()

			events, err := r.ReadAll()
			require.NoError(t, err)
			assert.Len(t, events, tt.want)
			for _, e := range events {
				assert.True(t, tt.filter.Matches(e))
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing"+FileExtension))
	assert.Error(t, err)
}
