package transport_test

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gyrusdentatus/nym/pkg/connection"
	"github.com/gyrusdentatus/nym/pkg/log"
	"github.com/gyrusdentatus/nym/pkg/transport"
)

// recorder collects everything a sink receives, across connections.
type recorder struct {
	mu   sync.Mutex
	data bytes.Buffer
}

func (r *recorder) onData(_ *transport.ServerConn, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Write(data)
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.String()
}

// waitFor waits until the recorder holds exactly want.
func (r *recorder) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.String() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sink received %q, want %q", r.String(), want)
}

// startSink starts a sink on address (use "127.0.0.1:0" for a random port).
func startSink(t *testing.T, address string) (*transport.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	server := transport.NewServer(transport.ServerConfig{
		Address: address,
		OnData:  rec.onData,
	})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start sink: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server, rec
}

// refusedEndpoint returns a loopback endpoint with nothing listening.
func refusedEndpoint(t *testing.T) transport.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	ep := transport.EndpointFromAddrPort(ln.Addr().(*net.TCPAddr).AddrPort())
	ln.Close()
	return ep
}

func fastPolicy(maxAttempts int) connection.Policy {
	return connection.Policy{
		Initial:     10 * time.Millisecond,
		Max:         50 * time.Millisecond,
		MaxAttempts: maxAttempts,
	}
}

func countReconnects(logger *log.MemoryLogger, outcome log.ReconnectOutcome) int {
	n := 0
	for _, e := range logger.Events() {
		if e.Reconnect != nil && e.Reconnect.Outcome == outcome {
			n++
		}
	}
	return n
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
