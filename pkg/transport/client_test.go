package transport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gyrusdentatus/nym/pkg/connection"
	"github.com/gyrusdentatus/nym/pkg/log"
	"github.com/gyrusdentatus/nym/pkg/transport"
	"github.com/gyrusdentatus/nym/pkg/transport/mocks"
)

// TestClientEndToEnd sends two payloads to a live sink, then stops the
// sink and checks that the endpoint is reported unreachable and evicted.
func TestClientEndToEnd(t *testing.T) {
	sink, rec := startSink(t, "127.0.0.1:0")
	ep := sink.Endpoint()
	logger := &log.MemoryLogger{}

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy: connection.Policy{
			Initial:     50 * time.Millisecond,
			Max:         500 * time.Millisecond,
			MaxAttempts: 5,
		},
		Logger: logger,
	})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Send(ctx, ep, []byte("foomp1")))
	require.NoError(t, client.Send(ctx, ep, []byte("foomp2")))
	rec.waitFor(t, "foomp1foomp2")

	reconnect := log.CategoryReconnect
	assert.Zero(t, logger.Count(log.Filter{Category: &reconnect}), "no reconnection expected while the sink is up")

	require.NoError(t, sink.Stop())
	// Let the peer's FIN reach the client socket.
	time.Sleep(50 * time.Millisecond)

	err = client.Send(ctx, ep, []byte("foomp3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrDestinationUnreachable)
	assert.ErrorIs(t, err, transport.ErrMaxRetriesExceeded)

	var unreachable *transport.UnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.Equal(t, ep, unreachable.Endpoint)

	assert.Equal(t, 4, countReconnects(logger, log.ReconnectRetry))
	assert.Equal(t, 1, countReconnects(logger, log.ReconnectExhausted))

	err = client.Send(ctx, ep, []byte("foomp4"))
	assert.ErrorIs(t, err, transport.ErrUnknownDestination)
	assert.Empty(t, client.Endpoints())
	assert.Equal(t, "foomp1foomp2", rec.String())
}

func TestClientUnknownDestination(t *testing.T) {
	known := transport.MustParseEndpoint("10.0.0.1:1789")
	unknown := transport.MustParseEndpoint("10.0.0.2:1789")

	local, remote := net.Pipe()
	defer remote.Close()

	dialer := mocks.NewMockDialer(t)
	dialer.EXPECT().DialContext(mock.Anything, "tcp", known.String()).Return(local, nil).Once()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{known},
		Policy:    fastPolicy(3),
		Dialer:    dialer,
	})
	require.NoError(t, err)
	defer client.Close()

	err = client.Send(context.Background(), unknown, []byte("hello"))
	assert.ErrorIs(t, err, transport.ErrUnknownDestination)
	dialer.AssertNumberOfCalls(t, "DialContext", 1)
}

// TestClientPerEndpointIsolation checks that a send to a healthy endpoint
// completes while another endpoint is reconnecting.
func TestClientPerEndpointIsolation(t *testing.T) {
	down := refusedEndpoint(t)
	sink, rec := startSink(t, "127.0.0.1:0")
	up := sink.Endpoint()
	logger := &log.MemoryLogger{}

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{down, up},
		Policy: connection.Policy{
			Initial:     200 * time.Millisecond,
			Max:         time.Second,
			MaxAttempts: 20,
		},
		Logger: logger,
	})
	require.NoError(t, err)

	downErr := make(chan error, 1)
	go func() {
		downErr <- client.Send(context.Background(), down, []byte("lost"))
	}()

	waitUntil(t, func() bool {
		return countReconnects(logger, log.ReconnectRetry) > 0
	}, "reconnection to the down endpoint did not start")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, client.Send(ctx, up, []byte("delivered")))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	rec.waitFor(t, "delivered")

	select {
	case err := <-downErr:
		t.Fatalf("send to down endpoint returned early: %v", err)
	default:
	}

	require.NoError(t, client.Close())
	select {
	case err := <-downErr:
		assert.ErrorIs(t, err, transport.ErrClientClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not abort the in-flight reconnection")
	}
}

func TestClientLenientBootstrap(t *testing.T) {
	down := refusedEndpoint(t)
	sink, rec := startSink(t, "127.0.0.1:0")
	up := sink.Endpoint()
	logger := &log.MemoryLogger{}

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{down, up},
		Policy:    fastPolicy(2),
		Logger:    logger,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.ElementsMatch(t, []transport.Endpoint{down, up}, client.Endpoints())

	errCat := log.CategoryError
	assert.Equal(t, 1, logger.Count(log.Filter{Category: &errCat, Endpoint: down.String()}))

	// The dial failure is recorded once; the pending route event does not repeat it.
	stateCat := log.CategoryState
	var pending []log.Event
	for _, e := range logger.Events() {
		if e.Endpoint == down.String() && e.Category == stateCat && e.StateChange != nil && e.StateChange.NewState == "PENDING" {
			pending = append(pending, e)
		}
	}
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].StateChange.Reason)

	require.NoError(t, client.Send(context.Background(), up, []byte("ok")))
	rec.waitFor(t, "ok")

	err = client.Send(context.Background(), down, []byte("nope"))
	assert.ErrorIs(t, err, transport.ErrDestinationUnreachable)
	assert.Equal(t, []transport.Endpoint{up}, client.Endpoints())
	assert.False(t, client.Has(down))
}

func TestClientPendingEndpointConnectsOnSend(t *testing.T) {
	ep := transport.MustParseEndpoint("10.0.0.7:1789")
	local, remote := net.Pipe()

	dialer := mocks.NewMockDialer(t)
	dialer.EXPECT().DialContext(mock.Anything, "tcp", ep.String()).
		Return(nil, errors.New("connection refused")).Once()
	dialer.EXPECT().DialContext(mock.Anything, "tcp", ep.String()).
		Return(local, nil).Once()

	received := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(remote)
		received <- data
	}()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(3),
		Dialer:    dialer,
	})
	require.NoError(t, err)
	assert.True(t, client.Has(ep))

	require.NoError(t, client.Send(context.Background(), ep, []byte("hello")))
	require.NoError(t, client.Close())

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not see the connection close")
	}
}

func TestClientStrictBootstrap(t *testing.T) {
	down := refusedEndpoint(t)
	sink, _ := startSink(t, "127.0.0.1:0")
	up := sink.Endpoint()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints:       []transport.Endpoint{up, down},
		Policy:          fastPolicy(2),
		StrictBootstrap: true,
	})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, transport.ErrBootstrapFailed)

	var berr *transport.BootstrapError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, []transport.Endpoint{down}, berr.Endpoints)

	waitUntil(t, func() bool { return sink.ConnectionCount() == 0 },
		"established bootstrap connection was not closed")
}

func TestClientReconnectsAndRetries(t *testing.T) {
	sink1, rec1 := startSink(t, "127.0.0.1:0")
	ep := sink1.Endpoint()
	logger := &log.MemoryLogger{}

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(5),
		Logger:    logger,
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(context.Background(), ep, []byte("one")))
	rec1.waitFor(t, "one")

	require.NoError(t, sink1.Stop())
	time.Sleep(50 * time.Millisecond)
	_, rec2 := startSink(t, ep.String())

	require.NoError(t, client.Send(context.Background(), ep, []byte("two")))
	rec2.waitFor(t, "two")

	assert.Equal(t, 1, countReconnects(logger, log.ReconnectConnected))
	assert.Equal(t, "one", rec1.String())
	assert.True(t, client.Has(ep))
}

func TestClientCallerCancellationKeepsRoute(t *testing.T) {
	down := refusedEndpoint(t)

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{down},
		Policy: connection.Policy{
			Initial:     time.Second,
			Max:         time.Second,
			MaxAttempts: 10,
		},
	})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = client.Send(ctx, down, []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, transport.ErrDestinationUnreachable)
	assert.True(t, client.Has(down))
}

func TestClientClose(t *testing.T) {
	sink, _ := startSink(t, "127.0.0.1:0")
	ep := sink.Endpoint()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(1),
	})
	require.NoError(t, err)
	waitUntil(t, func() bool { return sink.ConnectionCount() == 1 }, "sink did not see the connection")

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err = client.Send(context.Background(), ep, []byte("late"))
	assert.ErrorIs(t, err, transport.ErrClientClosed)
	assert.Empty(t, client.Endpoints())

	waitUntil(t, func() bool { return sink.ConnectionCount() == 0 }, "connection was not closed")
}

func TestClientDeduplicatesEndpoints(t *testing.T) {
	sink, _ := startSink(t, "127.0.0.1:0")
	ep := sink.Endpoint()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep, ep, ep},
		Policy:    fastPolicy(1),
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, []transport.Endpoint{ep}, client.Endpoints())
	waitUntil(t, func() bool { return sink.ConnectionCount() == 1 }, "expected a single connection")
}

func TestClientMetrics(t *testing.T) {
	sink, _ := startSink(t, "127.0.0.1:0")
	ep := sink.Endpoint()
	reg := prometheus.NewRegistry()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(1),
		Metrics:   transport.NewMetrics(reg),
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(context.Background(), ep, []byte("12345")))
	_ = client.Send(context.Background(), transport.MustParseEndpoint("10.9.9.9:1"), []byte("x"))
	_ = client.Send(context.Background(), transport.MustParseEndpoint("10.9.9.8:2"), []byte("x"))

	assert.Equal(t, 1.0, metricValue(t, reg, "mixtcp_client_sends_total", map[string]string{"endpoint": ep.String(), "result": "ok"}))
	assert.Equal(t, 2.0, metricValue(t, reg, "mixtcp_client_sends_total", map[string]string{"endpoint": "unrouted", "result": "unknown_destination"}),
		"unknown destinations share one series")
	assert.Equal(t, 5.0, metricValue(t, reg, "mixtcp_client_bytes_written_total", map[string]string{"endpoint": ep.String()}))
	assert.Equal(t, 1.0, metricValue(t, reg, "mixtcp_client_endpoints", nil))
}

// metricValue returns the counter or gauge value of the series with the
// given labels.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	series:
		for _, m := range fam.GetMetric() {
			got := make(map[string]string)
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestNilMetricsIsNoop(t *testing.T) {
	sink, _ := startSink(t, "127.0.0.1:0")
	ep := sink.Endpoint()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(1),
	})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Send(context.Background(), ep, []byte("x")))
}

// TestClientCloseDuringBlockedWrite checks that Close releases a socket
// whose write is blocked on a peer that never reads.
func TestClientCloseDuringBlockedWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	ep := transport.EndpointFromAddrPort(ln.Addr().(*net.TCPAddr).AddrPort())

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(1),
	})
	require.NoError(t, err)

	var server net.Conn
	select {
	case server = <-accepted:
		defer server.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not accept")
	}

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- client.Send(context.Background(), ep, make([]byte, 64<<20))
	}()

	// Give the write time to fill the socket buffers and block.
	time.Sleep(100 * time.Millisecond)

	closeDone := make(chan struct{})
	go func() {
		client.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind an in-flight write")
	}

	select {
	case err := <-sendDone:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked send did not return after Close")
	}
}

// TestClientConcurrentSendsAfterPeerClosed checks that concurrent sends to
// one endpoint share a single reconnection: one caller sees the endpoint
// become unreachable and the others find it evicted.
func TestClientConcurrentSendsAfterPeerClosed(t *testing.T) {
	sink, _ := startSink(t, "127.0.0.1:0")
	ep := sink.Endpoint()
	logger := &log.MemoryLogger{}

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(3),
		Logger:    logger,
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, sink.Stop())
	time.Sleep(50 * time.Millisecond)

	const senders = 8
	errs := make(chan error, senders)
	var wg sync.WaitGroup
	for i := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Send(context.Background(), ep, []byte{byte(i)})
		}()
	}
	wg.Wait()
	close(errs)

	var unreachable, unknown int
	for err := range errs {
		var uerr *transport.UnreachableError
		switch {
		case errors.As(err, &uerr):
			unreachable++
		case errors.Is(err, transport.ErrUnknownDestination):
			unknown++
		default:
			t.Errorf("unexpected send result: %v", err)
		}
	}
	assert.Equal(t, 1, unreachable)
	assert.Equal(t, senders-1, unknown)
	assert.Equal(t, 1, countReconnects(logger, log.ReconnectExhausted))
	assert.False(t, client.Has(ep))
}

// TestClientPreservesPerSenderOrder checks that records from concurrent
// senders to one endpoint arrive whole and in each sender's order.
func TestClientPreservesPerSenderOrder(t *testing.T) {
	sink, rec := startSink(t, "127.0.0.1:0")
	ep := sink.Endpoint()

	client, err := transport.NewClient(context.Background(), transport.ClientConfig{
		Endpoints: []transport.Endpoint{ep},
		Policy:    fastPolicy(3),
	})
	require.NoError(t, err)
	defer client.Close()

	const (
		senders   = 4
		perSender = 50
		recordLen = len("00:0000;")
	)
	var wg sync.WaitGroup
	for s := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seq := range perSender {
				record := fmt.Sprintf("%02d:%04d;", s, seq)
				assert.NoError(t, client.Send(context.Background(), ep, []byte(record)))
			}
		}()
	}
	wg.Wait()

	total := senders * perSender * recordLen
	waitUntil(t, func() bool { return len(rec.String()) == total }, "sink did not receive every record")

	next := make([]int, senders)
	for rest := rec.String(); rest != ""; rest = rest[recordLen:] {
		s, err := strconv.Atoi(rest[0:2])
		require.NoError(t, err, "malformed record %q", rest[:recordLen])
		seq, err := strconv.Atoi(rest[3:7])
		require.NoError(t, err, "malformed record %q", rest[:recordLen])
		require.Less(t, s, senders)
		assert.Equal(t, next[s], seq, "sender %d out of order", s)
		next[s] = seq + 1
	}
	for s, n := range next {
		assert.Equal(t, perSender, n, "sender %d record count", s)
	}
}
