package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/gyrusdentatus/nym/pkg/connection"
	"github.com/gyrusdentatus/nym/pkg/log"
)

// DefaultConnectTimeout bounds a single dial when ClientConfig leaves it unset.
const DefaultConnectTimeout = 10 * time.Second

// Route states reported in StateEntityRoute events.
const (
	routeActive  = "ACTIVE"
	routePending = "PENDING"
	routeEvicted = "EVICTED"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Endpoints are dialed when the client is created. Duplicates are ignored.
	Endpoints []Endpoint

	// Policy governs reconnection after a write failure.
	Policy connection.Policy

	// ConnectTimeout bounds each dial (default: DefaultConnectTimeout).
	ConnectTimeout time.Duration

	// WriteTimeout bounds each write. Zero means no deadline.
	WriteTimeout time.Duration

	// StrictBootstrap makes NewClient fail if any endpoint is unreachable.
	// Otherwise unreachable endpoints are kept as pending routes and
	// connected by their first Send.
	StrictBootstrap bool

	// Dialer opens connections (default: DefaultDialer).
	Dialer Dialer

	// Logger receives transport events (optional).
	Logger log.Logger

	// Metrics records Prometheus metrics (optional).
	Metrics *Metrics
}

// peer is the route to one endpoint. mu serializes writes and
// reconnection; writer is nil while the route is pending. writer and
// evicted are atomic so Close can release the socket while a write holds mu.
type peer struct {
	endpoint Endpoint

	mu      sync.Mutex
	writer  atomic.Pointer[Writer]
	evicted atomic.Bool
}

// Client routes payloads to endpoints over one connection per endpoint.
//
// Lock order is peer.mu before Client.mu. Client.mu is never held across
// network I/O.
type Client struct {
	config  ClientConfig
	dialer  Dialer
	logger  log.Logger
	metrics *Metrics

	// ctx is cancelled by Close and aborts in-flight reconnections.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	peers  map[Endpoint]*peer
	closed bool
}

// NewClient dials every configured endpoint concurrently and returns a
// Client routing to them. ctx bounds the initial dials only.
//
// With StrictBootstrap, any failed dial closes the established
// connections and returns a *BootstrapError.
func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.Dialer == nil {
		config.Dialer = DefaultDialer()
	}

	c := &Client{
		config:  config,
		dialer:  config.Dialer,
		logger:  log.OrNoop(config.Logger),
		metrics: config.Metrics,
		peers:   make(map[Endpoint]*peer),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	endpoints := dedupe(config.Endpoints)
	conns, errs := c.bootstrap(ctx, endpoints)

	if config.StrictBootstrap {
		var (
			failed   []Endpoint
			combined error
		)
		for i, err := range errs {
			if err == nil {
				continue
			}
			// Dials aborted because another endpoint already failed.
			if ctx.Err() == nil && errors.Is(err, context.Canceled) {
				continue
			}
			failed = append(failed, endpoints[i])
			combined = multierr.Append(combined, err)
		}
		if len(failed) > 0 {
			for _, conn := range conns {
				if conn != nil {
					conn.Close()
				}
			}
			c.cancel()
			return nil, &BootstrapError{Endpoints: failed, Err: combined}
		}
	}

	for i, ep := range endpoints {
		p := &peer{endpoint: ep}
		if conns[i] != nil {
			p.writer.Store(c.newWriter(conns[i], ep))
			c.logRoute(ep, "", routeActive, "")
		} else {
			// The dial error was already logged by bootstrap.
			c.logRoute(ep, "", routePending, "")
		}
		c.peers[ep] = p
	}
	c.metrics.setEndpoints(len(c.peers))

	return c, nil
}

// bootstrap dials endpoints concurrently. conns[i] and errs[i] hold the
// outcome for endpoints[i]; every failure is logged once.
func (c *Client) bootstrap(ctx context.Context, endpoints []Endpoint) ([]net.Conn, []error) {
	conns := make([]net.Conn, len(endpoints))
	errs := make([]error, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		g.Go(func() error {
			conn, err := c.dial(gctx, ep)
			conns[i], errs[i] = conn, err
			if err != nil {
				c.logError(ep, "bootstrap", err)
				if c.config.StrictBootstrap {
					return err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return conns, errs
}

// dial opens one connection, bounded by the connect timeout.
func (c *Client) dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep, err)
	}
	return conn, nil
}

func (c *Client) newWriter(conn net.Conn, ep Endpoint) *Writer {
	return NewWriter(conn, ep, WriterConfig{
		Logger:       c.logger,
		WriteTimeout: c.config.WriteTimeout,
	})
}

// Send writes payload to endpoint.
//
// If the write fails, the connection is discarded and re-established
// under the reconnection policy, then the write is retried once and its
// result returned. If reconnection gives up, the endpoint is evicted and
// a *UnreachableError returned. Cancelling ctx abandons the send; the
// endpoint stays routed.
func (c *Client) Send(ctx context.Context, endpoint Endpoint, payload []byte) error {
	p, err := c.lookup(endpoint)
	if err != nil {
		c.metrics.rejected(sendResult(err))
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = c.sendLocked(ctx, p, payload)
	c.metrics.send(endpoint, sendResult(err), len(payload))
	return err
}

func (c *Client) lookup(ep Endpoint) (*peer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	p, ok := c.peers[ep]
	if !ok {
		return nil, ErrUnknownDestination
	}
	return p, nil
}

// sendLocked runs with p.mu held.
func (c *Client) sendLocked(ctx context.Context, p *peer, payload []byte) error {
	if p.evicted.Load() {
		if c.isClosed() {
			return ErrClientClosed
		}
		return ErrUnknownDestination
	}

	if w := p.writer.Load(); w != nil {
		err := w.Write(payload)
		if err == nil {
			return nil
		}
		w.Close()
		p.writer.CompareAndSwap(w, nil)
	}

	conn, err := c.reconnect(ctx, p.endpoint)
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrMaxRetriesExceeded):
			c.evict(p, err)
			return &UnreachableError{Endpoint: p.endpoint, Cause: err}
		case c.ctx.Err() != nil:
			return ErrClientClosed
		default:
			return err
		}
	}

	w := c.newWriter(conn, p.endpoint)
	p.writer.Store(w)
	// Close cancels c.ctx before it swaps writers out, so a writer stored
	// after that swap is seen here.
	if c.ctx.Err() != nil {
		w.Close()
		p.writer.CompareAndSwap(w, nil)
		return ErrClientClosed
	}
	c.logRoute(p.endpoint, routePending, routeActive, "reconnected")

	if err := w.Write(payload); err != nil {
		// Leave the route pending; the next send reconnects.
		w.Close()
		p.writer.CompareAndSwap(w, nil)
		return err
	}
	return nil
}

// reconnect runs a Reconnector until it succeeds, gives up, or either
// ctx or the client is cancelled.
func (c *Client) reconnect(ctx context.Context, ep Endpoint) (net.Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	dial := func(ctx context.Context) (net.Conn, error) {
		return c.dialer.DialContext(ctx, "tcp", ep.String())
	}
	r := connection.NewReconnector(ep.String(), dial, c.config.Policy,
		connection.WithLogger(c.logger),
		connection.WithConnectTimeout(c.config.ConnectTimeout),
		connection.WithOnAttempt(func(_ int, err error, _ time.Duration) {
			c.metrics.reconnectAttempt(ep, err)
		}),
	)
	return r.Run(ctx)
}

// evict removes p from the routing table. Called with p.mu held.
func (c *Client) evict(p *peer, cause error) {
	p.evicted.Store(true)

	c.mu.Lock()
	if c.peers[p.endpoint] == p {
		delete(c.peers, p.endpoint)
	}
	remaining := len(c.peers)
	c.mu.Unlock()

	c.metrics.evicted(remaining)
	c.logRoute(p.endpoint, routePending, routeEvicted, cause.Error())
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Endpoints returns the routed endpoints, sorted.
func (c *Client) Endpoints() []Endpoint {
	c.mu.RLock()
	eps := make([]Endpoint, 0, len(c.peers))
	for ep := range c.peers {
		eps = append(eps, ep)
	}
	c.mu.RUnlock()

	slices.SortFunc(eps, Endpoint.Compare)
	return eps
}

// Has reports whether endpoint is routed.
func (c *Client) Has(endpoint Endpoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.peers[endpoint]
	return ok
}

// Close cancels in-flight reconnections and closes every connection.
// It does not wait for sends in progress; a blocked write fails once its
// socket is closed, and those sends finish with ErrClientClosed or their
// own result.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	peers := c.peers
	c.peers = make(map[Endpoint]*peer)
	c.mu.Unlock()

	c.cancel()

	for _, p := range peers {
		p.evicted.Store(true)
		if w := p.writer.Swap(nil); w != nil {
			w.Close()
		}
	}

	c.metrics.setEndpoints(0)
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: "OPEN",
			NewState: "CLOSED",
		},
	})
	return nil
}

func (c *Client) logRoute(ep Endpoint, oldState, newState, reason string) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerClient,
		Category:  log.CategoryState,
		Endpoint:  ep.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityRoute,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Client) logError(ep Endpoint, op string, err error) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerClient,
		Category:  log.CategoryError,
		Endpoint:  ep.String(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerClient,
			Message: err.Error(),
			Context: op,
		},
	})
}

func dedupe(endpoints []Endpoint) []Endpoint {
	seen := make(map[Endpoint]struct{}, len(endpoints))
	out := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}

func sendResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrUnknownDestination):
		return resultUnknown
	case errors.Is(err, ErrDestinationUnreachable):
		return resultUnreachable
	case errors.Is(err, ErrClientClosed):
		return resultClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resultCancelled
	default:
		return resultFailed
	}
}
