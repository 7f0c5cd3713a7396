package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go4.org/netipx"

	"github.com/gyrusdentatus/nym/pkg/log"
)

// DefaultPort is the conventional mix node listening port.
const DefaultPort = 1789

// DefaultReadBufferSize is the read buffer used per sink connection.
const DefaultReadBufferSize = 32 * 1024

// ErrNotAllowed is reported through OnError when a peer outside the
// allow-list connects.
var ErrNotAllowed = errors.New("peer address not allowed")

// ServerConfig configures a sink Server.
type ServerConfig struct {
	// Address to listen on (e.g., ":1789" or "127.0.0.1:0").
	Address string

	// Allow restricts which peer IPs may connect. Nil allows all.
	Allow *netipx.IPSet

	// ReadBufferSize is the per-connection read buffer (default: DefaultReadBufferSize).
	ReadBufferSize int

	// Logger for transport events (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is accepted.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnData is called with every chunk read. data is only valid for the
	// duration of the call.
	OnData func(conn *ServerConn, data []byte)

	// OnError is called when an error occurs.
	OnError func(conn *ServerConn, err error)
}

// Server is a TCP sink: it accepts connections and reads until the peer
// closes, handing every chunk to OnData. It never writes.
type Server struct {
	config   ServerConfig
	logger   log.Logger
	listener net.Listener

	// Active connections
	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	received atomic.Uint64

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a sink server.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultReadBufferSize
	}
	return &Server{
		config: config,
		logger: log.OrNoop(config.Logger),
		conns:  make(map[*ServerConn]struct{}),
	}
}

// Start starts listening and accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(s.ctx, "tcp", s.config.Address)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every connection, then waits for the
// connection handlers to return.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()

	err := s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// Endpoint returns the listen address as an Endpoint. Unspecified listen
// addresses are reported as loopback.
func (s *Server) Endpoint() Endpoint {
	addr, ok := s.Addr().(*net.TCPAddr)
	if !ok {
		return Endpoint{}
	}
	ap := addr.AddrPort()
	if ap.Addr().IsUnspecified() {
		loopback := netip.IPv6Loopback()
		if ap.Addr().Unmap().Is4() {
			loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})
		}
		ap = netip.AddrPortFrom(loopback, ap.Port())
	}
	return EndpointFromAddrPort(ap)
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// BytesReceived returns the total bytes read across all connections.
func (s *Server) BytesReceived() uint64 {
	return s.received.Load()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(nil, "accept", fmt.Errorf("accept error: %w", err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) allowed(addr net.Addr) bool {
	if s.config.Allow == nil {
		return true
	}
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return false
	}
	return s.config.Allow.Contains(tcp.AddrPort().Addr().Unmap())
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	sconn := &ServerConn{
		conn:       conn,
		server:     s,
		remoteAddr: conn.RemoteAddr(),
		connID:     uuid.New().String(),
	}

	if !s.allowed(conn.RemoteAddr()) {
		conn.Close()
		s.reportError(sconn, "allow", fmt.Errorf("%w: %s", ErrNotAllowed, conn.RemoteAddr()))
		return
	}

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	s.logState(sconn, "", "CONNECTED", "")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	reason := sconn.readLoop(s.config.ReadBufferSize)
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.logState(sconn, "CONNECTED", "DISCONNECTED", reason)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) reportError(conn *ServerConn, op string, err error) {
	ev := log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	}
	if conn != nil {
		ev.ConnectionID = conn.connID
		ev.Endpoint = addrString(conn.remoteAddr)
	}
	s.logger.Log(ev)

	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

func (s *Server) logState(conn *ServerConn, oldState, newState, reason string) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		Endpoint:     addrString(conn.remoteAddr),
		LocalAddr:    addrString(conn.conn.LocalAddr()),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// ServerConn is one accepted sink connection.
type ServerConn struct {
	conn       net.Conn
	server     *Server
	remoteAddr net.Addr
	connID     string
	received   atomic.Uint64
	closeOnce  sync.Once
}

// RemoteAddr returns the peer address.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// BytesReceived returns the bytes read on this connection.
func (c *ServerConn) BytesReceived() uint64 {
	return c.received.Load()
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// readLoop reads until EOF or error and returns the disconnect reason.
func (c *ServerConn) readLoop(size int) string {
	buf := make([]byte, size)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.received.Add(uint64(n))
			c.server.received.Add(uint64(n))
			c.server.logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: c.connID,
				Direction:    log.DirectionIn,
				Layer:        log.LayerTransport,
				Category:     log.CategoryData,
				Endpoint:     addrString(c.remoteAddr),
				Frame:        log.NewFrameEvent(buf[:n]),
			})
			if c.server.config.OnData != nil {
				c.server.config.OnData(c, buf[:n])
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return "peer closed"
			case errors.Is(err, net.ErrClosed) || !c.server.running.Load():
				return "server stopped"
			default:
				c.server.reportError(c, "read", err)
				return err.Error()
			}
		}
	}
}
