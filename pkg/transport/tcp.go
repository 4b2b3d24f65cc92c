package transport

import (
	"context"
	"net"
	"sync"

	"github.com/pion/logging"
)

// ReasonShutdown is sent to every peer when the transport stops.
const ReasonShutdown = "Server shutting down"

// ConnHandler is called in its own goroutine for each accepted connection.
type ConnHandler func(conn *Conn)

// TCP accepts framed connections on a net.Listener.
type TCP struct {
	listener      net.Listener
	handler       ConnHandler
	receiveBuffer int
	loggerFactory logging.LoggerFactory
	closeCh       chan struct{}
	wg            sync.WaitGroup
	log           logging.LeveledLogger

	// Connection tracking
	connsMu sync.Mutex
	conns   map[uint64]*Conn

	mu      sync.RWMutex
	started bool
	closed  bool
}

// TCPConfig configures the TCP transport.
type TCPConfig struct {
	// Listener is an optional pre-existing Listener to use.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":1212").
	// Ignored if Listener is provided.
	ListenAddr string

	// Handler is called for each accepted connection.
	// Required.
	Handler ConnHandler

	// ReceiveBuffer is passed to each accepted Conn.
	ReceiveBuffer int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewTCP creates a new TCP transport with the given configuration.
func NewTCP(config TCPConfig) (*TCP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	t := &TCP{
		listener:      config.Listener,
		handler:       config.Handler,
		receiveBuffer: config.ReceiveBuffer,
		loggerFactory: config.LoggerFactory,
		closeCh:       make(chan struct{}),
		conns:         make(map[uint64]*Conn),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
	}

	if t.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		t.listener = listener
	}

	return t, nil
}

// Start begins accepting connections.
func (t *TCP) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Infof("starting TCP transport on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes the listener and all connections, then waits for handlers
// to return.
func (t *TCP) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TCP transport")
	}

	close(t.closeCh)
	t.listener.Close()

	t.connsMu.Lock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.connsMu.Unlock()

	for _, c := range conns {
		c.Disconnect(ReasonShutdown)
	}

	t.wg.Wait()
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (t *TCP) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// ConnCount returns the number of open connections.
func (t *TCP) ConnCount() int {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	return len(t.conns)
}

// acceptLoop accepts incoming connections.
func (t *TCP) acceptLoop() {
	defer t.wg.Done()

	for {
		nc, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				if t.log != nil {
					t.log.Debugf("accept error: %v", err)
				}
				continue
			}
		}

		c := NewConn(nc, ConnConfig{
			ReceiveBuffer: t.receiveBuffer,
			LoggerFactory: t.loggerFactory,
		})

		// Stop closes closeCh before taking its snapshot of conns, so a
		// connection accepted after that point is dropped here.
		t.connsMu.Lock()
		select {
		case <-t.closeCh:
			t.connsMu.Unlock()
			c.Disconnect(ReasonShutdown)
			<-c.Done()
			continue
		default:
		}
		t.conns[c.ID()] = c
		t.connsMu.Unlock()

		t.wg.Add(1)
		go t.handleConn(c)
	}
}

// handleConn runs the handler and forgets the connection once it is torn
// down.
func (t *TCP) handleConn(c *Conn) {
	defer t.wg.Done()

	if t.log != nil {
		t.log.Debugf("accepted conn %d from %s", c.ID(), c.RemoteAddr())
	}

	t.handler(c)
	<-c.Done()

	t.connsMu.Lock()
	delete(t.conns, c.ID())
	t.connsMu.Unlock()
}

// DialTCP connects to a TCP transport at addr.
func DialTCP(ctx context.Context, addr string, config ConnConfig) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, config), nil
}
