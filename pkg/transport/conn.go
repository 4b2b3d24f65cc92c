package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

// Connection is a reliable, ordered, message-oriented connection to a peer.
// All methods are safe for concurrent use.
type Connection interface {
	// ID uniquely identifies the connection within the process.
	ID() uint64

	// RemoteAddr returns the peer's address.
	RemoteAddr() net.Addr

	// Status returns the current lifecycle state.
	Status() Status

	// SetStatus updates the lifecycle state. Closing states are sticky.
	SetStatus(s Status)

	// Send transmits one message.
	Send(ctx context.Context, data []byte) error

	// Receive blocks until the next message arrives, the connection closes
	// or ctx is done. A peer disconnect with a reason yields *DisconnectError.
	Receive(ctx context.Context) ([]byte, error)

	// Disconnect sends reason to the peer and closes the connection.
	// Only the first call has any effect.
	Disconnect(reason string)

	// Done is closed once the connection is fully torn down.
	Done() <-chan struct{}
}

// DefaultReceiveBuffer is the default number of queued inbound messages.
const DefaultReceiveBuffer = 16

// disconnectWriteTimeout bounds the best-effort disconnect frame write.
const disconnectWriteTimeout = time.Second

var connIDs atomic.Uint64

// ConnConfig configures a Conn.
type ConnConfig struct {
	// RemoteAddr overrides the address reported by the net.Conn.
	RemoteAddr net.Addr

	// ReceiveBuffer is the inbound queue length.
	// Default: DefaultReceiveBuffer
	ReceiveBuffer int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Conn implements Connection over a stream net.Conn using length-prefixed
// frames.
type Conn struct {
	id         uint64
	nc         net.Conn
	remoteAddr net.Addr
	log        logging.LeveledLogger

	status atomic.Int32

	incoming chan []byte
	closeCh  chan struct{}
	done     chan struct{}

	writeMu sync.Mutex

	closeOnce sync.Once
	mu        sync.Mutex
	localErr  string // reason we sent
	peerErr   string // reason the peer sent
	readErr   error
}

// NewConn wraps nc and starts its read loop.
func NewConn(nc net.Conn, config ConnConfig) *Conn {
	if config.ReceiveBuffer <= 0 {
		config.ReceiveBuffer = DefaultReceiveBuffer
	}

	c := &Conn{
		id:         connIDs.Add(1),
		nc:         nc,
		remoteAddr: config.RemoteAddr,
		incoming:   make(chan []byte, config.ReceiveBuffer),
		closeCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	if c.remoteAddr == nil {
		c.remoteAddr = nc.RemoteAddr()
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("transport-conn")
	}

	go c.readLoop()
	return c
}

// ID implements Connection.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr implements Connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// LocalAddr returns the local address of the underlying connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// Status implements Connection.
func (c *Conn) Status() Status {
	return Status(c.status.Load())
}

// SetStatus implements Connection.
func (c *Conn) SetStatus(s Status) {
	for {
		cur := Status(c.status.Load())
		if cur == StatusDisconnected || (cur == StatusDisconnecting && s != StatusDisconnected) {
			return
		}
		if c.status.CompareAndSwap(int32(cur), int32(s)) {
			return
		}
	}
}

// Send implements Connection.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if c.Status().IsClosing() {
		return ErrClosed
	}
	return c.write(ctx, frameData, data)
}

func (c *Conn) write(ctx context.Context, kind frameKind, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(deadline)
		defer c.nc.SetWriteDeadline(time.Time{})
	}

	// Unblock the write if ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := writeFrame(c.nc, kind, payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Receive implements Connection.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
	}

	// Deliver anything queued before the close.
	select {
	case data := <-c.incoming:
		return data, nil
	default:
	}
	return nil, c.closeErr()
}

func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peerErr != "" {
		return &DisconnectError{Reason: c.peerErr}
	}
	return ErrClosed
}

// Disconnect implements Connection.
func (c *Conn) Disconnect(reason string) {
	c.SetStatus(StatusDisconnecting)

	c.mu.Lock()
	first := c.localErr == "" && c.peerErr == "" && c.readErr == nil
	if first {
		c.localErr = reason
	}
	c.mu.Unlock()

	if first {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectWriteTimeout)
		if err := c.write(ctx, frameDisconnect, []byte(reason)); err != nil && c.log != nil {
			c.log.Debugf("conn %d: failed to send disconnect: %v", c.id, err)
		}
		cancel()
	}

	c.close()
}

// DisconnectReason returns the reason sent by either side, if any.
func (c *Conn) DisconnectReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localErr != "" {
		return c.localErr
	}
	return c.peerErr
}

// Done implements Connection.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection without a reason.
func (c *Conn) Close() error {
	c.SetStatus(StatusDisconnecting)
	c.close()
	<-c.done
	return nil
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		_ = c.nc.Close()
	})
}

func (c *Conn) readLoop() {
	defer func() {
		c.close()
		c.SetStatus(StatusDisconnected)
		close(c.done)
	}()

	for {
		kind, payload, err := readFrame(c.nc)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				c.mu.Lock()
				c.readErr = err
				c.mu.Unlock()
				if c.log != nil {
					c.log.Debugf("conn %d: read error: %v", c.id, err)
				}
			}
			return
		}

		switch kind {
		case frameDisconnect:
			c.mu.Lock()
			if c.localErr == "" {
				c.peerErr = string(payload)
			}
			c.mu.Unlock()
			c.SetStatus(StatusDisconnecting)
			return
		case frameData:
			select {
			case c.incoming <- payload:
			case <-c.closeCh:
				return
			}
		}
	}
}
