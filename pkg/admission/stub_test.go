package admission

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/backkem/netauth/pkg/transport"
)

// stubConn is a Connection that records disconnect requests but stays open
// until close is called.
type stubConn struct {
	id          uint64
	status      atomic.Int32
	disconnects atomic.Int32
	done        chan struct{}
	once        sync.Once
}

func newStubConn(id uint64) *stubConn {
	// IDs far above the pipe counter avoid collisions in the session table.
	return &stubConn{id: id + 1<<40, done: make(chan struct{})}
}

func (s *stubConn) ID() uint64 { return s.id }

func (s *stubConn) RemoteAddr() net.Addr { return transport.DefaultPipeClientAddr }

func (s *stubConn) Status() transport.Status { return transport.Status(s.status.Load()) }

func (s *stubConn) SetStatus(st transport.Status) { s.status.Store(int32(st)) }

func (s *stubConn) Send(context.Context, []byte) error { return nil }

func (s *stubConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-s.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stubConn) Disconnect(string) { s.disconnects.Add(1) }

func (s *stubConn) Done() <-chan struct{} { return s.done }

func (s *stubConn) disconnectCalls() int { return int(s.disconnects.Load()) }

func (s *stubConn) close() { s.once.Do(func() { close(s.done) }) }
