package session

import (
	"sync"
	"time"

	"github.com/backkem/netauth/pkg/identity"
	"github.com/pion/logging"
)

// Manager is the process-wide registry of admitted sessions.
//
// The Manager maintains:
//   - A table of live sessions keyed by connection and by user
//   - The pending-disconnect set of users being kicked for a new login
//   - Display names claimed by live sessions or reserved by handshakes
//   - Teardown waiters keyed by connection ID
//
// Each registered session is torn down automatically when its connection's
// Done channel closes. The lock is never held while calling out.
type Manager struct {
	table *Table
	log   logging.LeveledLogger

	onAdded   func(*Context)
	onRemoved func(*Context)

	mu        sync.Mutex
	pending   map[identity.UserID]struct{}
	claimed   map[string]uint64 // display name -> conn ID
	reserved  map[string]uint64 // display name -> reservation token
	nextToken uint64
	waiters   map[uint64]chan struct{}
	closed    bool
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessions limits the number of concurrent sessions.
	// Default: DefaultMaxSessions (1024)
	MaxSessions int

	// OnSessionAdded is called after a session is registered.
	OnSessionAdded func(*Context)

	// OnSessionRemoved is called after a session is torn down.
	OnSessionRemoved func(*Context)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewManager creates a new session manager.
func NewManager(config ManagerConfig) *Manager {
	m := &Manager{
		table:     NewTable(config.MaxSessions),
		onAdded:   config.OnSessionAdded,
		onRemoved: config.OnSessionRemoved,
		pending:   make(map[identity.UserID]struct{}),
		claimed:   make(map[string]uint64),
		reserved:  make(map[string]uint64),
		waiters:   make(map[uint64]chan struct{}),
		closeCh:   make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("session")
	}
	return m
}

// Register admits a session. It fails with ErrUserConnected if the user
// already has a live session, so two handshakes racing for one identity
// can never both be admitted. The context's display name is claimed and any
// reservation for it is consumed.
func (m *Manager) Register(ctx *Context) error {
	if ctx == nil {
		return ErrInvalidContext
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if err := m.table.Add(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	name := ctx.Identity().DisplayName()
	delete(m.reserved, name)
	m.claimed[name] = ctx.ConnID()
	m.wg.Add(1)
	m.mu.Unlock()

	go m.watch(ctx)

	if m.log != nil {
		m.log.Debugf("registered session conn=%d user=%s name=%s", ctx.ConnID(), ctx.UserID(), name)
	}
	if m.onAdded != nil {
		m.onAdded(ctx)
	}
	return nil
}

// Unregister tears down the session of a connection, if any.
func (m *Manager) Unregister(connID uint64) {
	if ctx := m.table.FindByConn(connID); ctx != nil {
		m.teardown(ctx)
	}
}

func (m *Manager) watch(ctx *Context) {
	defer m.wg.Done()

	select {
	case <-ctx.Connection().Done():
		m.teardown(ctx)
	case <-m.closeCh:
	}
}

// teardown removes ctx and wakes everyone waiting on its connection.
func (m *Manager) teardown(ctx *Context) {
	m.mu.Lock()
	if !m.table.Remove(ctx) {
		m.mu.Unlock()
		return
	}
	name := ctx.Identity().DisplayName()
	if m.claimed[name] == ctx.ConnID() {
		delete(m.claimed, name)
	}
	if ch, ok := m.waiters[ctx.ConnID()]; ok {
		close(ch)
		delete(m.waiters, ctx.ConnID())
	}
	m.mu.Unlock()

	if ctx.cipher != nil {
		ctx.cipher.Zeroize()
	}

	if m.log != nil {
		m.log.Debugf("removed session conn=%d user=%s after %s", ctx.ConnID(), ctx.UserID(),
			time.Since(ctx.Established()).Round(time.Millisecond))
	}
	if m.onRemoved != nil {
		m.onRemoved(ctx)
	}
}

// AwaitDisconnect returns a channel that is closed once the session of
// connID has been torn down. If there is no such session, the returned
// channel is already closed.
func (m *Manager) AwaitDisconnect(connID uint64) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.table.FindByConn(connID) == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}

	ch, ok := m.waiters[connID]
	if !ok {
		ch = make(chan struct{})
		m.waiters[connID] = ch
	}
	return ch
}

// BeginPendingDisconnect marks userID as being kicked to make room for a new
// login and returns the live session to kick. If the user has no live
// session it returns nil and marks nothing. If the user is already pending
// it returns ErrDisconnectPending. Every non-nil result must be paired with
// EndPendingDisconnect.
func (m *Manager) BeginPendingDisconnect(userID identity.UserID) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[userID]; ok {
		return nil, ErrDisconnectPending
	}
	existing := m.table.FindByUser(userID)
	if existing == nil {
		return nil, nil
	}
	m.pending[userID] = struct{}{}
	return existing, nil
}

// EndPendingDisconnect removes userID from the pending-disconnect set.
func (m *Manager) EndPendingDisconnect(userID identity.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, userID)
}

// IsPendingDisconnect reports whether userID is being kicked.
func (m *Manager) IsPendingDisconnect(userID identity.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[userID]
	return ok
}

// ReserveName implements identity.NameRegistry. It returns the first of
// base, base_2, base_3, ... not claimed by a live session or reserved by
// another handshake.
func (m *Manager) ReserveName(base string) (string, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := base
	for i := 2; m.nameTaken(name); i++ {
		name = identity.SuffixedName(base, i)
	}

	m.nextToken++
	token := m.nextToken
	m.reserved[name] = token

	var once sync.Once
	return name, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.reserved[name] == token {
				delete(m.reserved, name)
			}
		})
	}
}

func (m *Manager) nameTaken(name string) bool {
	if _, ok := m.claimed[name]; ok {
		return true
	}
	_, ok := m.reserved[name]
	return ok
}

// NameInUse reports whether a display name is claimed or reserved.
func (m *Manager) NameInUse(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nameTaken(name)
}

// Find returns the session of a connection, or nil.
func (m *Manager) Find(connID uint64) *Context {
	return m.table.FindByConn(connID)
}

// FindByUser returns the live session of a user, or nil.
func (m *Manager) FindByUser(userID identity.UserID) *Context {
	return m.table.FindByUser(userID)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.table.Count()
}

// IsFull returns true if no more sessions can be added.
func (m *Manager) IsFull() bool {
	return m.table.IsFull()
}

// Close stops tracking all sessions, zeroizes their ciphers and releases
// every teardown waiter. OnSessionRemoved is called for each session that
// was still live. Connections are not disconnected.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.closed = true
	close(m.closeCh)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	sessions := m.table.Snapshot()
	m.table.Clear()
	for id, ch := range m.waiters {
		close(ch)
		delete(m.waiters, id)
	}
	m.claimed = make(map[string]uint64)
	m.mu.Unlock()

	for _, ctx := range sessions {
		if ctx.cipher != nil {
			ctx.cipher.Zeroize()
		}
		if m.onRemoved != nil {
			m.onRemoved(ctx)
		}
	}
	if m.log != nil && len(sessions) > 0 {
		m.log.Debugf("closed with %d live sessions", len(sessions))
	}
	return nil
}
