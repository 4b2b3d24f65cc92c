package session

import (
	"sync"

	"github.com/backkem/netauth/pkg/identity"
)

// DefaultMaxSessions is the default maximum number of concurrent sessions.
const DefaultMaxSessions = 1024

// Table indexes live session contexts by connection and by user.
// A user has at most one live session.
type Table struct {
	byConn      map[uint64]*Context
	byUser      map[identity.UserID]*Context
	maxSessions int

	mu sync.RWMutex
}

// NewTable creates a new session table.
// maxSessions limits the number of concurrent sessions (0 uses DefaultMaxSessions).
func NewTable(maxSessions int) *Table {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	return &Table{
		byConn:      make(map[uint64]*Context),
		byUser:      make(map[identity.UserID]*Context),
		maxSessions: maxSessions,
	}
}

// Add adds a session context to the table. It fails if the table is full,
// the connection already has a session or the user is already connected.
func (t *Table) Add(ctx *Context) error {
	if ctx == nil {
		return ErrInvalidContext
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.byConn) >= t.maxSessions {
		return ErrSessionTableFull
	}
	if _, exists := t.byConn[ctx.ConnID()]; exists {
		return ErrDuplicateSession
	}
	if _, exists := t.byUser[ctx.UserID()]; exists {
		return ErrUserConnected
	}

	t.byConn[ctx.ConnID()] = ctx
	t.byUser[ctx.UserID()] = ctx
	return nil
}

// Remove removes ctx if it is still the registered context for its
// connection. Returns true if it was removed.
func (t *Table) Remove(ctx *Context) bool {
	if ctx == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byConn[ctx.ConnID()] != ctx {
		return false
	}
	delete(t.byConn, ctx.ConnID())
	if t.byUser[ctx.UserID()] == ctx {
		delete(t.byUser, ctx.UserID())
	}
	return true
}

// FindByConn looks up a session by connection ID.
// Returns nil if not found.
func (t *Table) FindByConn(connID uint64) *Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byConn[connID]
}

// FindByUser looks up the live session of a user.
// Returns nil if not found.
func (t *Table) FindByUser(userID identity.UserID) *Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byUser[userID]
}

// Count returns the number of live sessions.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byConn)
}

// IsFull returns true if no more sessions can be added.
func (t *Table) IsFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byConn) >= t.maxSessions
}

// Snapshot returns the live sessions in no particular order.
func (t *Table) Snapshot() []*Context {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Context, 0, len(t.byConn))
	for _, ctx := range t.byConn {
		out = append(out, ctx)
	}
	return out
}

// Clear removes all sessions from the table.
// Ciphers are not zeroized; the Manager does that.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byConn = make(map[uint64]*Context)
	t.byUser = make(map[identity.UserID]*Context)
}
