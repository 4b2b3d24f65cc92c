package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/google/uuid"
	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSession creates a server-side context on a fresh pipe. The returned
// client conn is closed with the test.
func testSession(t *testing.T, userID identity.UserID, name string, cipher *Cipher) (*Context, *transport.Conn) {
	t.Helper()

	client, server := transport.NewPipe(transport.PipeConfig{})
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	ctx, err := NewContext(ContextConfig{
		Connection: server,
		Identity:   identity.New(userID, name, nil, nil),
		LoginType:  identity.LoginTypeGuest,
		Cipher:     cipher,
	})
	require.NoError(t, err)
	return ctx, client
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestNewContext_Established(t *testing.T) {
	before := time.Now()
	sess, _ := testSession(t, uuid.New(), "Zed", nil)
	assert.False(t, sess.Established().Before(before))
	assert.False(t, sess.Established().After(time.Now()))
}

func TestNewContext_Invalid(t *testing.T) {
	_, err := NewContext(ContextConfig{})
	assert.ErrorIs(t, err, ErrInvalidContext)

	_, server := transport.NewPipe(transport.PipeConfig{})
	defer server.Close()
	_, err = NewContext(ContextConfig{Connection: server})
	assert.ErrorIs(t, err, ErrInvalidContext)
}

func TestManager_Register(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Close()

	uid := uuid.New()
	first, _ := testSession(t, uid, "Alice", nil)
	require.NoError(t, m.Register(first))
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, first, m.Find(first.ConnID()))
	assert.Equal(t, first, m.FindByUser(uid))
	assert.True(t, m.NameInUse("Alice"))

	t.Run("same connection", func(t *testing.T) {
		assert.ErrorIs(t, m.Register(first), ErrDuplicateSession)
	})

	t.Run("same user", func(t *testing.T) {
		second, _ := testSession(t, uid, "Alice", nil)
		assert.ErrorIs(t, m.Register(second), ErrUserConnected)
		assert.Equal(t, 1, m.Count())
	})

	t.Run("nil", func(t *testing.T) {
		assert.ErrorIs(t, m.Register(nil), ErrInvalidContext)
	})
}

func TestManager_TableFull(t *testing.T) {
	m := NewManager(ManagerConfig{MaxSessions: 1})
	defer m.Close()

	a, _ := testSession(t, uuid.New(), "a", nil)
	b, _ := testSession(t, uuid.New(), "b", nil)
	require.NoError(t, m.Register(a))
	assert.True(t, m.IsFull())
	assert.ErrorIs(t, m.Register(b), ErrSessionTableFull)
}

func TestManager_TeardownOnDisconnect(t *testing.T) {
	defer test.CheckRoutines(t)()
	defer test.TimeOut(5 * time.Second).Stop()

	var mu sync.Mutex
	var added, removed []*Context
	m := NewManager(ManagerConfig{
		OnSessionAdded: func(c *Context) {
			mu.Lock()
			added = append(added, c)
			mu.Unlock()
		},
		OnSessionRemoved: func(c *Context) {
			mu.Lock()
			removed = append(removed, c)
			mu.Unlock()
		},
	})
	defer m.Close()

	cipher, _ := newCipherPair(t)
	sess, _ := testSession(t, uuid.New(), "Bob", cipher)
	require.NoError(t, m.Register(sess))

	wait := m.AwaitDisconnect(sess.ConnID())
	again := m.AwaitDisconnect(sess.ConnID())
	assert.Equal(t, wait, again, "waiter is created once per connection")

	sess.Connection().Disconnect("Another connection has been made with your account.")
	waitClosed(t, wait)

	assert.Equal(t, 0, m.Count())
	assert.Nil(t, m.FindByUser(sess.UserID()))
	assert.False(t, m.NameInUse("Bob"))

	_, err := cipher.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrCipherClosed)

	mu.Lock()
	assert.Len(t, added, 1)
	assert.Len(t, removed, 1)
	mu.Unlock()

	m.mu.Lock()
	assert.Empty(t, m.waiters)
	m.mu.Unlock()
}

func TestManager_AwaitDisconnectUnknown(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Close()

	select {
	case <-m.AwaitDisconnect(12345):
	default:
		t.Fatal("waiting on an unknown connection should return immediately")
	}
}

func TestManager_Unregister(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Close()

	sess, _ := testSession(t, uuid.New(), "Carol", nil)
	require.NoError(t, m.Register(sess))
	wait := m.AwaitDisconnect(sess.ConnID())

	m.Unregister(sess.ConnID())
	waitClosed(t, wait)
	assert.Equal(t, 0, m.Count())
	assert.False(t, m.NameInUse("Carol"))

	m.Unregister(sess.ConnID())
}

func TestManager_PendingDisconnect(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Close()

	uid := uuid.New()

	existing, err := m.BeginPendingDisconnect(uid)
	require.NoError(t, err)
	assert.Nil(t, existing, "no live session, nothing to kick")
	assert.False(t, m.IsPendingDisconnect(uid))

	sess, _ := testSession(t, uid, "Dave", nil)
	require.NoError(t, m.Register(sess))

	existing, err = m.BeginPendingDisconnect(uid)
	require.NoError(t, err)
	assert.Equal(t, sess, existing)
	assert.True(t, m.IsPendingDisconnect(uid))

	_, err = m.BeginPendingDisconnect(uid)
	assert.ErrorIs(t, err, ErrDisconnectPending)

	m.EndPendingDisconnect(uid)
	assert.False(t, m.IsPendingDisconnect(uid))
}

func TestManager_ReserveName(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Close()

	alice, _ := testSession(t, uuid.New(), "Alice", nil)
	require.NoError(t, m.Register(alice))

	name, release := m.ReserveName("Alice")
	assert.Equal(t, "Alice_2", name)

	name3, release3 := m.ReserveName("Alice")
	assert.Equal(t, "Alice_3", name3)

	release()
	release()
	name2, release2 := m.ReserveName("Alice")
	assert.Equal(t, "Alice_2", name2)

	// Registering consumes the reservation; a late release is a no-op.
	sess, _ := testSession(t, uuid.New(), name2, nil)
	require.NoError(t, m.Register(sess))
	release2()
	assert.True(t, m.NameInUse("Alice_2"))

	release3()
	assert.False(t, m.NameInUse("Alice_3"))
}

func TestManager_ConcurrentReserveName(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Close()

	const n = 32
	names := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, _ := m.ReserveName("Eve")
			names <- name
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool)
	for name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["Eve"])
	assert.True(t, seen["Eve_32"])
}

func TestManager_ConcurrentRegisterSameUser(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Close()

	uid := uuid.New()
	const n = 16
	sessions := make([]*Context, n)
	for i := range sessions {
		sessions[i], _ = testSession(t, uid, "Frank", nil)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Context) {
			defer wg.Done()
			errs <- m.Register(s)
		}(s)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrUserConnected)
	}
	assert.Equal(t, 1, wins)
}

func TestManager_Close(t *testing.T) {
	var removed []*Context
	m := NewManager(ManagerConfig{
		OnSessionRemoved: func(c *Context) { removed = append(removed, c) },
	})

	cipher, _ := newCipherPair(t)
	sess, _ := testSession(t, uuid.New(), "Grace", cipher)
	require.NoError(t, m.Register(sess))
	wait := m.AwaitDisconnect(sess.ConnID())

	require.NoError(t, m.Close())
	waitClosed(t, wait)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, []*Context{sess}, removed, "live sessions are reported removed on close")
	assert.ErrorIs(t, m.Close(), ErrManagerClosed)

	other, _ := testSession(t, uuid.New(), "Heidi", nil)
	assert.ErrorIs(t, m.Register(other), ErrManagerClosed)

	_, err := cipher.Encrypt(nil)
	assert.ErrorIs(t, err, ErrCipherClosed)
}

func TestContext_SendReceiveEncrypted(t *testing.T) {
	defer test.CheckRoutines(t)()
	defer test.TimeOut(5 * time.Second).Stop()

	serverCipher, clientCipher := newCipherPair(t)
	client, server := transport.NewPipe(transport.PipeConfig{})
	defer client.Close()
	defer server.Close()

	id := identity.New(uuid.New(), "Ivan", nil, nil)
	srv, err := NewContext(ContextConfig{Connection: server, Identity: id, LoginType: identity.LoginTypeGuest, Cipher: serverCipher})
	require.NoError(t, err)
	cli, err := NewContext(ContextConfig{Connection: client, Identity: id, LoginType: identity.LoginTypeGuest, Cipher: clientCipher})
	require.NoError(t, err)
	assert.True(t, srv.Encrypted())

	ctx := context.Background()
	require.NoError(t, srv.Send(ctx, []byte("welcome")))
	got, err := cli.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("welcome"), got)

	// Plaintext garbage on an encrypted session is fatal.
	require.NoError(t, client.Send(ctx, []byte("not a frame at all, definitely")))
	_, err = srv.Receive(ctx)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = client.Receive(ctx)
	var de *transport.DisconnectError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DisconnectReasonDecryptFailed, de.Reason)
}
