package handshake

import (
	"context"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backkem/netauth/pkg/admission"
	"github.com/backkem/netauth/pkg/credential"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/session"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/google/uuid"
	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harnessOptions struct {
	auth        AuthMode
	allowLocal  bool
	relax       bool
	timeout     time.Duration
	association identity.Association
	guestIDs    identity.GuestIDAssigner
	connecting  admission.ConnectingHook
	approver    admission.Approver
	maxSessions int
}

type harness struct {
	server      *Server
	keys        *crypto.SealKeyPair
	sessions    *session.Manager
	association *identity.MemoryAssociation
	userKey     *crypto.P256KeyPair
	issuer      *credential.Issuer
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	keys, err := crypto.GenerateSealKeyPair()
	require.NoError(t, err)

	validator, err := credential.NewValidator(credential.ValidatorConfig{
		ServerPublicKey: keys.PublicKey(),
		RelaxAudience:   opts.relax,
	})
	require.NoError(t, err)

	sessions := session.NewManager(session.ManagerConfig{MaxSessions: opts.maxSessions})
	t.Cleanup(func() { sessions.Close() })

	mem := identity.NewMemoryAssociation(true)
	assoc := opts.association
	if assoc == nil {
		assoc = mem
	}
	resolver, err := identity.NewResolver(identity.ResolverConfig{
		Association: assoc,
		GuestIDs:    opts.guestIDs,
		Names:       sessions,
	})
	require.NoError(t, err)

	controller, err := admission.NewController(admission.ControllerConfig{
		Sessions:   sessions,
		Connecting: opts.connecting,
	})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Keys:             keys,
		Validator:        validator,
		Resolver:         resolver,
		Admission:        controller,
		Approver:         opts.approver,
		Auth:             opts.auth,
		AllowLocal:       opts.allowLocal,
		HandshakeTimeout: opts.timeout,
	})
	require.NoError(t, err)

	userKey, err := crypto.P256GenerateKeyPair()
	require.NoError(t, err)
	issuer, err := credential.NewIssuer(credential.IssuerConfig{Key: userKey})
	require.NoError(t, err)

	return &harness{
		server:      srv,
		keys:        keys,
		sessions:    sessions,
		association: mem,
		userKey:     userKey,
		issuer:      issuer,
	}
}

func (h *harness) userPublicKey(t *testing.T) []byte {
	t.Helper()
	der, err := crypto.CanonicalPublicKey(h.userKey.Public())
	require.NoError(t, err)
	return der
}

type loginResult struct {
	client    *session.Context
	server    *session.Context
	clientErr error
	serverErr error
	clientTx  *transport.Conn
	serverTx  *transport.Conn
}

// login runs one handshake over a fresh pipe.
func (h *harness) login(t *testing.T, cfg ClientConfig, clientAddr net.Addr) *loginResult {
	t.Helper()

	clientTx, serverTx := transport.NewPipe(transport.PipeConfig{ClientAddr: clientAddr})
	t.Cleanup(func() {
		clientTx.Close()
		serverTx.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := &loginResult{clientTx: clientTx, serverTx: serverTx}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res.server, res.serverErr = h.server.HandleConnection(ctx, serverTx)
	}()
	res.client, res.clientErr = NewClient(cfg).Login(ctx, clientTx)
	wg.Wait()
	return res
}

func (h *harness) authConfig(userName string) ClientConfig {
	return ClientConfig{
		UserName:    userName,
		HardwareID:  []byte{1, 2, 3},
		Credentials: IssuerCredential(h.issuer, userName),
		Encrypt:     true,
	}
}

func requireRejected(t *testing.T, res *loginResult, kind Kind) DisconnectMessage {
	t.Helper()
	require.Error(t, res.serverErr)
	assert.Equal(t, kind, KindOf(res.serverErr), "server err = %v", res.serverErr)

	var rej *RejectedError
	require.ErrorAs(t, res.clientErr, &rej)
	return rej.Message
}

func TestLogin_Guest(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	res := h.login(t, ClientConfig{UserName: "Alice", HardwareID: []byte{9}}, nil)
	require.NoError(t, res.serverErr)
	require.NoError(t, res.clientErr)

	assert.Equal(t, "guest@Alice", res.client.Identity().DisplayName())
	assert.Equal(t, identity.LoginTypeGuest, res.client.LoginType())
	assert.False(t, res.client.Encrypted())
	assert.False(t, res.server.Encrypted())
	assert.Equal(t, res.server.UserID(), res.client.UserID())
	assert.Equal(t, []byte{9}, res.server.Identity().HardwareID())
	assert.Equal(t, transport.StatusConnected, res.serverTx.Status())
	assert.Equal(t, res.server, h.sessions.FindByUser(res.server.UserID()))

	// Plaintext application traffic after the handshake.
	require.NoError(t, res.client.Send(context.Background(), []byte("ping")))
	got, err := res.server.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)
}

func TestLogin_Authenticated(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	res := h.login(t, h.authConfig("Alice"), nil)
	require.NoError(t, res.serverErr)
	require.NoError(t, res.clientErr)

	assert.Equal(t, identity.LoginTypeLoggedIn, res.client.LoginType())
	assert.Equal(t, "Alice", res.client.Identity().DisplayName())
	assert.Equal(t, h.userPublicKey(t), res.server.Identity().PublicKey())
	assert.Equal(t, []byte{1, 2, 3}, res.server.Identity().HardwareID())

	require.True(t, res.client.Encrypted())
	require.True(t, res.server.Encrypted())
	assert.Equal(t, session.RoleServer, res.server.Cipher().Role())
	assert.Equal(t, session.RoleClient, res.client.Cipher().Role())
	// LoginSuccess went out under the server's first nonce.
	assert.Equal(t, uint64(2), res.server.Cipher().Nonce())

	ctx := context.Background()
	require.NoError(t, res.server.Send(ctx, []byte("welcome")))
	got, err := res.client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("welcome"), got)

	require.NoError(t, res.client.Send(ctx, []byte("hello")))
	got, err = res.server.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, uint64(3), res.client.Cipher().Nonce())
}

func TestLogin_AuthenticatedWithoutEncryption(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	cfg := h.authConfig("Alice")
	cfg.Encrypt = false
	cfg.ServerPublicKey = h.keys.PublicKey()

	res := h.login(t, cfg, nil)
	require.NoError(t, res.serverErr)
	require.NoError(t, res.clientErr)
	assert.Equal(t, identity.LoginTypeLoggedIn, res.client.LoginType())
	assert.False(t, res.server.Encrypted())
}

func TestLogin_StartingNonce(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	cfg := h.authConfig("Alice")
	cfg.StartingNonce = session.NextStartingNonce(40, session.RoleServer)
	res := h.login(t, cfg, nil)
	require.NoError(t, res.serverErr)
	require.NoError(t, res.clientErr)
	assert.Equal(t, cfg.StartingNonce+2, res.server.Cipher().Nonce())
	assert.Equal(t, cfg.StartingNonce+1, res.client.Cipher().Nonce())

	for _, nonce := range []uint64{7, MaxStartingNonce + 2, math.MaxUint64 - 1} {
		cfg = h.authConfig("Bob")
		cfg.StartingNonce = nonce
		res = h.login(t, cfg, nil)
		msg := requireRejected(t, res, KindProtocol)
		assert.Equal(t, ReasonInvalidNonce, msg.Reason, "nonce %d", nonce)
	}

	cfg = h.authConfig("Carol")
	cfg.StartingNonce = MaxStartingNonce
	res = h.login(t, cfg, nil)
	require.NoError(t, res.serverErr)
	require.NoError(t, res.clientErr)
	assert.Equal(t, MaxStartingNonce+2, res.server.Cipher().Nonce())
}

func TestLogin_AuthDisabledIgnoresCredentials(t *testing.T) {
	h := newHarness(t, harnessOptions{auth: AuthDisabled})

	res := h.login(t, h.authConfig("Alice"), nil)
	require.NoError(t, res.clientErr)
	assert.Equal(t, "Alice", res.client.Identity().DisplayName())
	assert.Equal(t, identity.LoginTypeGuest, res.client.LoginType())
	assert.False(t, res.client.Encrypted())
}

func TestLogin_GuestNameCollision(t *testing.T) {
	h := newHarness(t, harnessOptions{auth: AuthDisabled})

	names := make([]string, 3)
	for i := range names {
		res := h.login(t, ClientConfig{UserName: "Alice"}, nil)
		require.NoError(t, res.clientErr)
		names[i] = res.client.Identity().DisplayName()
	}
	assert.Equal(t, []string{"Alice", "Alice_2", "Alice_3"}, names)
}

func TestLogin_GuestPrefixes(t *testing.T) {
	local := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}

	h := newHarness(t, harnessOptions{allowLocal: true})
	res := h.login(t, ClientConfig{UserName: "Bob"}, local)
	require.NoError(t, res.clientErr)
	assert.Equal(t, "localhost@Bob", res.client.Identity().DisplayName())

	res = h.login(t, ClientConfig{UserName: "Bob"}, nil)
	require.NoError(t, res.clientErr)
	assert.Equal(t, "guest@Bob", res.client.Identity().DisplayName())

	h = newHarness(t, harnessOptions{})
	res = h.login(t, ClientConfig{UserName: "Bob"}, local)
	require.NoError(t, res.clientErr)
	assert.Equal(t, "guest@Bob", res.client.Identity().DisplayName(), "loopback without AllowLocal")
}

func TestLogin_GuestAssignedID(t *testing.T) {
	assigned := uuid.New()
	h := newHarness(t, harnessOptions{
		guestIDs: identity.GuestIDAssignerFunc(func(_ context.Context, name string) (identity.UserID, bool, error) {
			return assigned, name == "guest@Carol", nil
		}),
	})

	res := h.login(t, ClientConfig{UserName: "Carol"}, nil)
	require.NoError(t, res.clientErr)
	assert.Equal(t, assigned, res.client.UserID())
	assert.Equal(t, identity.LoginTypeGuestAssigned, res.client.LoginType())

	res = h.login(t, ClientConfig{UserName: "Dave"}, nil)
	require.NoError(t, res.clientErr)
	assert.Equal(t, identity.LoginTypeGuest, res.client.LoginType())
}

func TestLogin_AuthRequired(t *testing.T) {
	local := &net.TCPAddr{IP: net.IPv6loopback, Port: 50000}

	h := newHarness(t, harnessOptions{auth: AuthRequired, allowLocal: true})
	res := h.login(t, ClientConfig{UserName: "Eve"}, nil)
	msg := requireRejected(t, res, KindPolicy)
	assert.Equal(t, ReasonAuthRequired, msg.Reason)

	res = h.login(t, ClientConfig{UserName: "Eve"}, local)
	require.NoError(t, res.clientErr)
	assert.Equal(t, "localhost@Eve", res.client.Identity().DisplayName())

	res = h.login(t, h.authConfig("Eve"), nil)
	require.NoError(t, res.clientErr)
	assert.Equal(t, identity.LoginTypeLoggedIn, res.client.LoginType())
}

func TestLogin_InvalidUserName(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	res := h.login(t, ClientConfig{UserName: "not ok!"}, nil)
	msg := requireRejected(t, res, KindPolicy)
	assert.Equal(t, "Username is invalid (Username contains an invalid character).", msg.Reason)
	assert.Equal(t, 0, h.sessions.Count())
}

func TestLogin_CredentialRejections(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	otherServer, err := crypto.GenerateSealKeyPair()
	require.NoError(t, err)

	staleIssuer, err := credential.NewIssuer(credential.IssuerConfig{
		Key: h.userKey,
		Now: func() time.Time { return time.Now().Add(-time.Hour) },
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		source CredentialSource
		want   string
	}{
		{
			name:   "expired",
			source: IssuerCredential(staleIssuer, "Alice"),
			want:   credential.ReasonExpired.Message(),
		},
		{
			name: "issued for another server",
			source: CredentialFunc(func(ctx context.Context, _ []byte) (*Credential, error) {
				return IssuerCredential(h.issuer, "Alice").Credential(ctx, otherServer.PublicKey())
			}),
			want: credential.ReasonWrongAudience.Message(),
		},
		{
			name: "auth hash over a different secret",
			source: CredentialFunc(func(ctx context.Context, serverKey []byte) (*Credential, error) {
				c, err := IssuerCredential(h.issuer, "Alice").Credential(ctx, serverKey)
				if err != nil {
					return nil, err
				}
				c.SharedSecret = nil
				return c, nil
			}),
			want: credential.ReasonWrongAuthHash.Message(),
		},
		{
			name: "garbage public key",
			source: StaticCredential(Credential{
				Token:        "x.y.z",
				PublicKeyPEM: "nope",
			}),
			want: credential.ReasonBadPublicKey.Message(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := h.authConfig("Alice")
			cfg.Credentials = tc.source
			res := h.login(t, cfg, nil)
			msg := requireRejected(t, res, KindCredential)
			assert.Equal(t, tc.want, msg.Reason)
		})
	}
	assert.Equal(t, 0, h.sessions.Count())
}

func TestLogin_RelaxedAudience(t *testing.T) {
	h := newHarness(t, harnessOptions{relax: true})
	otherServer, err := crypto.GenerateSealKeyPair()
	require.NoError(t, err)

	cfg := h.authConfig("Alice")
	cfg.Credentials = CredentialFunc(func(ctx context.Context, _ []byte) (*Credential, error) {
		return IssuerCredential(h.issuer, "Alice").Credential(ctx, otherServer.PublicKey())
	})
	res := h.login(t, cfg, nil)
	require.NoError(t, res.clientErr)
	assert.Equal(t, identity.LoginTypeLoggedIn, res.client.LoginType())
}

func TestLogin_StaleServerKey(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	stale, err := crypto.GenerateSealKeyPair()
	require.NoError(t, err)

	cfg := h.authConfig("Alice")
	cfg.ServerPublicKey = stale.PublicKey()
	res := h.login(t, cfg, nil)

	msg := requireRejected(t, res, KindProtocol)
	assert.Equal(t, ReasonWrongServerKey, msg)
	assert.True(t, msg.Redial)
}

func TestLogin_AssociationRefused(t *testing.T) {
	h := newHarness(t, harnessOptions{association: identity.NewMemoryAssociation(false)})

	res := h.login(t, h.authConfig("Alice"), nil)
	msg := requireRejected(t, res, KindPolicy)
	assert.Equal(t, "There was a problem logging you in. No account is registered for this key.", msg.Reason)
}

func TestLogin_ConnectingHookDenies(t *testing.T) {
	h := newHarness(t, harnessOptions{
		connecting: admission.ConnectingFunc(func(_ context.Context, ev admission.ConnectingEvent) (*admission.DenyReason, error) {
			return admission.Deny("server is full").With("slots", "0"), nil
		}),
	})

	res := h.login(t, ClientConfig{UserName: "Alice"}, nil)
	msg := requireRejected(t, res, KindPolicy)
	assert.Equal(t, "Connect denied: server is full", msg.Reason)
	assert.Equal(t, map[string]string{"slots": "0"}, msg.Values)
	assert.False(t, h.sessions.NameInUse("guest@Alice"), "reservation released")
}

func TestLogin_ApproverDenies(t *testing.T) {
	h := newHarness(t, harnessOptions{
		approver: admission.ApproverFunc(func(context.Context, admission.ApprovalRequest) (admission.Approval, error) {
			return admission.Denied(admission.Deny("Banned.")), nil
		}),
	})

	res := h.login(t, ClientConfig{UserName: "Alice"}, nil)
	msg := requireRejected(t, res, KindPolicy)
	assert.Equal(t, "Banned.", msg.Reason)
}

func TestLogin_InternalFaultIsHidden(t *testing.T) {
	h := newHarness(t, harnessOptions{
		association: identity.AssociationFunc(func(context.Context, identity.AssociationRequest) (identity.AssociationResult, error) {
			panic("database on fire")
		}),
	})

	res := h.login(t, h.authConfig("Alice"), nil)
	msg := requireRejected(t, res, KindInternal)
	assert.Equal(t, ReasonInternal, msg.Reason)
	assert.Contains(t, res.serverErr.Error(), "database on fire")
}

func TestLogin_Takeover(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	first := h.login(t, h.authConfig("Alice"), nil)
	require.NoError(t, first.clientErr)

	second := h.login(t, h.authConfig("Alice"), nil)
	require.NoError(t, second.clientErr)
	assert.Equal(t, first.client.UserID(), second.client.UserID())
	assert.Equal(t, second.server, h.sessions.FindByUser(second.client.UserID()))

	_, err := first.clientTx.Receive(context.Background())
	var de *transport.DisconnectError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, admission.ReasonTakeover, de.Reason)
}

func TestLogin_ServerFull(t *testing.T) {
	h := newHarness(t, harnessOptions{maxSessions: 1})

	first := h.login(t, h.authConfig("Alice"), nil)
	require.NoError(t, first.clientErr)

	res := h.login(t, ClientConfig{UserName: "Bob"}, nil)
	msg := requireRejected(t, res, KindPolicy)
	assert.Equal(t, admission.ReasonServerFull, msg.Reason)
	assert.ErrorIs(t, res.serverErr, admission.ErrServerFull)
	assert.Equal(t, 1, h.sessions.Count())

	// Taking over an existing session frees its slot first.
	second := h.login(t, h.authConfig("Alice"), nil)
	require.NoError(t, second.clientErr)
	assert.Equal(t, second.server, h.sessions.FindByUser(second.client.UserID()))
}

// Two handshakes for the same account while its old session is still being
// kicked: one is admitted, the other is told to stop.
func TestLogin_ConcurrentDedup(t *testing.T) {
	defer test.TimeOut(10 * time.Second).Stop()

	h := newHarness(t, harnessOptions{})
	uid := uuid.New()
	h.association.Register(h.userPublicKey(t), uid, "Alice")

	stuck := &lingeringConn{id: 1 << 40, done: make(chan struct{})}
	old, err := session.NewContext(session.ContextConfig{
		Connection: stuck,
		Identity:   identity.New(uid, "Alice", nil, nil),
		LoginType:  identity.LoginTypeLoggedIn,
	})
	require.NoError(t, err)
	require.NoError(t, h.sessions.Register(old))

	firstDone := make(chan *loginResult, 1)
	go func() { firstDone <- h.login(t, h.authConfig("Alice"), nil) }()

	require.Eventually(t, func() bool { return h.sessions.IsPendingDisconnect(uid) }, 5*time.Second, 5*time.Millisecond)

	second := h.login(t, h.authConfig("Alice"), nil)
	msg := requireRejected(t, second, KindPolicy)
	assert.Equal(t, admission.ReasonMultipleConnections, msg.Reason)

	stuck.close()
	var first *loginResult
	select {
	case first = <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("first handshake did not finish")
	}
	require.NoError(t, first.clientErr)
	assert.Equal(t, uid, first.client.UserID())
	assert.Equal(t, 1, h.sessions.Count())
}

func TestHandleConnection_PeerVanishes(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	clientTx, serverTx := transport.NewPipe(transport.PipeConfig{})
	defer serverTx.Close()

	start, err := (&LoginStart{UserName: "Alice", CanAuthenticate: true}).Encode()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := h.server.HandleConnection(context.Background(), serverTx)
		errCh <- err
	}()

	ctx := context.Background()
	require.NoError(t, clientTx.Send(ctx, start))
	_, err = clientTx.Receive(ctx)
	require.NoError(t, err)
	clientTx.Close()

	select {
	case err := <-errCh:
		assert.Equal(t, KindTransport, KindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not notice the peer leaving")
	}
}

func TestHandleConnection_Timeout(t *testing.T) {
	h := newHarness(t, harnessOptions{timeout: 50 * time.Millisecond})
	clientTx, serverTx := transport.NewPipe(transport.PipeConfig{})
	defer clientTx.Close()

	_, err := h.server.HandleConnection(context.Background(), serverTx)
	assert.Equal(t, KindProtocol, KindOf(err))

	_, err = clientTx.Receive(context.Background())
	var de *transport.DisconnectError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonTimeout, de.Reason)
}

func TestHandleConnection_Malformed(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	clientTx, serverTx := transport.NewPipe(transport.PipeConfig{})
	defer clientTx.Close()

	go func() { _ = clientTx.Send(context.Background(), []byte{0xFF}) }()
	_, err := h.server.HandleConnection(context.Background(), serverTx)
	assert.Equal(t, KindProtocol, KindOf(err))
	assert.Equal(t, ReasonMalformedMessage, err.(*Error).Reason)
}

func TestHandleConnection_VerifyTokenMismatch(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	clientTx, serverTx := transport.NewPipe(transport.PipeConfig{})
	defer clientTx.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := h.server.HandleConnection(context.Background(), serverTx)
		errCh <- err
	}()

	ctx := context.Background()
	start, err := (&LoginStart{UserName: "Alice", CanAuthenticate: true, NeedsServerPublicKey: true}).Encode()
	require.NoError(t, err)
	require.NoError(t, clientTx.Send(ctx, start))

	reply, err := clientTx.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, replyEncryptionRequest, reply[0])
	req, err := DecodeEncryptionRequest(reply[1:])
	require.NoError(t, err)
	assert.Equal(t, h.keys.PublicKey(), req.PublicKey)

	plain := make([]byte, SealedPayloadSize)
	copy(plain[SharedSecretSize:], []byte{req.VerifyToken[0] ^ 0xFF, 0, 0, 0})
	sealed, err := crypto.Seal(req.PublicKey, plain)
	require.NoError(t, err)
	resp, err := (&EncryptionResponse{SealedData: sealed}).Encode()
	require.NoError(t, err)
	require.NoError(t, clientTx.Send(ctx, resp))

	err = <-errCh
	assert.Equal(t, KindProtocol, KindOf(err))
	_, err = clientTx.Receive(ctx)
	var de *transport.DisconnectError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonVerifyTokenInvalid, de.Reason)
}

func TestNewServer_MissingDependencies(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

// lingeringConn ignores disconnect requests until close is called.
type lingeringConn struct {
	id     uint64
	status atomic.Int32
	done   chan struct{}
	once   sync.Once
}

func (c *lingeringConn) ID() uint64 { return c.id }
func (c *lingeringConn) RemoteAddr() net.Addr { return transport.DefaultPipeClientAddr }
func (c *lingeringConn) Status() transport.Status { return transport.Status(c.status.Load()) }
func (c *lingeringConn) SetStatus(s transport.Status) { c.status.Store(int32(s)) }
func (c *lingeringConn) Send(context.Context, []byte) error { return nil }
func (c *lingeringConn) Disconnect(string) {}
func (c *lingeringConn) Done() <-chan struct{} { return c.done }
func (c *lingeringConn) close() { c.once.Do(func() { close(c.done) }) }

func (c *lingeringConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-c.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
