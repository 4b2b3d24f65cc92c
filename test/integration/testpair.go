// Package integration provides end-to-end tests of the login handshake
// over real loopback TCP.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/backkem/netauth/pkg/credential"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/handshake"
	"github.com/backkem/netauth/pkg/node"
	"github.com/backkem/netauth/pkg/session"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/pion/logging"
)

// DefaultTimeout bounds every login and round trip in these tests.
const DefaultTimeout = 10 * time.Second

// TestServer is a started node listening on loopback.
type TestServer struct {
	*node.Node
	t *testing.T
}

// NewTestServer starts a node on an ephemeral loopback port. It is stopped
// when the test ends.
func NewTestServer(t *testing.T, config node.Config) *TestServer {
	t.Helper()

	config.ListenAddr = "127.0.0.1:0"
	config.Listener = nil
	if config.OnSession == nil {
		config.OnSession = Echo
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	n, err := node.NewNode(config)
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	if err := n.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		if err := n.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return &TestServer{Node: n, t: t}
}

// Dial opens a connection to the server. It is closed when the test ends.
func (s *TestServer) Dial() *transport.Conn {
	s.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	conn, err := transport.DialTCP(ctx, s.Addr().String(), transport.ConnConfig{})
	if err != nil {
		s.t.Fatalf("DialTCP failed: %v", err)
	}
	s.t.Cleanup(func() { conn.Close() })
	return conn
}

// Login dials and runs a client handshake.
func (s *TestServer) Login(config handshake.ClientConfig) (*session.Context, error) {
	s.t.Helper()

	conn := s.Dial()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return handshake.NewClient(config).Login(ctx, conn)
}

// TestUser is a user signing key able to mint login tokens.
type TestUser struct {
	Name   string
	Key    *crypto.P256KeyPair
	Issuer *credential.Issuer
}

// NewTestUser generates a signing key for name.
func NewTestUser(t *testing.T, name string) *TestUser {
	t.Helper()

	key, err := crypto.P256GenerateKeyPair()
	if err != nil {
		t.Fatalf("P256GenerateKeyPair failed: %v", err)
	}
	issuer, err := credential.NewIssuer(credential.IssuerConfig{Key: key})
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	return &TestUser{Name: name, Key: key, Issuer: issuer}
}

// ClientConfig returns an authenticating, encrypting client config.
func (u *TestUser) ClientConfig() handshake.ClientConfig {
	return handshake.ClientConfig{
		UserName:    u.Name,
		Credentials: handshake.IssuerCredential(u.Issuer, u.Name),
		Encrypt:     true,
	}
}

// Echo sends every message of a session back to it.
func Echo(sess *session.Context) {
	ctx := context.Background()
	for {
		data, err := sess.Receive(ctx)
		if err != nil {
			return
		}
		if err := sess.Send(ctx, data); err != nil {
			return
		}
	}
}

// RoundTrip sends msg and returns the echoed reply.
func RoundTrip(t *testing.T, sess *session.Context, msg string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	if err := sess.Send(ctx, []byte(msg)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	reply, err := sess.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	return string(reply)
}
