// This file (login_e2e_test.go) runs complete client and server handshakes
// over loopback TCP.
//
// For tests driving the netauth binary, see cli_test.go (build tag: cli).
package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/backkem/netauth/pkg/admission"
	"github.com/backkem/netauth/pkg/handshake"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/node"
	"github.com/backkem/netauth/pkg/transport"
)

// TestE2E_GuestLogin verifies the guest flow with optional authentication.
func TestE2E_GuestLogin(t *testing.T) {
	srv := NewTestServer(t, node.Config{})

	sess, err := srv.Login(handshake.ClientConfig{UserName: "Alice"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := sess.Identity().DisplayName(); got != "guest@Alice" {
		t.Errorf("DisplayName = %q, want %q", got, "guest@Alice")
	}
	if sess.LoginType() != identity.LoginTypeGuest {
		t.Errorf("LoginType = %s, want %s", sess.LoginType(), identity.LoginTypeGuest)
	}
	if sess.Encrypted() {
		t.Error("guest session should not be encrypted")
	}
	if got := RoundTrip(t, sess, "hello"); got != "hello" {
		t.Errorf("echo = %q, want %q", got, "hello")
	}
}

// TestE2E_AuthenticatedLogin verifies the authenticated, encrypted flow and
// that both sides agree on the cipher.
func TestE2E_AuthenticatedLogin(t *testing.T) {
	srv := NewTestServer(t, node.Config{Auth: handshake.AuthRequired, AutoRegister: true})
	user := NewTestUser(t, "Bob")

	sess, err := srv.Login(user.ClientConfig())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if !sess.Encrypted() {
		t.Fatal("session should be encrypted")
	}
	if sess.LoginType() != identity.LoginTypeLoggedIn {
		t.Errorf("LoginType = %s, want %s", sess.LoginType(), identity.LoginTypeLoggedIn)
	}
	if got := sess.Identity().DisplayName(); got != "Bob" {
		t.Errorf("DisplayName = %q, want %q", got, "Bob")
	}

	for _, msg := range []string{"one", "two", "three"} {
		if got := RoundTrip(t, sess, msg); got != msg {
			t.Errorf("echo = %q, want %q", got, msg)
		}
	}
	// The client starts at 1 and advances by 2 per message.
	if got := sess.Cipher().Nonce(); got != 7 {
		t.Errorf("client nonce = %d, want 7", got)
	}

	server := srv.Sessions().FindByUser(sess.UserID())
	if server == nil {
		t.Fatal("server has no session for the user")
	}
	// LoginSuccess plus three echoes.
	if got := server.Cipher().Nonce(); got != 8 {
		t.Errorf("server nonce = %d, want 8", got)
	}
}

// TestE2E_AllowLocal verifies that loopback guests get through mandatory
// authentication with the localhost@ prefix.
func TestE2E_AllowLocal(t *testing.T) {
	srv := NewTestServer(t, node.Config{Auth: handshake.AuthRequired, AllowLocal: true})

	sess, err := srv.Login(handshake.ClientConfig{UserName: "Carol"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got := sess.Identity().DisplayName(); got != "localhost@Carol" {
		t.Errorf("DisplayName = %q, want %q", got, "localhost@Carol")
	}
}

// TestE2E_GuestNameCollision verifies suffixing with authentication disabled.
func TestE2E_GuestNameCollision(t *testing.T) {
	srv := NewTestServer(t, node.Config{Auth: handshake.AuthDisabled})

	want := []string{"Alice", "Alice_2", "Alice_3"}
	for _, name := range want {
		sess, err := srv.Login(handshake.ClientConfig{UserName: "Alice"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if got := sess.Identity().DisplayName(); got != name {
			t.Errorf("DisplayName = %q, want %q", got, name)
		}
	}
}

// TestE2E_Takeover verifies that a second login of the same account kicks
// the first session.
func TestE2E_Takeover(t *testing.T) {
	srv := NewTestServer(t, node.Config{AutoRegister: true})
	user := NewTestUser(t, "Dave")

	first, err := srv.Login(user.ClientConfig())
	if err != nil {
		t.Fatalf("first Login failed: %v", err)
	}
	second, err := srv.Login(user.ClientConfig())
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if first.UserID() != second.UserID() {
		t.Fatalf("user IDs differ: %s vs %s", first.UserID(), second.UserID())
	}

	select {
	case <-first.Connection().Done():
	case <-time.After(DefaultTimeout):
		t.Fatal("first session was not disconnected")
	}
	if got := first.Connection().(*transport.Conn).DisconnectReason(); got != admission.ReasonTakeover {
		t.Errorf("disconnect reason = %q, want %q", got, admission.ReasonTakeover)
	}
	if got := RoundTrip(t, second, "still here"); got != "still here" {
		t.Errorf("echo = %q", got)
	}
	if n := srv.Sessions().Count(); n != 1 {
		t.Errorf("session count = %d, want 1", n)
	}
}

// TestE2E_ConcurrentLogins verifies that concurrent logins of one account
// leave exactly one live session and every loser is told why.
func TestE2E_ConcurrentLogins(t *testing.T) {
	srv := NewTestServer(t, node.Config{AutoRegister: true, DisableRateLimit: true})
	user := NewTestUser(t, "Eve")

	// Register the account first so all logins resolve the same user.
	if _, err := srv.Login(user.ClientConfig()); err != nil {
		t.Fatalf("initial Login failed: %v", err)
	}

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = srv.Login(user.ClientConfig())
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		var rej *handshake.RejectedError
		switch {
		case err == nil:
			admitted++
		case errors.As(err, &rej):
			if rej.Message.Reason != admission.ReasonMultipleConnections && rej.Message.Reason != admission.ReasonTakeover {
				t.Errorf("unexpected rejection: %q", rej.Message.Reason)
			}
		case errors.Is(err, transport.ErrClosed):
			// Admitted, then kicked before LoginSuccess was read.
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if admitted == 0 {
		t.Error("no concurrent login was admitted")
	}

	deadline := time.Now().Add(DefaultTimeout)
	for srv.Sessions().Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("session count = %d, want 1", srv.Sessions().Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestE2E_CredentialForOtherServer verifies that a token bound to another
// server is refused with the credential reason.
func TestE2E_CredentialForOtherServer(t *testing.T) {
	a := NewTestServer(t, node.Config{AutoRegister: true})
	b := NewTestServer(t, node.Config{AutoRegister: true})
	user := NewTestUser(t, "Frank")

	cfg := user.ClientConfig()
	cfg.Credentials = handshake.CredentialFunc(func(ctx context.Context, _ []byte) (*handshake.Credential, error) {
		// Always bind to server a.
		return handshake.IssuerCredential(user.Issuer, user.Name).Credential(ctx, a.PublicKey())
	})

	_, err := b.Login(cfg)
	var rej *handshake.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("Login error = %v, want rejection", err)
	}
	if rej.Message.Reason == "" {
		t.Error("rejection has no reason")
	}
}
