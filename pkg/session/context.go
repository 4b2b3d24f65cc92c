package session

import (
	"context"
	"time"

	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/transport"
)

// DisconnectReasonDecryptFailed is sent when an inbound frame fails to
// decrypt.
const DisconnectReasonDecryptFailed = "Decryption failed."

// Context is the state of an admitted connection.
type Context struct {
	conn        transport.Connection
	identity    identity.Identity
	loginType   identity.LoginType
	cipher      *Cipher
	established time.Time
}

// ContextConfig is used to create a Context after a successful handshake.
type ContextConfig struct {
	Connection transport.Connection
	Identity   identity.Identity
	LoginType  identity.LoginType
	Cipher     *Cipher // nil when encryption was not negotiated
}

// NewContext creates a session context.
func NewContext(config ContextConfig) (*Context, error) {
	if config.Connection == nil || config.Identity.IsZero() || !config.LoginType.IsValid() {
		return nil, ErrInvalidContext
	}

	return &Context{
		conn:        config.Connection,
		identity:    config.Identity,
		loginType:   config.LoginType,
		cipher:      config.Cipher,
		established: time.Now(),
	}, nil
}

// Connection returns the underlying transport connection.
func (c *Context) Connection() transport.Connection {
	return c.conn
}

// ConnID returns the connection ID.
func (c *Context) ConnID() uint64 {
	return c.conn.ID()
}

// Identity returns the resolved identity.
func (c *Context) Identity() identity.Identity {
	return c.identity
}

// UserID returns the identity's user ID.
func (c *Context) UserID() identity.UserID {
	return c.identity.UserID()
}

// LoginType returns how the identity was established.
func (c *Context) LoginType() identity.LoginType {
	return c.loginType
}

// Cipher returns the transport cipher, or nil for plaintext sessions.
func (c *Context) Cipher() *Cipher {
	return c.cipher
}

// Encrypted reports whether the session uses a transport cipher.
func (c *Context) Encrypted() bool {
	return c.cipher != nil
}

// Established returns when the context was created.
func (c *Context) Established() time.Time {
	return c.established
}

// Send transmits an application message, encrypting it when the session has
// a cipher.
func (c *Context) Send(ctx context.Context, data []byte) error {
	if c.cipher != nil {
		frame, err := c.cipher.Encrypt(data)
		if err != nil {
			return err
		}
		data = frame
	}
	return c.conn.Send(ctx, data)
}

// Receive returns the next application message. A frame that fails to
// decrypt disconnects the connection and returns ErrDecryptionFailed.
func (c *Context) Receive(ctx context.Context) ([]byte, error) {
	data, err := c.conn.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if c.cipher == nil {
		return data, nil
	}

	plaintext, err := c.cipher.Decrypt(data)
	if err != nil {
		c.conn.Disconnect(DisconnectReasonDecryptFailed)
		return nil, err
	}
	return plaintext, nil
}
