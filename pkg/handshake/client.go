package handshake

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/session"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/pion/logging"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// UserName is the preferred username.
	UserName string

	// HardwareID is reported to the server. At most 255 bytes.
	HardwareID []byte

	// ServerPublicKey is a cached server sealing key. If nil, the client
	// asks the server to send it.
	ServerPublicKey []byte

	// Credentials makes the client authenticate. Nil logs in as a guest.
	Credentials CredentialSource

	// Encrypt requests a transport cipher when authenticating.
	Encrypt bool

	// StartingNonce is the server's starting counter. It must be even and
	// at most MaxStartingNonce. The client starts at StartingNonce+1.
	// Default: 0
	StartingNonce uint64

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client performs the client side of the handshake.
type Client struct {
	config ClientConfig
	log    logging.LeveledLogger
}

// NewClient creates a Client.
func NewClient(config ClientConfig) *Client {
	c := &Client{config: config}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("handshake-client")
	}
	return c
}

// Login runs the handshake on conn. The returned session carries the
// identity the server admitted us as and, if negotiated, the cipher for
// all further traffic. If the server disconnects us, the error is a
// *RejectedError.
func (c *Client) Login(ctx context.Context, conn transport.Connection) (*session.Context, error) {
	canAuth := c.config.Credentials != nil
	start := &LoginStart{
		UserName:             c.config.UserName,
		HardwareID:           c.config.HardwareID,
		CanAuthenticate:      canAuth,
		NeedsServerPublicKey: canAuth && c.config.ServerPublicKey == nil,
		WantsEncryption:      canAuth && c.config.Encrypt,
	}
	payload, err := start.Encode()
	if err != nil {
		return nil, err
	}
	if err := conn.Send(ctx, payload); err != nil {
		return nil, err
	}

	reply, err := c.receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedMessage)
	}

	switch reply[0] {
	case replyLoginSuccess:
		return c.finish(conn, reply[1:], nil)
	case replyEncryptionRequest:
		req, err := DecodeEncryptionRequest(reply[1:])
		if err != nil {
			return nil, err
		}
		if !canAuth {
			return nil, fmt.Errorf("%w: encryption request to a guest", ErrUnexpectedReply)
		}
		return c.authenticate(ctx, conn, req, start.WantsEncryption)
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnexpectedReply, reply[0])
	}
}

func (c *Client) authenticate(ctx context.Context, conn transport.Connection, req *EncryptionRequest, encrypt bool) (*session.Context, error) {
	serverKey := c.config.ServerPublicKey
	if len(req.PublicKey) > 0 {
		serverKey = req.PublicKey
	}
	if len(serverKey) != crypto.SealKeySize {
		return nil, ErrNoServerKey
	}

	cred, err := c.config.Credentials.Credential(ctx, serverKey)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}

	secret := cred.SharedSecret
	if secret == nil {
		secret = make([]byte, SharedSecretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	if len(secret) != SharedSecretSize {
		return nil, fmt.Errorf("handshake: shared secret is %d bytes", len(secret))
	}

	plain := make([]byte, 0, SealedPayloadSize)
	plain = append(plain, secret...)
	plain = append(plain, req.VerifyToken[:]...)
	sealed, err := crypto.Seal(serverKey, plain)
	clear(plain)
	if err != nil {
		return nil, err
	}

	resp := &EncryptionResponse{
		SealedData:    sealed,
		Token:         cred.Token,
		UserPublicKey: cred.PublicKeyPEM,
		StartingNonce: c.config.StartingNonce,
	}
	payload, err := resp.Encode()
	if err != nil {
		return nil, err
	}

	var cipher *session.Cipher
	if encrypt {
		cipher, err = session.NewCipher(secret, session.RoleClient)
		if err != nil {
			return nil, err
		}
		if c.config.StartingNonce > 0 {
			cipher.SetNonce(c.config.StartingNonce + 1)
		}
	}

	if err := conn.Send(ctx, payload); err != nil {
		return nil, err
	}

	data, err := c.receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	if cipher != nil {
		data, err = cipher.Decrypt(data)
		if err != nil {
			conn.Disconnect(session.DisconnectReasonDecryptFailed)
			return nil, err
		}
	}
	return c.finish(conn, data, cipher)
}

func (c *Client) finish(conn transport.Connection, data []byte, cipher *session.Cipher) (*session.Context, error) {
	msg, err := DecodeLoginSuccess(data)
	if err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.Infof("logged in as %s (%s, %s)", msg.DisplayName, msg.UserID, msg.LoginType)
	}
	conn.SetStatus(transport.StatusConnected)

	return session.NewContext(session.ContextConfig{
		Connection: conn,
		Identity:   identity.New(msg.UserID, msg.DisplayName, c.config.HardwareID, nil),
		LoginType:  msg.LoginType,
		Cipher:     cipher,
	})
}

func (c *Client) receive(ctx context.Context, conn transport.Connection) ([]byte, error) {
	data, err := conn.Receive(ctx)
	if err != nil {
		var de *transport.DisconnectError
		if errors.As(err, &de) {
			return nil, &RejectedError{Message: ParseDisconnect(de.Reason)}
		}
		return nil, err
	}
	return data, nil
}
