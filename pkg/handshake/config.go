package handshake

import (
	"fmt"
	"strings"
	"time"

	"github.com/backkem/netauth/pkg/admission"
	"github.com/backkem/netauth/pkg/credential"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/metrics"
	"github.com/pion/logging"
)

// DefaultHandshakeTimeout bounds a whole server-side handshake.
const DefaultHandshakeTimeout = 60 * time.Second

// AuthMode selects whether clients must authenticate.
type AuthMode int

const (
	// AuthOptional authenticates clients that can, others join as guests.
	AuthOptional AuthMode = iota
	// AuthRequired refuses guests, except local ones when AllowLocal is set.
	AuthRequired
	// AuthDisabled treats everyone as a guest without name prefixes.
	AuthDisabled
)

// String returns the text form of the mode.
func (m AuthMode) String() string {
	switch m {
	case AuthOptional:
		return "optional"
	case AuthRequired:
		return "required"
	case AuthDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("AuthMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m AuthMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AuthMode) UnmarshalText(text []byte) error {
	mode, err := ParseAuthMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseAuthMode parses "disabled", "optional" or "required".
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "optional", "":
		return AuthOptional, nil
	case "required":
		return AuthRequired, nil
	case "disabled":
		return AuthDisabled, nil
	default:
		return 0, fmt.Errorf("handshake: unknown auth mode %q", s)
	}
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Keys is the server's sealing key pair. Required.
	Keys *crypto.SealKeyPair

	// Validator checks tokens. Required unless Auth is AuthDisabled.
	Validator *credential.Validator

	// Resolver maps peers to identities. Required.
	Resolver *identity.Resolver

	// Admission admits resolved identities. Required.
	Admission *admission.Controller

	// Approver gates connections before the first message. Optional.
	Approver admission.Approver

	// Auth is the authentication mode.
	// Default: AuthOptional
	Auth AuthMode

	// AllowLocal lets loopback peers skip mandatory authentication and
	// gives local guests the localhost@ prefix.
	AllowLocal bool

	// HandshakeTimeout bounds each handshake.
	// Default: DefaultHandshakeTimeout
	HandshakeTimeout time.Duration

	// Metrics records handshake telemetry. Optional.
	Metrics *metrics.Handshake

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *ServerConfig) validate() error {
	switch {
	case c.Keys == nil:
		return fmt.Errorf("%w: Keys", ErrMissingDependency)
	case c.Resolver == nil:
		return fmt.Errorf("%w: Resolver", ErrMissingDependency)
	case c.Admission == nil:
		return fmt.Errorf("%w: Admission", ErrMissingDependency)
	case c.Validator == nil && c.Auth != AuthDisabled:
		return fmt.Errorf("%w: Validator", ErrMissingDependency)
	}
	return nil
}
