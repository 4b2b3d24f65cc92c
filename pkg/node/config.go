package node

import (
	"net"
	"time"

	"github.com/backkem/netauth/pkg/admission"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/handshake"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/session"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultListenAddr is the default handshake listen address.
const DefaultListenAddr = ":1212"

// Config holds all configuration for a Node.
type Config struct {
	// Network
	ListenAddr string       // handshake address (default: DefaultListenAddr)
	Listener   net.Listener // pre-bound listener, overrides ListenAddr

	// Keys is the sealing key pair. A fresh pair is generated if nil.
	Keys *crypto.SealKeyPair

	// Authentication
	Auth          handshake.AuthMode // default: AuthOptional
	AllowLocal    bool               // loopback peers may skip authentication
	RelaxAudience bool               // skip aud/authhash checks (development only)
	TokenLeeway   time.Duration      // clock skew allowed on exp/nbf

	// Identity. Association defaults to an in-memory store that registers
	// unknown keys when AutoRegister is set.
	Association  identity.Association
	AutoRegister bool
	GuestIDs     identity.GuestIDAssigner

	// Admission
	Connecting        admission.ConnectingHook
	Approver          admission.Approver // runs after the rate limiter
	AttemptsPerMinute float64            // per remote IP (default: admission.DefaultAttemptsPerMinute)
	Burst             int                // (default: admission.DefaultBurst)
	DisableRateLimit  bool

	// Limits
	MaxSessions      int           // default: session.DefaultMaxSessions
	HandshakeTimeout time.Duration // default: handshake.DefaultHandshakeTimeout

	// Metrics. MetricsAddr serves /metrics when set. Registry defaults to a
	// private registry.
	MetricsAddr string
	Registry    *prometheus.Registry

	// Callbacks - Optional
	OnSession        func(*session.Context) // runs in the connection's goroutine
	OnSessionAdded   func(*session.Context)
	OnSessionRemoved func(*session.Context)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.AttemptsPerMinute < 0 || c.Burst < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" && c.Listener == nil {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
}
