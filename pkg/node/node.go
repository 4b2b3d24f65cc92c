package node

import (
	"context"
	"net"
	"sync"

	"github.com/backkem/netauth/pkg/handshake"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/session"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/pion/logging"
	"go.uber.org/fx"
)

// Node is a running login server.
type Node struct {
	config Config
	app    *fx.App
	log    logging.LeveledLogger

	server      *handshake.Server
	transport   *transport.TCP
	sessions    *session.Manager
	association identity.Association

	mu      sync.Mutex
	started bool
}

// NewNode builds a Node from config. The listener is bound, but no
// connections are accepted until Start.
func NewNode(config Config) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	n := &Node{config: config}
	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("node")
	}

	n.app = fx.New(
		fx.NopLogger,
		fx.Supply(&n.config),
		Module(),
		fx.Populate(&n.server, &n.transport, &n.sessions, &n.association),
	)
	if err := n.app.Err(); err != nil {
		return nil, err
	}
	return n, nil
}

// Start begins accepting handshakes.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return ErrAlreadyStarted
	}
	if err := n.app.Start(ctx); err != nil {
		return err
	}
	n.started = true

	if n.log != nil {
		n.log.Infof("listening on %s (auth %s, allow local %t)", n.Addr(), n.server.Auth(), n.config.AllowLocal)
	}
	return nil
}

// Stop disconnects every peer and releases all resources.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return ErrNotStarted
	}
	n.started = false
	return n.app.Stop(ctx)
}

// Addr returns the handshake listen address.
func (n *Node) Addr() net.Addr {
	return n.transport.LocalAddr()
}

// PublicKey returns the server sealing public key clients bind tokens to.
func (n *Node) PublicKey() []byte {
	return n.server.PublicKey()
}

// Sessions returns the session manager.
func (n *Node) Sessions() *session.Manager {
	return n.sessions
}

// Accounts returns the account store if it is a MemoryAssociation, which
// it is unless Config.Association was set to something else.
func (n *Node) Accounts() *identity.MemoryAssociation {
	mem, _ := n.association.(*identity.MemoryAssociation)
	return mem
}
