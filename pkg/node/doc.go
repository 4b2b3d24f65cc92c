// Package node assembles a complete login server.
//
// A Node wires the transport, handshake, identity, admission, session and
// metrics packages together with go.uber.org/fx:
//
//	transport.TCP ──► handshake.Server ──► admission.Controller ──► session.Manager
//	                        │                      │
//	                        ├─ credential.Validator └─ ConnectingHook
//	                        ├─ identity.Resolver
//	                        └─ admission.Approver (rate limiter)
//
// Basic usage:
//
//	n, err := node.NewNode(node.Config{
//		ListenAddr: ":1212",
//		Auth:       handshake.AuthRequired,
//		OnSession:  func(s *session.Context) { ... },
//	})
//	if err != nil {
//		return err
//	}
//	if err := n.Start(ctx); err != nil {
//		return err
//	}
//	defer n.Stop(ctx)
package node
