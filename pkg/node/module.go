package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/backkem/netauth/pkg/admission"
	"github.com/backkem/netauth/pkg/credential"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/handshake"
	"github.com/backkem/netauth/pkg/identity"
	"github.com/backkem/netauth/pkg/metrics"
	"github.com/backkem/netauth/pkg/session"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// Module provides every component of a login server from a *Config and
// binds the transport and metrics endpoint to the fx lifecycle.
func Module() fx.Option {
	return fx.Module("netauth",
		fx.Provide(
			provideKeys,
			provideMetrics,
			provideSessions,
			provideValidator,
			provideAssociation,
			provideResolver,
			provideController,
			provideApprover,
			provideServer,
			provideTransport,
		),
		fx.Invoke(registerTransport, registerMetricsEndpoint),
	)
}

func provideKeys(cfg *Config) (*crypto.SealKeyPair, error) {
	if cfg.Keys != nil {
		return cfg.Keys, nil
	}
	return crypto.GenerateSealKeyPair()
}

func provideMetrics(cfg *Config) (*metrics.Handshake, error) {
	return metrics.NewHandshake(cfg.Registry)
}

func provideSessions(lc fx.Lifecycle, cfg *Config, m *metrics.Handshake) *session.Manager {
	mgr := session.NewManager(session.ManagerConfig{
		MaxSessions: cfg.MaxSessions,
		OnSessionAdded: func(s *session.Context) {
			m.SessionAdded()
			if cfg.OnSessionAdded != nil {
				cfg.OnSessionAdded(s)
			}
		},
		OnSessionRemoved: func(s *session.Context) {
			m.SessionRemoved()
			if cfg.OnSessionRemoved != nil {
				cfg.OnSessionRemoved(s)
			}
		},
		LoggerFactory: cfg.LoggerFactory,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := mgr.Close(); err != nil && !errors.Is(err, session.ErrManagerClosed) {
				return err
			}
			return nil
		},
	})
	return mgr
}

// provideValidator returns nil when authentication is disabled.
func provideValidator(cfg *Config, keys *crypto.SealKeyPair) (*credential.Validator, error) {
	if cfg.Auth == handshake.AuthDisabled {
		return nil, nil
	}
	return credential.NewValidator(credential.ValidatorConfig{
		ServerPublicKey: keys.PublicKey(),
		RelaxAudience:   cfg.RelaxAudience,
		Leeway:          cfg.TokenLeeway,
		LoggerFactory:   cfg.LoggerFactory,
	})
}

func provideAssociation(cfg *Config) identity.Association {
	if cfg.Association != nil {
		return cfg.Association
	}
	return identity.NewMemoryAssociation(cfg.AutoRegister)
}

func provideResolver(cfg *Config, assoc identity.Association, sessions *session.Manager) (*identity.Resolver, error) {
	return identity.NewResolver(identity.ResolverConfig{
		Association:   assoc,
		GuestIDs:      cfg.GuestIDs,
		Names:         sessions,
		LoggerFactory: cfg.LoggerFactory,
	})
}

func provideController(cfg *Config, sessions *session.Manager) (*admission.Controller, error) {
	return admission.NewController(admission.ControllerConfig{
		Sessions:      sessions,
		Connecting:    cfg.Connecting,
		LoggerFactory: cfg.LoggerFactory,
	})
}

func provideApprover(cfg *Config) (admission.Approver, error) {
	if cfg.DisableRateLimit {
		return admission.Chain(cfg.Approver), nil
	}
	limiter, err := admission.NewRateLimiter(admission.RateLimiterConfig{
		AttemptsPerMinute: cfg.AttemptsPerMinute,
		Burst:             cfg.Burst,
		ExemptLoopback:    cfg.AllowLocal,
		LoggerFactory:     cfg.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	return admission.Chain(limiter, cfg.Approver), nil
}

type serverParams struct {
	fx.In

	Config     *Config
	Keys       *crypto.SealKeyPair
	Validator  *credential.Validator
	Resolver   *identity.Resolver
	Controller *admission.Controller
	Approver   admission.Approver
	Metrics    *metrics.Handshake
}

func provideServer(p serverParams) (*handshake.Server, error) {
	return handshake.NewServer(handshake.ServerConfig{
		Keys:             p.Keys,
		Validator:        p.Validator,
		Resolver:         p.Resolver,
		Admission:        p.Controller,
		Approver:         p.Approver,
		Auth:             p.Config.Auth,
		AllowLocal:       p.Config.AllowLocal,
		HandshakeTimeout: p.Config.HandshakeTimeout,
		Metrics:          p.Metrics,
		LoggerFactory:    p.Config.LoggerFactory,
	})
}

func provideTransport(cfg *Config, srv *handshake.Server) (*transport.TCP, error) {
	return transport.NewTCP(transport.TCPConfig{
		Listener:      cfg.Listener,
		ListenAddr:    cfg.ListenAddr,
		Handler:       srv.Handler(cfg.OnSession),
		LoggerFactory: cfg.LoggerFactory,
	})
}

func registerTransport(lc fx.Lifecycle, t *transport.TCP) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return t.Start()
		},
		OnStop: func(context.Context) error {
			if err := t.Stop(); err != nil && !errors.Is(err, transport.ErrClosed) {
				return err
			}
			return nil
		},
	})
}

// registerMetricsEndpoint serves the registry on cfg.MetricsAddr.
func registerMetricsEndpoint(lc fx.Lifecycle, cfg *Config) {
	if cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("node-metrics")
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && log != nil {
					log.Errorf("metrics endpoint: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
