package commands

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/handshake"
	"github.com/backkem/netauth/pkg/node"
	"github.com/backkem/netauth/pkg/session"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		config   node.Config
		keyFile  string
		authMode string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept logins and echo session traffic back",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := handshake.ParseAuthMode(authMode)
			if err != nil {
				return err
			}
			keys, err := loadServerKey(keyFile)
			if err != nil {
				return err
			}

			config.Auth = auth
			config.Keys = keys
			config.OnSession = echoSession
			config.LoggerFactory = loggerFactory

			n, err := node.NewNode(config)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := n.Start(ctx); err != nil {
				return err
			}
			cmd.Printf("server public key: %s\n", crypto.Base64(n.PublicKey()))

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return n.Stop(stopCtx)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&config.ListenAddr, "listen", "l", env("LISTEN", node.DefaultListenAddr), "handshake listen address")
	f.StringVar(&keyFile, "key", env("SERVER_KEY", ""), "server key file from keygen (default: ephemeral key)")
	f.StringVar(&authMode, "auth", env("AUTH", "optional"), "authentication mode (disabled, optional, required)")
	f.BoolVar(&config.AllowLocal, "allow-local", envBool("ALLOW_LOCAL", false), "let loopback peers skip authentication")
	f.BoolVar(&config.RelaxAudience, "relax-audience", envBool("RELAX_AUDIENCE", false), "accept tokens issued for other servers (development only)")
	f.BoolVar(&config.AutoRegister, "auto-register", envBool("AUTO_REGISTER", true), "create accounts for unknown user keys")
	f.DurationVar(&config.TokenLeeway, "token-leeway", 0, "clock skew allowed on token expiry")
	f.DurationVar(&config.HandshakeTimeout, "handshake-timeout", handshake.DefaultHandshakeTimeout, "bound on each handshake")
	f.IntVar(&config.MaxSessions, "max-sessions", session.DefaultMaxSessions, "maximum concurrent sessions")
	f.Float64Var(&config.AttemptsPerMinute, "rate", 0, "handshakes per minute per remote IP (default 30)")
	f.IntVar(&config.Burst, "burst", 0, "handshake burst per remote IP (default 10)")
	f.BoolVar(&config.DisableRateLimit, "no-rate-limit", false, "disable per-IP handshake limiting")
	f.StringVar(&config.MetricsAddr, "metrics-addr", env("METRICS_ADDR", ""), "serve Prometheus metrics on this address")
	return cmd
}

// echoSession sends every message of an admitted session back to it.
func echoSession(sess *session.Context) {
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

func envBool(name string, fallback bool) bool {
	v, err := strconv.ParseBool(env(name, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}
