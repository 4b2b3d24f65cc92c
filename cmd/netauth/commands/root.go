package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/pion/logging"
	"github.com/spf13/cobra"
)

const envPrefix = "NETAUTH_"

var (
	logLevel      string
	loggerFactory logging.LoggerFactory
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "netauth",
		Short:         "Secure login handshake server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lf, err := newLoggerFactory(logLevel)
			if err != nil {
				return err
			}
			loggerFactory = lf
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", env("LOG_LEVEL", "info"), "log level (disabled, error, warn, info, debug, trace)")

	root.AddCommand(serveCmd(), keygenCmd(), tokenCmd(), connectCmd())
	return root.Execute()
}

func newLoggerFactory(level string) (logging.LoggerFactory, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = lvl
	lf.Writer = os.Stderr
	return lf, nil
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// env returns NETAUTH_<name> if set, else fallback. Flags default to it, so
// an explicit flag still wins.
func env(name, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		return v
	}
	return fallback
}
