package framework

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// CLI runs one-shot netauth commands (keygen, token, connect) for tests.
type CLI struct {
	t              *testing.T
	packagePath    string
	env            []string
	defaultTimeout time.Duration
}

// cliLogWriter forwards command output to t.Logf.
type cliLogWriter struct {
	t      *testing.T
	prefix string
}

func (lw *cliLogWriter) Write(p []byte) (n int, err error) {
	lw.t.Logf("%s%s", lw.prefix, string(p))
	return len(p), nil
}

// NewCLI creates a CLI runner for the command package at packagePath.
func NewCLI(t *testing.T, packagePath string) *CLI {
	abs, err := filepath.Abs(packagePath)
	if err != nil {
		t.Fatalf("failed to get absolute path: %v", err)
	}
	return &CLI{t: t, packagePath: abs, defaultTimeout: 2 * time.Minute}
}

// Setenv adds KEY=value to the environment of every later command.
func (c *CLI) Setenv(key, value string) {
	c.env = append(c.env, key+"="+value)
}

// Run executes a command and returns its stdout.
func (c *CLI) Run(args ...string) (string, error) {
	return c.RunInput(nil, args...)
}

// RunInput executes a command with stdin and returns its stdout.
func (c *CLI) RunInput(stdin io.Reader, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = c.packagePath
	cmd.Env = append(os.Environ(), c.env...)
	cmd.Stdin = stdin

	var stdout bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, &cliLogWriter{t: c.t, prefix: "[netauth stdout] "})
	cmd.Stderr = &cliLogWriter{t: c.t, prefix: "[netauth stderr] "}

	c.t.Logf("netauth: Running: %s", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.String(), fmt.Errorf("command timed out after %v", c.defaultTimeout)
		}
		return stdout.String(), fmt.Errorf("command failed: %w", err)
	}
	return stdout.String(), nil
}
