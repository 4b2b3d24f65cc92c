// Package framework runs the netauth binary for integration tests.
package framework

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ServerProcess manages the lifecycle of a "netauth serve" process.
type ServerProcess struct {
	packagePath string
	addr        string
	args        []string
	logFile     string

	cmd           *exec.Cmd
	started       bool
	mu            sync.Mutex
	stdout        *logWriter
	stderr        *logWriter
	logFileHandle *os.File
	done          chan struct{}
	ctx           context.Context
	cancelFunc    context.CancelFunc
}

// ServerProcessConfig holds configuration for a server process.
type ServerProcessConfig struct {
	// PackagePath is the path to the command package (e.g., "../../cmd/netauth").
	PackagePath string

	// Addr is the handshake listen address (default: 127.0.0.1:1212).
	Addr string

	// KeyFile is a server key file from "netauth keygen". Empty uses an
	// ephemeral key.
	KeyFile string

	// Auth is the authentication mode (default: optional).
	Auth string

	// LogFile is an optional path to write logs to (in addition to test output).
	LogFile string

	// ExtraArgs are additional serve arguments.
	ExtraArgs []string
}

// NewServerProcess creates a new server process manager.
func NewServerProcess(config ServerProcessConfig) *ServerProcess {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:1212"
	}
	if config.Auth == "" {
		config.Auth = "optional"
	}

	args := []string{"serve", "--listen", config.Addr, "--auth", config.Auth, "--log-level", "debug"}
	if config.KeyFile != "" {
		args = append(args, "--key", config.KeyFile)
	}
	args = append(args, config.ExtraArgs...)

	ctx, cancel := context.WithCancel(context.Background())

	return &ServerProcess{
		packagePath: config.PackagePath,
		addr:        config.Addr,
		args:        args,
		logFile:     config.LogFile,
		done:        make(chan struct{}),
		ctx:         ctx,
		cancelFunc:  cancel,
	}
}

// Start runs the server with `go run` and waits until it accepts
// connections.
func (p *ServerProcess) Start(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("server process already started")
	}

	absPath, err := filepath.Abs(p.packagePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	cmdArgs := append([]string{"run", "."}, p.args...)
	p.cmd = exec.CommandContext(p.ctx, "go", cmdArgs...)
	p.cmd.Dir = absPath

	if p.logFile != "" {
		logFile, err := os.OpenFile(p.logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		p.logFileHandle = logFile
	}

	p.stdout = newLogWriter("[netauth stdout]", p.logFileHandle)
	p.stderr = newLogWriter("[netauth stderr]", p.logFileHandle)
	p.cmd.Stdout = p.stdout
	p.cmd.Stderr = p.stderr

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	p.started = true

	go func() {
		defer close(p.done)
		p.cmd.Wait()
	}()

	// `go run` compiles first, so poll instead of sleeping a fixed time.
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", p.addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-p.done:
			return fmt.Errorf("server exited before listening")
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server not listening on %s after %s", p.addr, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Stop gracefully stops the server process.
func (p *ServerProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			p.cmd.Process.Kill()
		}
	}

	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		p.cancelFunc()
		<-p.done
	}
	p.cancelFunc()

	if p.logFileHandle != nil {
		p.logFileHandle.Close()
		p.logFileHandle = nil
	}

	p.started = false
	return nil
}

// Addr returns the handshake address the server listens on.
func (p *ServerProcess) Addr() string {
	return p.addr
}

// IsRunning returns true if the server process is currently running.
func (p *ServerProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// logWriter is a simple io.Writer that prefixes each write with a label.
// It writes to stdout and optionally to a file.
type logWriter struct {
	prefix  string
	logFile *os.File
	mu      sync.Mutex
}

func newLogWriter(prefix string, logFile *os.File) *logWriter {
	return &logWriter{
		prefix:  prefix,
		logFile: logFile,
	}
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Printf("%s %s", w.prefix, string(p))
	if w.logFile != nil {
		fmt.Fprintf(w.logFile, "%s %s", w.prefix, string(p))
	}
	return len(p), nil
}
