package transport

import (
	"net"

	"github.com/pion/logging"
)

// Default pipe endpoint addresses (TEST-NET-1, not loopback).
var (
	DefaultPipeClientAddr net.Addr = &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 50000}
	DefaultPipeServerAddr net.Addr = &net.TCPAddr{IP: net.IPv4(192, 0, 2, 100), Port: 1212}
)

// PipeConfig configures NewPipe.
type PipeConfig struct {
	// ClientAddr is the client address reported to the server side.
	// Default: DefaultPipeClientAddr
	ClientAddr net.Addr

	// ServerAddr is the server address reported to the client side.
	// Default: DefaultPipeServerAddr
	ServerAddr net.Addr

	// ReceiveBuffer is passed to both Conns.
	ReceiveBuffer int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewPipe returns two connected in-memory Conns. Use it for deterministic
// tests without real network I/O.
func NewPipe(config PipeConfig) (client, server *Conn) {
	if config.ClientAddr == nil {
		config.ClientAddr = DefaultPipeClientAddr
	}
	if config.ServerAddr == nil {
		config.ServerAddr = DefaultPipeServerAddr
	}

	cc, sc := net.Pipe()
	client = NewConn(cc, ConnConfig{
		RemoteAddr:    config.ServerAddr,
		ReceiveBuffer: config.ReceiveBuffer,
		LoggerFactory: config.LoggerFactory,
	})
	server = NewConn(sc, ConnConfig{
		RemoteAddr:    config.ClientAddr,
		ReceiveBuffer: config.ReceiveBuffer,
		LoggerFactory: config.LoggerFactory,
	})
	return client, server
}
