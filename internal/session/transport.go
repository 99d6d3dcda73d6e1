// Package session manages the lifecycle of one sensor link: transport
// establishment, the read loop feeding the protocol codec, bounded
// reconnection, and hand-off of decoded messages to the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// DefaultPort is the sensor's TCP port.
const DefaultPort = 8888

// Role describes how a connector obtains its transport.
type Role int

const (
	// RoleClient dials out to the sensor (or a bridge in front of it).
	RoleClient Role = iota
	// RoleServer binds a port and waits for the sensor to dial in.
	RoleServer
	// RoleSerial opens a local serial/USB bridge device.
	RoleSerial
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	case RoleSerial:
		return "serial"
	default:
		return "unknown"
	}
}

// Transport is one established byte-stream link to the sensor.
type Transport = io.ReadWriteCloser

// Connector establishes transports for a role. Connect blocks until a
// transport is available, the context is cancelled, or the connector
// is closed.
type Connector interface {
	Connect(ctx context.Context) (Transport, error)
	Role() Role
	// Close releases listener/device resources and unblocks any
	// pending Connect.
	Close() error
}

// ErrDeviceUnavailable marks a connect failure caused by the local
// bridge device being absent rather than a transport fault.
var ErrDeviceUnavailable = errors.New("device unavailable")

// TCPClient dials the sensor at a fixed address.
type TCPClient struct {
	Address string
	Timeout time.Duration // per-attempt dial timeout, default 5s
}

func (c *TCPClient) Role() Role { return RoleClient }

func (c *TCPClient) Close() error { return nil }

// Connect dials the sensor. Nagle is disabled: status messages are
// tiny and latency-sensitive.
func (c *TCPClient) Connect(ctx context.Context) (Transport, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.Address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

// TCPServer accepts exactly one inbound sensor connection at a time.
// While a connection is active, further inbound connections are closed
// immediately rather than queued.
type TCPServer struct {
	Address string

	mu     sync.Mutex
	ln     net.Listener
	conns  chan net.Conn
	active atomic.Bool
	closed bool
}

func (s *TCPServer) Role() Role { return RoleServer }

// Addr returns the bound listen address, or nil before the first
// Connect.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Connect waits for the next inbound connection.
func (s *TCPServer) Connect(ctx context.Context) (Transport, error) {
	if err := s.ensureListener(); err != nil {
		return nil, err
	}
	select {
	case conn, ok := <-s.conns:
		if !ok {
			return nil, net.ErrClosed
		}
		s.active.Store(true)
		return &acceptedConn{Conn: conn, server: s}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener and unblocks any pending Connect.
func (s *TCPServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *TCPServer) ensureListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Address, err)
	}
	s.ln = ln
	s.conns = make(chan net.Conn)
	go s.acceptLoop(ln)
	return nil
}

func (s *TCPServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			close(s.conns)
			return
		}
		// One sensor at a time; a second simultaneous connection is
		// rejected, not queued.
		if s.active.Load() {
			conn.Close()
			continue
		}
		select {
		case s.conns <- conn:
		default:
			conn.Close()
		}
	}
}

// acceptedConn releases the single-connection slot when closed.
type acceptedConn struct {
	net.Conn
	server *TCPServer
	once   sync.Once
}

func (c *acceptedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { c.server.active.Store(false) })
	return err
}

// SerialBridge opens a local serial/USB-host device carrying the
// sensor stream. The codec and session logic never see the difference.
type SerialBridge struct {
	Port string
	Baud int // default 115200
}

func (b *SerialBridge) Role() Role { return RoleSerial }

func (b *SerialBridge) Close() error { return nil }

func (b *SerialBridge) Connect(ctx context.Context) (Transport, error) {
	baud := b.Baud
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(b.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, b.Port, err)
	}
	return port, nil
}
