// Copyright 2024-2026 Aiku AI

package ircd

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives connection lifecycle callbacks from a Server. HandleLine
// is called once per complete inbound line, in arrival order, from the
// connection's read goroutine.
type Handler interface {
	HandleConnect(conn *Conn)
	HandleLine(conn *Conn, line string)
	HandleClose(conn *Conn, err error)
}

// Conn is one accepted client connection. Writes are serialized by an
// internal mutex so concurrent handlers can emit lines safely.
type Conn struct {
	nc  net.Conn
	log zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// WriteMessage serializes m and writes it followed by CRLF. Serialization
// violations are returned without writing anything.
func (c *Conn) WriteMessage(m *Message) error {
	line, err := m.Line()
	if err != nil {
		return err
	}
	c.log.Trace().Str("line", line).Msg("irc out")
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.nc.Write([]byte(line + "\r\n"))
	return err
}

// Close tears down the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.nc.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Server accepts IRC client connections and feeds framed lines to a Handler.
type Server struct {
	handler    Handler
	maxLineLen int
	log        zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a server that dispatches to handler. maxLineLen is the
// per-line framing bound advertised to clients.
func NewServer(handler Handler, maxLineLen int, log zerolog.Logger) *Server {
	return &Server{
		handler:    handler,
		maxLineLen: maxLineLen,
		log:        log.With().Str("component", "ircd").Logger(),
	}
}

// Listen binds addr, with TLS when tlsConf is non-nil, and starts the accept
// loop in a new goroutine.
func (s *Server) Listen(addr string, tlsConf *tls.Config) error {
	var ln net.Listener
	var err error
	if tlsConf != nil {
		ln, err = tls.Listen("tcp", addr, tlsConf)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("ircd: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", addr).Bool("tls", tlsConf != nil).Msg("Listening")

	go s.acceptLoop(ln)
	return nil
}

// Close stops accepting new connections. Established connections are owned
// by their sessions and are closed by them.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			s.log.Debug().Err(err).Msg("Accept loop ending")
			return
		}
		conn := &Conn{
			nc:  nc,
			log: s.log.With().Str("remote", nc.RemoteAddr().String()).Logger(),
		}
		s.handler.HandleConnect(conn)
		go s.readLoop(conn)
	}
}

func (s *Server) readLoop(conn *Conn) {
	scanner := NewLineScanner(conn.nc, s.maxLineLen)
	for scanner.Scan() {
		line := scanner.Line()
		if line == "" {
			continue
		}
		conn.log.Trace().Str("line", line).Msg("irc in")
		s.handler.HandleLine(conn, line)
	}
	s.handler.HandleClose(conn, scanner.Err())
}
