// Package binaryport serves the binary port protocol over stream
// connections: one goroutine and one in-flight request per connection.
package binaryport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ledgerd/internal/node"
	"github.com/danmuck/ledgerd/internal/observability"
	"github.com/danmuck/ledgerd/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Config struct {
	Address string
	Session session.ServerConfig
	// MaxConnections caps concurrently served connections; accept waits for
	// a free slot. Zero means unlimited.
	MaxConnections int
	// QPSLimit is the server-wide request rate. Zero means unlimited.
	QPSLimit int
	Gates    Gates
}

func DefaultConfig() Config {
	return Config{
		Address:        "127.0.0.1:7779",
		Session:        session.DefaultServerConfig(),
		MaxConnections: 5,
		QPSLimit:       110,
	}
}

type Server struct {
	cfg        Config
	dispatcher *Dispatcher
	limiter    *rate.Limiter
	slots      chan struct{}

	active atomic.Int64

	connsMu sync.Mutex
	conns   map[string]net.Conn
	wg      sync.WaitGroup

	addrMu sync.Mutex
	addr   net.Addr
}

func NewServer(cfg Config, caps node.Capabilities) *Server {
	cfg.Session = cfg.Session.WithDefaults()
	s := &Server{
		cfg:        cfg,
		dispatcher: NewDispatcher(caps, cfg.Gates),
		conns:      make(map[string]net.Conn),
	}
	if cfg.QPSLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.QPSLimit), cfg.QPSLimit)
	}
	if cfg.MaxConnections > 0 {
		s.slots = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

// Serve accepts on ln until ctx is done, then closes every tracked
// connection and waits for their goroutines.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	log.Info().Str("addr", ln.Addr().String()).Msg("binary port listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeAllConns()
	}()
	defer s.wg.Wait()

	for {
		if !s.acquire(ctx) {
			return nil
		}
		nc, err := ln.Accept()
		if err != nil {
			s.release()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn().Err(err).Msg("binary port accept timeout")
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.ServeConn(ctx, nc)
		}()
	}
}

// ServeConn runs one connection to completion on the calling goroutine and
// returns its close reason. Slot accounting is left to the caller.
func (s *Server) ServeConn(ctx context.Context, nc net.Conn) string {
	id := uuid.NewString()
	s.trackConn(id, nc)
	defer s.untrackConn(id)

	active := s.active.Add(1)
	observability.BinaryConnectionOpened()
	logger := log.With().
		Str("conn_id", id).
		Str("remote", remoteAddr(nc)).
		Logger()
	logger.Debug().Int64("active", active).Msg("binary port connection opened")

	reason := newConn(id, nc, s, logger).serve(ctx)

	s.active.Add(-1)
	observability.BinaryConnectionClosed(reason)
	return reason
}

func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// ActiveConnections counts connections currently being served.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

func (s *Server) allow() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

func (s *Server) acquire(ctx context.Context) bool {
	if s.slots == nil {
		return ctx.Err() == nil
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) release() {
	if s.slots == nil {
		return
	}
	<-s.slots
}

func (s *Server) trackConn(id string, nc net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[id] = nc
}

func (s *Server) untrackConn(id string) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, id)
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for id, nc := range s.conns {
		_ = nc.Close()
		delete(s.conns, id)
	}
}

func remoteAddr(nc net.Conn) string {
	if a := nc.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}
