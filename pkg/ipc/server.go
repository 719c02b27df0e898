package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/core"
)

var (
	// ErrNoPortAvailable indicates every port in the range refused to bind.
	ErrNoPortAvailable = errors.New("ipc: no available port in range")
	// ErrServerStopped indicates Start was called on a stopped server.
	ErrServerStopped = errors.New("ipc: server stopped")
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("ipc: server already started")
)

// HandlerFunc handles one decoded message and returns the reply payload, or nil for no reply.
type HandlerFunc func(ctx context.Context, msg Message) Payload

// State is the lifecycle state of a Server.
type State int32

const (
	StateUnbound State = iota
	StateListening
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Server binds the first free loopback port in a range and dispatches inbound records by kind.
type Server struct {
	// WriteTimeout bounds each reply write.
	WriteTimeout time.Duration

	mu       sync.RWMutex
	ln       net.Listener
	handlers map[Kind]HandlerFunc
	conns    map[net.Conn]struct{}
	state    State
	port     atomic.Int32
	ide      string
	logger   zerolog.Logger
}

// NewServer constructs a server whose replies are stamped with sourceIDE.
func NewServer(sourceIDE string, logger zerolog.Logger) *Server {
	return &Server{
		WriteTimeout: 5 * time.Second,
		handlers:     make(map[Kind]HandlerFunc),
		conns:        make(map[net.Conn]struct{}),
		ide:          sourceIDE,
		logger:       logger,
	}
}

// Register installs a handler for a message kind.
func (s *Server) Register(kind Kind, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = handler
}

// Start binds ports sequentially from basePort within [basePort, basePort+count) and begins
// accepting connections on the first that succeeds. It returns the bound port. Cancelling ctx
// stops the server.
func (s *Server) Start(ctx context.Context, host string, basePort, count int) (int, error) {
	if s == nil {
		return 0, errors.New("nil server")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateStopped:
		return 0, ErrServerStopped
	case StateListening:
		return 0, ErrAlreadyStarted
	}
	var lc net.ListenConfig
	for port := basePort; port < basePort+count; port++ {
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			s.logger.Debug().Err(err).Int("port", port).Msg("port unavailable")
			continue
		}
		s.ln = ln
		s.port.Store(int32(port))
		s.state = StateListening
		s.logger.Info().Str("host", host).Int("port", port).Msg("ipc listening")
		go s.acceptLoop(ctx, ln)
		context.AfterFunc(ctx, func() { _ = s.Stop() })
		return port, nil
	}
	s.state = StateFailed
	return 0, fmt.Errorf("%w: %s:%d-%d", ErrNoPortAvailable, host, basePort, basePort+count-1)
}

// Port returns the bound port, or 0 when not listening.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isStopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()
	log := s.logger.With().
		Str("trace", core.NewTraceID()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	reader := NewLineReader(conn)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isStopped() {
				log.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		msg, ok := Decode(line)
		if !ok {
			log.Debug().Int("bytes", len(line)).Msg("dropping malformed record")
			continue
		}
		handler := s.lookupHandler(msg.Kind)
		if handler == nil {
			log.Debug().Str("type", string(msg.Kind)).Msg("no handler for message type")
			continue
		}
		reply := s.invoke(ctx, handler, msg, log)
		if reply == nil {
			continue
		}
		if err := s.writeReply(conn, reply); err != nil {
			log.Debug().Err(err).Msg("write reply failed")
			return
		}
	}
}

func (s *Server) invoke(ctx context.Context, handler HandlerFunc, msg Message, log zerolog.Logger) (reply Payload) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("type", string(msg.Kind)).Msg("handler panicked")
			reply = nil
		}
	}()
	return handler(ctx, msg)
}

func (s *Server) lookupHandler(kind Kind) HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[kind]
}

func (s *Server) writeReply(conn net.Conn, reply Payload) error {
	if s.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			return err
		}
	}
	return WriteMessage(conn, NewMessage(reply, s.ide))
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Stop closes the listener and drops open connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return nil
	}
	s.state = StateStopped
	s.port.Store(0)
	for conn := range s.conns {
		_ = conn.Close()
	}
	if s.ln != nil {
		err := s.ln.Close()
		s.ln = nil
		return err
	}
	return nil
}

func (s *Server) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateStopped
}
