// Package tcpserver accepts TCP connections and runs one session per
// connection until the server stops.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/gpiod/idgenerator"
	"github.com/cyberinferno/gpiod/logger"
	"github.com/cyberinferno/gpiod/safemap"
)

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("tcpserver: already running")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// NewSessionFunc creates the session for an accepted connection. id is unique
// for the lifetime of the server.
type NewSessionFunc func(id uint32, conn net.Conn) Session

// Server binds one TCP endpoint and hands each connection to a Session.
// Sessions are tracked by id until their Handle returns.
type Server struct {
	name       string
	addr       string
	newSession NewSessionFunc
	log        logger.Logger

	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	running    atomic.Bool
	sessions   *safemap.SafeMap[uint32, Session]
	ids        *idgenerator.IdGenerator
	wg         sync.WaitGroup
}

// New creates a stopped Server.
//
// Parameters:
//   - name: Server name used in logs
//   - addr: "host:port" to listen on; port 0 picks a free port
//   - newSession: Factory for per-connection sessions
//   - log: Logger for lifecycle and accept errors
//
// Returns:
//   - A Server ready for Start
func New(name, addr string, newSession NewSessionFunc, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	return &Server{
		name:       name,
		addr:       addr,
		newSession: newSession,
		log:        log,
		sessions:   safemap.New[uint32, Session](),
		ids:        idgenerator.NewIdGenerator(0),
	}
}

// Start binds the address and runs the accept loop in a goroutine.
//
// Returns:
//   - ErrAlreadyRunning if the server is running
//   - A wrapped error if listening fails
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("%s: %w", s.name, ErrAlreadyRunning)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error("server failed to start", logger.F("addr", s.addr), logger.Err(err))
		return fmt.Errorf("%s server failed to listen on %s: %w", s.name, s.addr, err)
	}

	s.listener = ln
	s.acceptDone = make(chan struct{})
	s.running.Store(true)

	s.log.Info(fmt.Sprintf("%s server started", s.name), logger.F("addr", ln.Addr().String()))
	go s.acceptLoop(ln, s.acceptDone)

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop closes the listener and every live session, then waits for session
// goroutines to return. It is safe to call on a stopped server.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}

	s.running.Store(false)
	_ = s.listener.Close()
	done := s.acceptDone
	s.mu.Unlock()

	<-done

	s.sessions.Range(func(_ uint32, session Session) bool {
		_ = session.Close()
		return true
	})
	s.wg.Wait()

	s.log.Info(fmt.Sprintf("%s server stopped", s.name))
}

// Session returns the live session with id.
func (s *Server) Session(id uint32) (Session, bool) {
	return s.sessions.Load(id)
}

// Len returns the number of live sessions.
func (s *Server) Len() int {
	return s.sessions.Len()
}

func (s *Server) acceptLoop(ln net.Listener, done chan<- struct{}) {
	defer close(done)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn(fmt.Sprintf("%s server accept error, retrying", s.name),
					logger.F("backoff", backoff.String()),
					logger.Err(err),
				)
				time.Sleep(backoff)
				continue
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.log.Error(fmt.Sprintf("%s server accept error", s.name), logger.Err(err))
			backoff = nextBackoff(backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.running.Load() {
			_ = conn.Close()
			return
		}

		s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	id := s.ids.Id()
	session := s.newSession(id, conn)
	s.sessions.Store(id, session)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sessions.Delete(id)

		session.Handle()
	}()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}

	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}

	return d
}
