// Package server implements the per-connection command loop of gpiod.
package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/gpiod/coordination"
	"github.com/cyberinferno/gpiod/logger"
	"github.com/cyberinferno/gpiod/protocol"
	"github.com/cyberinferno/gpiod/tcpserver"
)

// Dispatcher executes a parsed command and returns the response line.
type Dispatcher interface {
	Dispatch(cmd protocol.Command) []byte
}

// Options configures sessions.
type Options struct {
	Dispatcher Dispatcher
	State      *coordination.State
	// ReadBufferSize is the largest command accepted in one read.
	ReadBufferSize int
	// WriteTimeout bounds each write; 0 means no deadline.
	WriteTimeout time.Duration
	Logger       logger.Logger
}

// Session serves one client connection. It is registered for broadcasts
// while Handle runs.
type Session struct {
	id   uint32
	conn net.Conn
	opts Options
	log  logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var (
	_ tcpserver.Session   = (*Session)(nil)
	_ coordination.Member = (*Session)(nil)
)

// NewSession wraps conn.
//
// Parameters:
//   - id: Session id assigned by the listener
//   - conn: The accepted connection
//   - opts: Dispatcher, shared state and I/O limits
//
// Returns:
//   - A Session ready for Handle
func NewSession(id uint32, conn net.Conn, opts Options) *Session {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 1024
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	peer := conn.RemoteAddr().String()
	return &Session{
		id:   id,
		conn: conn,
		opts: opts,
		log:  log.With(logger.F("session_id", id), logger.F("peer", peer)),
	}
}

// Factory returns a tcpserver.NewSessionFunc producing sessions with opts.
func Factory(opts Options) tcpserver.NewSessionFunc {
	return func(id uint32, conn net.Conn) tcpserver.Session {
		return NewSession(id, conn, opts)
	}
}

func (s *Session) ID() uint32 { return s.id }

// Send writes data to the client. Concurrent calls are serialized so a
// broadcast never interleaves with a response.
func (s *Session) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}

	_, err := s.conn.Write(data)
	return err
}

// Handle reads one command per read and writes its response until the
// connection fails or the peer closes it.
func (s *Session) Handle() {
	s.log.Info("client connected")
	if !s.opts.State.Register(s) {
		s.log.Warn("client served without broadcasts")
	}
	defer s.cleanup()

	buf := make([]byte, s.opts.ReadBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n == 0 || err != nil {
			s.logReadEnd(err)
			return
		}

		cmd, ok := protocol.Parse(buf[:n])
		if !ok {
			s.log.Debug("malformed command ignored", logger.F("raw", string(buf[:n])))
			continue
		}

		resp := s.opts.Dispatcher.Dispatch(cmd)
		if len(resp) == 0 {
			continue
		}

		if err := s.Send(resp); err != nil {
			s.log.Warn("response write failed", logger.F("command", cmd.String()), logger.Err(err))
		}
	}
}

func (s *Session) logReadEnd(err error) {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		s.log.Info("client disconnected")
	case errors.Is(err, net.ErrClosed):
		s.log.Info("client connection closed")
	default:
		s.log.Warn("client read failed", logger.Err(err))
	}
}

func (s *Session) cleanup() {
	s.opts.State.Unregister(s)
	_ = s.Close()
}

// Close closes the connection. Later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})

	return s.closeErr
}
