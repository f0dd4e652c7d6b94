package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/gpiod/coordination"
	"github.com/cyberinferno/gpiod/device/sim"
	"github.com/cyberinferno/gpiod/dispatcher"
	"github.com/cyberinferno/gpiod/logger"
	"github.com/cyberinferno/gpiod/tasks"
	"github.com/cyberinferno/gpiod/tcpserver"
)

type stack struct {
	board *sim.Board
	state *coordination.State
	disp  *dispatcher.Dispatcher
	srv   *tcpserver.Server
}

func newStack(t *testing.T, capacity int) *stack {
	t.Helper()

	board := sim.New()
	state := coordination.New(capacity, logger.Nop())
	sup := tasks.NewSupervisor(context.Background(), logger.Nop())
	mgr := tasks.NewManager(board, state, sup, tasks.SequenceOptions{CountdownStart: 9, Interval: time.Hour, Melody: 1}, logger.Nop())
	disp := dispatcher.New(dispatcher.Deps{Device: board, State: state, Tasks: mgr, Supervisor: sup})

	srv := tcpserver.New("gpiod", "127.0.0.1:0", Factory(Options{
		Dispatcher:     disp,
		State:          state,
		ReadBufferSize: 1024,
		WriteTimeout:   time.Second,
	}), logger.Nop())
	require.NoError(t, srv.Start())

	t.Cleanup(func() {
		srv.Stop()
		_ = sup.Shutdown(time.Second)
	})

	return &stack{board: board, state: state, disp: disp, srv: srv}
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (s *stack) connect(t *testing.T) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(cmd string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(cmd))
	require.NoError(c.t, err)
}

func (c *client) readLine(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	return c.r.ReadString('\n')
}

func (c *client) roundTrip(cmd string) string {
	c.t.Helper()
	c.send(cmd)
	line, err := c.readLine(2 * time.Second)
	require.NoError(c.t, err, cmd)
	return line
}

func TestSession(t *testing.T) {
	t.Run("indicator on and off", func(t *testing.T) {
		s := newStack(t, 10)
		c := s.connect(t)

		assert.Equal(t, "OK:LED:ON\n", c.roundTrip("LED:ON"))
		assert.True(t, s.board.Snapshot().Indicator)
		assert.Equal(t, "OK:LED:OFF\n", c.roundTrip("LED:OFF\n"))
		assert.False(t, s.board.Snapshot().Indicator)
	})

	t.Run("malformed command gets no response and keeps the connection", func(t *testing.T) {
		s := newStack(t, 10)
		c := s.connect(t)

		c.send("HELLO")
		_, err := c.readLine(100 * time.Millisecond)
		require.Error(t, err)

		assert.Equal(t, "VALUE:SENSOR:19:0\n", c.roundTrip("SENSOR:19"))
	})

	t.Run("responses go only to the issuing client", func(t *testing.T) {
		s := newStack(t, 10)
		a, b := s.connect(t), s.connect(t)
		b.roundTrip("SEG7:1")

		assert.Equal(t, "OK:SEG7:2\n", a.roundTrip("SEG7:2"))
		_, err := b.readLine(100 * time.Millisecond)
		assert.Error(t, err)
	})

	t.Run("button press reaches every client", func(t *testing.T) {
		s := newStack(t, 10)
		a, b := s.connect(t), s.connect(t)
		assert.Eventually(t, func() bool { return s.state.Stats().Members == 2 }, time.Second, 5*time.Millisecond)

		s.disp.HandleButton(18)

		for _, c := range []*client{a, b} {
			line, err := c.readLine(time.Second)
			require.NoError(t, err)
			assert.Equal(t, "EVENT:BUTTON:18:1\n", line)
		}
	})

	t.Run("client beyond capacity is still served", func(t *testing.T) {
		s := newStack(t, 2)
		clients := []*client{s.connect(t), s.connect(t)}
		assert.Eventually(t, func() bool { return s.state.Stats().Members == 2 }, time.Second, 5*time.Millisecond)

		clients = append(clients, s.connect(t))
		assert.Eventually(t, func() bool { return s.state.Stats().RosterFull == 1 }, time.Second, 5*time.Millisecond)

		for _, c := range clients {
			assert.Equal(t, "OK:LED:ON\n", c.roundTrip("LED:ON"))
		}
		assert.Equal(t, 2, s.state.Stats().Members)
	})

	t.Run("second client stops the first client's sequence", func(t *testing.T) {
		s := newStack(t, 10)
		a, b := s.connect(t), s.connect(t)

		assert.Equal(t, "OK:EXTRA_MUSIC_MODE:START\n", a.roundTrip("EXTRA_MUSIC_MODE"))
		assert.Equal(t, "OK:EXTRA_MUSIC_MODE:STOP\n", b.roundTrip("EXTRA_MUSIC_MODE"))

		assert.Eventually(t, func() bool {
			snap := s.board.Snapshot()
			return !s.state.IsSequenceActive() && !snap.Indicator && snap.Display == -1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("timer acks at once and turns everything off later", func(t *testing.T) {
		s := newStack(t, 10)
		c := s.connect(t)
		c.roundTrip("LED:ON")
		c.roundTrip("BUZZER:ON")

		start := time.Now()
		assert.Equal(t, "OK:TIMER:1\n", c.roundTrip("TIMER:1"))
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.True(t, s.board.Snapshot().Alarm)

		assert.Eventually(t, func() bool {
			snap := s.board.Snapshot()
			return !snap.Indicator && !snap.Alarm
		}, 3*time.Second, 10*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), time.Second)
	})

	t.Run("disconnect unregisters the client", func(t *testing.T) {
		s := newStack(t, 10)
		c := s.connect(t)
		assert.Eventually(t, func() bool { return s.state.Stats().Members == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, c.conn.Close())
		assert.Eventually(t, func() bool {
			return s.state.Stats().Members == 0 && s.srv.Len() == 0
		}, time.Second, 5*time.Millisecond)
	})
}

func TestSessionClose(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	s := NewSession(1, local, Options{State: coordination.New(0, logger.Nop())})
	assert.Equal(t, uint32(1), s.ID())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Error(t, s.Send([]byte("x")))
}
