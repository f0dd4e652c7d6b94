// Package client is a TCP client for gpiod. It sends commands, matches each
// one with its response line and reports EVENT broadcasts through a handler.
// It can reconnect automatically after the connection drops.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/gpiod/logger"
	"github.com/cyberinferno/gpiod/protocol"
)

var (
	// ErrNotConnected is returned when sending without a live connection.
	ErrNotConnected = errors.New("client: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")
)

// ConnectionState is the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StateHandler is called on every state change.
type StateHandler func(state ConnectionState, err error)

// EventHandler is called with each EVENT line, newline removed.
type EventHandler func(line string)

// Config holds client settings.
type Config struct {
	// Address is the gpiod "host:port".
	Address string
	// AutoReconnect redials after the connection drops.
	AutoReconnect bool
	// ReconnectInterval is the delay between redials.
	ReconnectInterval time.Duration
	// WriteTimeout bounds each command write; 0 means none.
	WriteTimeout time.Duration
	// ConnectionTimeout bounds each dial.
	ConnectionTimeout time.Duration
}

// DefaultConfig returns settings for address with reconnect disabled.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ReconnectInterval: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
	}
}

// Client is a gpiod client. It is safe for concurrent use, but responses are
// matched to commands in order, so concurrent Request calls may receive each
// other's responses.
type Client struct {
	config Config
	log    logger.Logger

	mu        sync.RWMutex
	conn      net.Conn
	state     ConnectionState
	onState   StateHandler
	onEvent   EventHandler
	closed    bool
	stopChan  chan struct{}
	reconnect chan struct{}
	wg        sync.WaitGroup

	requestMu sync.Mutex
	responses chan string
}

// New creates a disconnected Client.
//
// Parameters:
//   - config: Connection settings, e.g. from DefaultConfig
//   - log: Logger for connection problems
//
// Returns:
//   - A Client; call Connect to use it and Close when done
func New(config Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		config:    config,
		log:       log,
		state:     Disconnected,
		stopChan:  make(chan struct{}),
		reconnect: make(chan struct{}, 1),
		responses: make(chan string, 16),
	}
}

// OnConnectionState sets the state change handler.
func (c *Client) OnConnectionState(h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = h
}

// OnEvent sets the broadcast handler.
func (c *Client) OnEvent(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = h
}

// Connect dials the server.
//
// Returns:
//   - ErrClosed after Close
//   - A wrapped dial error
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		return err
	}

	if c.config.AutoReconnect {
		c.wg.Add(1)
		go c.reconnectLoop()
	}

	return nil
}

func (c *Client) dial() error {
	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		return fmt.Errorf("client: dial %s: %w", c.config.Address, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

// Send writes one command.
//
// Parameters:
//   - cmd: Command text, e.g. "LED:ON"
//
// Returns:
//   - ErrNotConnected without a live connection, or the write error
func (c *Client) Send(cmd string) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := conn.Write([]byte(cmd)); err != nil {
		c.triggerReconnect()
		return fmt.Errorf("client: send %q: %w", cmd, err)
	}

	return nil
}

// Request sends cmd and waits for the next non-event line.
//
// Parameters:
//   - ctx: Bounds the wait; malformed commands never get a response
//   - cmd: Command text
//
// Returns:
//   - The response line without its newline
//   - An error if sending fails or ctx ends first
func (c *Client) Request(ctx context.Context, cmd string) (string, error) {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	// drop responses nobody waited for
	for len(c.responses) > 0 {
		<-c.responses
	}

	if err := c.Send(cmd); err != nil {
		return "", err
	}

	select {
	case line := <-c.responses:
		return line, nil
	case <-ctx.Done():
		return "", fmt.Errorf("client: waiting for response to %q: %w", cmd, ctx.Err())
	}
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close disconnects and stops reconnecting. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()
	c.setState(Closed, nil)

	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if c.isClosed() {
				return
			}
			c.log.Warn("connection lost", logger.F("addr", c.config.Address), logger.Err(err))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.setState(Disconnected, err)
			c.triggerReconnect()
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if protocol.IsEvent(line) {
			c.emitEvent(line)
			continue
		}

		select {
		case c.responses <- line:
		default:
			c.log.Warn("response dropped, nobody waiting", logger.F("line", line))
		}
	}
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnect:
		}

		c.setState(Reconnecting, nil)

		select {
		case <-c.stopChan:
			return
		case <-time.After(c.config.ReconnectInterval):
		}

		if c.isClosed() {
			return
		}

		if err := c.dial(); err != nil {
			c.log.Warn("reconnect failed", logger.F("addr", c.config.Address), logger.Err(err))
			c.triggerReconnect()
		}
	}
}

func (c *Client) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	h := c.onState
	c.mu.Unlock()

	if h != nil {
		h(state, err)
	}
}

func (c *Client) emitEvent(line string) {
	c.mu.RLock()
	h := c.onEvent
	c.mu.RUnlock()

	if h != nil {
		h(line)
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
