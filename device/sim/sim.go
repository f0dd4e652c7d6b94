// Package sim provides an in-memory device.Controller. It records every
// actuator change so tests and demo deployments can observe the board
// without hardware.
package sim

import (
	"sync"
	"time"

	"github.com/cyberinferno/gpiod/device"
	"github.com/cyberinferno/gpiod/logger"
)

// State is a point-in-time copy of the simulated board.
type State struct {
	Indicator      bool
	IndicatorLevel int
	Alarm          bool
	// Display is -1 when the display is cleared.
	Display int
	// DisplayHistory lists every digit shown, in order.
	DisplayHistory []int
	Melodies       []int
}

// Board is a simulated device.Controller.
type Board struct {
	mu     sync.Mutex
	state  State
	sensor int
	button int
	// melodyDuration is how long PlayMelody blocks.
	melodyDuration time.Duration
	closed         bool
	log            logger.Logger
}

var _ device.Controller = (*Board)(nil)

// Option configures a Board.
type Option func(*Board)

// WithMelodyDuration makes PlayMelody block for d.
func WithMelodyDuration(d time.Duration) Option {
	return func(b *Board) { b.melodyDuration = d }
}

// WithLogger logs every actuator change at debug level.
func WithLogger(l logger.Logger) Option {
	return func(b *Board) { b.log = l }
}

// New returns a Board with everything off.
func New(opts ...Option) *Board {
	b := &Board{
		state: State{Display: -1, IndicatorLevel: device.LevelMax},
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *Board) SetIndicator(on bool) error {
	b.mu.Lock()
	b.state.Indicator = on
	b.mu.Unlock()

	b.log.Debug("indicator set", logger.F("on", on))
	return nil
}

func (b *Board) SetIndicatorLevel(level int) error {
	b.mu.Lock()
	b.state.Indicator = true
	b.state.IndicatorLevel = level
	b.mu.Unlock()

	b.log.Debug("indicator level set", logger.F("level", level))
	return nil
}

func (b *Board) SetAlarm(on bool) error {
	b.mu.Lock()
	b.state.Alarm = on
	b.mu.Unlock()

	b.log.Debug("alarm set", logger.F("on", on))
	return nil
}

func (b *Board) PlayMelody(id int) error {
	b.mu.Lock()
	b.state.Melodies = append(b.state.Melodies, id)
	d := b.melodyDuration
	b.mu.Unlock()

	b.log.Debug("melody playing", logger.F("melody", id))
	if d > 0 {
		time.Sleep(d)
	}

	return nil
}

func (b *Board) SetDisplay(digit int) error {
	if digit < 0 || digit > 9 {
		return device.ErrInvalidDigit
	}

	b.mu.Lock()
	b.state.Display = digit
	b.state.DisplayHistory = append(b.state.DisplayHistory, digit)
	b.mu.Unlock()

	b.log.Debug("display set", logger.F("digit", digit))
	return nil
}

func (b *Board) ClearDisplay() error {
	b.mu.Lock()
	b.state.Display = -1
	b.mu.Unlock()

	b.log.Debug("display cleared")
	return nil
}

func (b *Board) ReadSensor() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sensor, nil
}

func (b *Board) ReadButton() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.button, nil
}

func (b *Board) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// SetSensor sets the value ReadSensor returns.
func (b *Board) SetSensor(v int) {
	b.mu.Lock()
	b.sensor = v
	b.mu.Unlock()
}

// SetButton sets the level ReadButton returns.
func (b *Board) SetButton(v int) {
	b.mu.Lock()
	b.button = v
	b.mu.Unlock()
}

// Snapshot returns a copy of the board state.
func (b *Board) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	s.DisplayHistory = append([]int(nil), b.state.DisplayHistory...)
	s.Melodies = append([]int(nil), b.state.Melodies...)
	return s
}

// Closed reports whether Close was called.
func (b *Board) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
