// Package rpi drives the reference Raspberry Pi board through periph.io:
// an LED with PWM brightness, a passive buzzer, a BCD-decoded digit display,
// a digital light sensor and a pulled-up push-button.
package rpi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/cyberinferno/gpiod/device"
	"github.com/cyberinferno/gpiod/logger"
)

// Pins holds BCM GPIO numbers.
type Pins struct {
	LED     int
	Buzzer  int
	Sensor  int
	Button  int
	Display [4]int
}

// edgePollTimeout bounds each WaitForEdge so WatchButton notices cancellation.
const edgePollTimeout = 250 * time.Millisecond

// bcd maps each digit to the A-D inputs of the display decoder.
var bcd = [10][4]gpio.Level{
	{gpio.Low, gpio.Low, gpio.Low, gpio.Low},
	{gpio.High, gpio.Low, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.Low, gpio.Low},
	{gpio.High, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.Low},
	{gpio.High, gpio.Low, gpio.High, gpio.Low},
	{gpio.Low, gpio.High, gpio.High, gpio.Low},
	{gpio.High, gpio.High, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.Low, gpio.High},
	{gpio.High, gpio.Low, gpio.Low, gpio.High},
}

// brightness maps device levels to an 8-bit PWM value.
var brightness = map[int]int{
	device.LevelMin: 85,
	device.LevelMid: 170,
	device.LevelMax: 255,
}

// Board is a device.Controller on real GPIO lines.
type Board struct {
	led     gpio.PinIO
	buzzer  gpio.PinIO
	sensor  gpio.PinIO
	button  gpio.PinIO
	display [4]gpio.PinIO

	pwmFreq physic.Frequency

	// ledMu and displayMu serialize multi-step pin updates; buzzerMu keeps a
	// melody from interleaving with on/off writes.
	ledMu     sync.Mutex
	buzzerMu  sync.Mutex
	displayMu sync.Mutex

	log logger.Logger
}

var _ device.Controller = (*Board)(nil)

// Open initializes the periph host drivers and claims the configured pins.
// Outputs start low; the button is configured pulled-up with rising-edge
// detection.
//
// Parameters:
//   - pins: BCM pin numbers
//   - pwmFreqHz: PWM carrier frequency for LED brightness
//   - log: Logger for driver diagnostics
//
// Returns:
//   - The Board, or an error if host init or any pin setup fails
func Open(pins Pins, pwmFreqHz int, log logger.Logger) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initializing periph host: %w", err)
	}

	b := &Board{
		pwmFreq: physic.Frequency(pwmFreqHz) * physic.Hertz,
		log:     log,
	}

	var err error
	if b.led, err = output(pins.LED); err != nil {
		return nil, err
	}
	if b.buzzer, err = output(pins.Buzzer); err != nil {
		return nil, err
	}
	for i, n := range pins.Display {
		if b.display[i], err = output(n); err != nil {
			return nil, err
		}
	}
	if b.sensor, err = lookup(pins.Sensor); err != nil {
		return nil, err
	}
	if err := b.sensor.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configuring sensor pin %d: %w", pins.Sensor, err)
	}
	if b.button, err = lookup(pins.Button); err != nil {
		return nil, err
	}
	if err := b.button.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("configuring button pin %d: %w", pins.Button, err)
	}

	return b, nil
}

func lookup(n int) (gpio.PinIO, error) {
	p := gpioreg.ByName("GPIO" + strconv.Itoa(n))
	if p == nil {
		return nil, fmt.Errorf("gpio pin %d not found", n)
	}

	return p, nil
}

func output(n int) (gpio.PinIO, error) {
	p, err := lookup(n)
	if err != nil {
		return nil, err
	}

	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configuring output pin %d: %w", n, err)
	}

	return p, nil
}

func (b *Board) SetIndicator(on bool) error {
	b.ledMu.Lock()
	defer b.ledMu.Unlock()

	return b.led.Out(gpio.Level(on))
}

func (b *Board) SetIndicatorLevel(level int) error {
	v, ok := brightness[level]
	if !ok {
		v = brightness[device.LevelMax]
	}

	b.ledMu.Lock()
	defer b.ledMu.Unlock()

	duty := gpio.Duty(int64(gpio.DutyMax) * int64(v) / 255)
	if err := b.led.PWM(duty, b.pwmFreq); err != nil {
		return fmt.Errorf("setting led pwm: %w", err)
	}

	return nil
}

func (b *Board) SetAlarm(on bool) error {
	b.buzzerMu.Lock()
	defer b.buzzerMu.Unlock()

	return b.buzzer.Out(gpio.Level(on))
}

// PlayMelody drives the buzzer with a square wave per note and leaves it low.
func (b *Board) PlayMelody(id int) error {
	tune := melodies[device.NormalizeMelody(id)]

	b.buzzerMu.Lock()
	defer b.buzzerMu.Unlock()

	for _, n := range tune {
		if err := b.buzzer.PWM(gpio.DutyHalf, physic.Frequency(n.hz)*physic.Hertz); err != nil {
			_ = b.buzzer.Out(gpio.Low)
			return fmt.Errorf("playing note %d Hz: %w", n.hz, err)
		}
		time.Sleep(n.length)

		if n.gap > 0 {
			if err := b.buzzer.Out(gpio.Low); err != nil {
				return fmt.Errorf("silencing buzzer: %w", err)
			}
			time.Sleep(n.gap)
		}
	}

	return b.buzzer.Out(gpio.Low)
}

func (b *Board) SetDisplay(digit int) error {
	if digit < 0 || digit > 9 {
		return device.ErrInvalidDigit
	}

	b.displayMu.Lock()
	defer b.displayMu.Unlock()

	return b.writeDisplay(bcd[digit])
}

func (b *Board) ClearDisplay() error {
	b.displayMu.Lock()
	defer b.displayMu.Unlock()

	return b.writeDisplay(bcd[0])
}

func (b *Board) writeDisplay(levels [4]gpio.Level) error {
	var errs []error
	for i, p := range b.display {
		if err := p.Out(levels[i]); err != nil {
			errs = append(errs, fmt.Errorf("display line %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

func (b *Board) ReadSensor() (int, error) {
	return levelInt(b.sensor.Read()), nil
}

func (b *Board) ReadButton() (int, error) {
	return levelInt(b.button.Read()), nil
}

// WatchButton calls onPress for every rising edge whose level still reads high,
// until ctx is cancelled.
func (b *Board) WatchButton(ctx context.Context, onPress func()) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !b.button.WaitForEdge(edgePollTimeout) {
			continue
		}

		if level, err := b.ReadButton(); err == nil && level == 1 {
			onPress()
		}
	}
}

// Close drives every output low and halts the button edge detection.
func (b *Board) Close() error {
	errs := []error{device.AllOff(b)}
	if err := b.button.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("halting button pin: %w", err))
	}

	return errors.Join(errs...)
}

func levelInt(l gpio.Level) int {
	if l == gpio.High {
		return 1
	}

	return 0
}
