// Package device defines the actuator and sensor capability set that gpiod
// drives. Implementations live in sub-packages: sim for an in-memory board
// and rpi for a Raspberry Pi header via periph.io.
package device

import "errors"

// Brightness levels accepted by SetIndicatorLevel.
const (
	LevelMin = 0
	LevelMid = 1
	LevelMax = 2
)

// Melody identifiers accepted by PlayMelody.
const (
	MelodyDefault = 1
	MelodyAlt     = 2
)

// ErrInvalidDigit is returned by SetDisplay for values outside 0-9.
var ErrInvalidDigit = errors.New("device: digit out of range")

// Controller is the synchronous capability set consumed by the dispatcher.
// Every call completes before returning; implementations must be safe to
// call from multiple goroutines.
type Controller interface {
	SetIndicator(on bool) error
	SetIndicatorLevel(level int) error
	SetAlarm(on bool) error
	// PlayMelody blocks for the length of the tune.
	PlayMelody(id int) error
	SetDisplay(digit int) error
	ClearDisplay() error
	ReadSensor() (int, error)
	ReadButton() (int, error)
	Close() error
}

// NormalizeMelody maps any id other than MelodyAlt to MelodyDefault.
func NormalizeMelody(id int) int {
	if id == MelodyAlt {
		return MelodyAlt
	}

	return MelodyDefault
}

// AllOff turns the indicator and alarm off and clears the display. Every
// step runs even if an earlier one fails; the first error is returned.
func AllOff(c Controller) error {
	return errors.Join(
		c.SetIndicator(false),
		c.SetAlarm(false),
		c.ClearDisplay(),
	)
}
