package rpi

import (
	"time"

	"github.com/cyberinferno/gpiod/device"
)

type note struct {
	hz     int
	length time.Duration
	gap    time.Duration
}

var melodies = map[int][]note{
	device.MelodyDefault: buildTune(
		[]int{262, 262, 349, 349, 440, 440, 349, 392, 392, 330, 330, 294, 294, 262},
		[]int{1, 1, 1, 1, 1, 1, 2, 1, 1, 1, 1, 1, 1, 2},
		350*time.Millisecond,
		0,
	),
	device.MelodyAlt: buildTune(
		[]int{659, 784, 880, 1047, 880, 784, 880, 1047, 880, 784, 880, 659, 784, 880, 1319, 988, 784, 880, 988, 1319, 1175, 1397, 1319},
		[]int{1, 1, 2, 2, 2, 1, 2, 1, 1, 1, 2, 1, 1, 2, 2, 2, 1, 2, 1, 1, 1, 2, 2},
		125*time.Millisecond,
		20*time.Millisecond,
	),
}

// buildTune pairs frequencies with beat counts of the given unit.
func buildTune(freqs, beats []int, unit, gap time.Duration) []note {
	tune := make([]note, len(freqs))
	for i, f := range freqs {
		tune[i] = note{hz: f, length: time.Duration(beats[i]) * unit, gap: gap}
	}

	return tune
}
