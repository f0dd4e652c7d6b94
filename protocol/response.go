package protocol

import (
	"fmt"
	"strings"
)

// Response line prefixes.
const (
	PrefixOK    = "OK"
	PrefixValue = "VALUE"
	PrefixEvent = "EVENT"
)

// Sequence acknowledgment suffixes.
const (
	SequenceStart = "START"
	SequenceStop  = "STOP"
)

// Ack returns the acknowledgment line for a device command.
func Ack(c Command) []byte {
	switch c.Kind {
	case PlayMelody:
		// the melody id is not echoed
		return line("OK:BUZZER:MUSIC")
	case ReadSensor, ToggleExtraSequence:
		return nil
	}

	return line(PrefixOK + ":" + c.String())
}

// SequenceAck returns OK:EXTRA_MUSIC_MODE:START or :STOP.
func SequenceAck(started bool) []byte {
	suffix := SequenceStop
	if started {
		suffix = SequenceStart
	}

	return line("OK:EXTRA_MUSIC_MODE:" + suffix)
}

// SensorValue returns VALUE:SENSOR:<pin>:<reading>.
func SensorValue(pin, reading int) []byte {
	return line(fmt.Sprintf("%s:SENSOR:%d:%d", PrefixValue, pin, reading))
}

// ButtonEvent returns EVENT:BUTTON:<pin>:1.
func ButtonEvent(pin int) []byte {
	return line(fmt.Sprintf("%s:BUTTON:%d:1", PrefixEvent, pin))
}

// IsEvent reports whether a received line is an unsolicited broadcast.
func IsEvent(msg string) bool {
	return strings.HasPrefix(msg, PrefixEvent+":")
}

func line(s string) []byte {
	return []byte(s + "\n")
}
