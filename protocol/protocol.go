// Package protocol parses the colon-separated text commands clients send to
// gpiod and formats the lines written back.
//
// One read from a connection carries one command; there is no framing.
// Trailing whitespace and NUL bytes are ignored and empty fields are skipped,
// so "LED:ON\n" and "LED::ON" both parse as LED:ON.
package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the command variant.
type Kind int

const (
	SetIndicator Kind = iota + 1
	SetIndicatorLevel
	SetAlarm
	PlayMelody
	SetDisplay
	ClearDisplay
	ReadSensor
	ToggleExtraSequence
	AllOff
	ScheduleOff
)

var kindNames = map[Kind]string{
	SetIndicator:        "SetIndicator",
	SetIndicatorLevel:   "SetIndicatorLevel",
	SetAlarm:            "SetAlarm",
	PlayMelody:          "PlayMelody",
	SetDisplay:          "SetDisplay",
	ClearDisplay:        "ClearDisplay",
	ReadSensor:          "ReadSensor",
	ToggleExtraSequence: "ToggleExtraSequence",
	AllOff:              "AllOff",
	ScheduleOff:         "ScheduleOff",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return "Unknown"
}

// MaxTimerSeconds bounds TIMER:<seconds>.
const MaxTimerSeconds = 86400

// Command is a parsed client command. Only the fields relevant to Kind are set.
type Command struct {
	Kind     Kind
	On       bool
	Level    int
	MelodyID int
	Digit    int
	Pin      int
	Seconds  int
}

// Parse decodes one command from raw bytes read off a connection.
//
// Parameters:
//   - raw: The bytes of a single read
//
// Returns:
//   - The command and true, or a zero Command and false for malformed or
//     unrecognized input
func Parse(raw []byte) (Command, bool) {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}

	fields := splitFields(strings.TrimSpace(string(raw)))
	if len(fields) == 0 {
		return Command{}, false
	}

	arg := func(i int) (string, bool) {
		if i < len(fields) {
			return fields[i], true
		}
		return "", false
	}

	switch fields[0] {
	case "LED":
		sub, ok := arg(1)
		if !ok {
			return Command{}, false
		}
		switch sub {
		case "ON":
			return Command{Kind: SetIndicator, On: true}, true
		case "OFF":
			return Command{Kind: SetIndicator, On: false}, true
		case "BRIGHT":
			level, ok := intArg(fields, 2, 0, 2)
			if !ok {
				return Command{}, false
			}
			return Command{Kind: SetIndicatorLevel, Level: level}, true
		}

	case "BUZZER":
		sub, ok := arg(1)
		if !ok {
			return Command{}, false
		}
		switch sub {
		case "ON":
			return Command{Kind: SetAlarm, On: true}, true
		case "OFF":
			return Command{Kind: SetAlarm, On: false}, true
		case "MUSIC":
			id := 1
			if s, ok := arg(2); ok {
				if n, err := strconv.Atoi(s); err == nil && n == 2 {
					id = 2
				}
			}
			return Command{Kind: PlayMelody, MelodyID: id}, true
		}

	case "SEG7":
		sub, ok := arg(1)
		if !ok {
			return Command{}, false
		}
		if sub == "OFF" {
			return Command{Kind: ClearDisplay}, true
		}
		digit, ok := intArg(fields, 1, 0, 9)
		if !ok {
			return Command{}, false
		}
		return Command{Kind: SetDisplay, Digit: digit}, true

	case "SENSOR":
		pin, ok := intArg(fields, 1, 0, 1<<16)
		if !ok {
			return Command{}, false
		}
		return Command{Kind: ReadSensor, Pin: pin}, true

	case "EXTRA_MUSIC_MODE":
		return Command{Kind: ToggleExtraSequence}, true

	case "ALL_OFF":
		return Command{Kind: AllOff}, true

	case "TIMER":
		secs, ok := intArg(fields, 1, 0, MaxTimerSeconds)
		if !ok {
			return Command{}, false
		}
		return Command{Kind: ScheduleOff, Seconds: secs}, true
	}

	return Command{}, false
}

// splitFields splits on ':' and drops empty fields.
func splitFields(s string) []string {
	parts := strings.Split(s, ":")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

func intArg(fields []string, i, lo, hi int) (int, bool) {
	if i >= len(fields) {
		return 0, false
	}

	n, err := strconv.Atoi(fields[i])
	if err != nil || n < lo || n > hi {
		return 0, false
	}

	return n, true
}

// String renders the command in wire form.
func (c Command) String() string {
	switch c.Kind {
	case SetIndicator:
		return "LED:" + onOff(c.On)
	case SetIndicatorLevel:
		return fmt.Sprintf("LED:BRIGHT:%d", c.Level)
	case SetAlarm:
		return "BUZZER:" + onOff(c.On)
	case PlayMelody:
		return fmt.Sprintf("BUZZER:MUSIC:%d", c.MelodyID)
	case SetDisplay:
		return fmt.Sprintf("SEG7:%d", c.Digit)
	case ClearDisplay:
		return "SEG7:OFF"
	case ReadSensor:
		return fmt.Sprintf("SENSOR:%d", c.Pin)
	case ToggleExtraSequence:
		return "EXTRA_MUSIC_MODE"
	case AllOff:
		return "ALL_OFF"
	case ScheduleOff:
		return fmt.Sprintf("TIMER:%d", c.Seconds)
	}

	return ""
}

func onOff(on bool) string {
	if on {
		return "ON"
	}

	return "OFF"
}
