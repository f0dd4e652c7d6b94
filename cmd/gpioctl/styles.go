package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorSuccess   = lipgloss.Color("#10B981")
	colorError     = lipgloss.Color("#EF4444")
	colorHighlight = lipgloss.Color("#3B82F6")
	colorMuted     = lipgloss.Color("#6B7280")
	colorEvent     = lipgloss.Color("#F59E0B")
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	valueStyle   = lipgloss.NewStyle().Foreground(colorHighlight)
	eventStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorEvent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	commandStyle = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true)
)

// styleLine colors a server line by its prefix.
func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "OK:"):
		return okStyle.Render(line)
	case strings.HasPrefix(line, "VALUE:"):
		return valueStyle.Render(line)
	case strings.HasPrefix(line, "EVENT:"):
		return eventStyle.Render(line)
	default:
		return line
	}
}
