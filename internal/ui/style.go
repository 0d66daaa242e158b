// Package ui provides shared terminal styling for visionctl commands and screens.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"visionctl/internal/classify"
	"visionctl/internal/model"
)

// Color palette (256-color).
var (
	ClrBrand  = lipgloss.Color("39")  // blue
	ClrMuted  = lipgloss.Color("245") // gray
	ClrSubtle = lipgloss.Color("242") // darker gray
	ClrGreen  = lipgloss.Color("114")
	ClrRed    = lipgloss.Color("203")
	ClrYellow = lipgloss.Color("220")
	ClrOrange = lipgloss.Color("208")
)

var (
	Bold   = lipgloss.NewStyle().Bold(true)
	Brand  = lipgloss.NewStyle().Foreground(ClrBrand).Bold(true)
	Muted  = lipgloss.NewStyle().Foreground(ClrMuted)
	Subtle = lipgloss.NewStyle().Foreground(ClrSubtle)
	Green  = lipgloss.NewStyle().Foreground(ClrGreen)
	Red    = lipgloss.NewStyle().Foreground(ClrRed)
	Yellow = lipgloss.NewStyle().Foreground(ClrYellow)
	Orange = lipgloss.NewStyle().Foreground(ClrOrange)
)

// Error formats an error message.
func Error(msg string) string {
	return Red.Render("error: " + msg)
}

// Info formats an informational label with details.
func Info(label, detail string) string {
	return Brand.Render(label) + " " + Muted.Render(detail)
}

// Success formats a completed action.
func Success(msg string) string {
	return Green.Render(msg)
}

func Dim(text string) string {
	return Subtle.Render(text)
}

// TierStyle returns the color a prediction tier is rendered in.
func TierStyle(t classify.Tier) lipgloss.Style {
	switch t {
	case classify.TierPerfectMatch:
		return Green.Bold(true)
	case classify.TierHighConfidence:
		return Green
	case classify.TierLowConfidence:
		return Yellow
	default:
		return Orange
	}
}

// Tier renders a tier badge such as "[High confidence]".
func Tier(t classify.Tier) string {
	return TierStyle(t).Render("[" + t.String() + "]")
}

// Status renders a model status in its color.
func Status(s model.ModelStatus) string {
	switch s {
	case model.StatusTrained:
		return Green.Render(s.String())
	case model.StatusTraining:
		return Yellow.Render(s.String())
	case model.StatusFailed:
		return Red.Render(s.String())
	default:
		return Muted.Render(s.String())
	}
}

// Enabled reports whether color output is enabled.
func Enabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(os.Getenv("TERM"))) != "dumb"
}
