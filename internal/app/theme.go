package app

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"visionctl/internal/ui"
)

var (
	styleBrandStrong  = lipgloss.NewStyle().Foreground(ui.ClrBrand).Bold(true)
	styleTitle        = lipgloss.NewStyle().Foreground(ui.ClrBrand).Bold(true).Underline(true)
	styleMuted        = lipgloss.NewStyle().Foreground(ui.ClrMuted)
	styleSubtle       = lipgloss.NewStyle().Foreground(ui.ClrSubtle)
	styleSelected     = lipgloss.NewStyle().Foreground(ui.ClrBrand).Bold(true)
	styleSelectedRow  = lipgloss.NewStyle().Background(ui.ClrBrand).Foreground(lipgloss.Color("0")).Bold(true)
	styleDescription  = lipgloss.NewStyle().Foreground(ui.ClrSubtle).Italic(true)
	styleSelectedDesc = lipgloss.NewStyle().Foreground(ui.ClrBrand).Italic(true)
	styleGreen        = lipgloss.NewStyle().Foreground(ui.ClrGreen)
	styleYellow       = lipgloss.NewStyle().Foreground(ui.ClrYellow)
	styleError        = lipgloss.NewStyle().Foreground(ui.ClrRed).Bold(true)
	styleMenuBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ui.ClrSubtle).Padding(1, 2).MarginTop(1).MarginBottom(1)
	stylePanel        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ui.ClrSubtle).Padding(0, 1)
)

func statusLine(label, details string) string {
	return fmt.Sprintf("%s %s", styleBrandStrong.Render(label), styleMuted.Render(details))
}

func errorLine(err error) string {
	return styleError.Render(fmt.Sprintf("error: %v", err))
}
