package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"visionctl/internal/ui"
)

const (
	revealDelay = 30 * time.Millisecond
	tipDelay    = 4 * time.Second

	// datasetPollInterval paces the home screen's dataset refresh.
	datasetPollInterval = 15 * time.Second
)

type revealTickMsg struct{}

type tipTickMsg struct{}

// animationsEnabled returns false when NO_COLOR is set or TERM=dumb.
func animationsEnabled() bool {
	return ui.Enabled()
}

func tickReveal() tea.Cmd {
	return tea.Tick(revealDelay, func(time.Time) tea.Msg { return revealTickMsg{} })
}

func tickStartupTip() tea.Cmd {
	return tea.Tick(tipDelay, func(time.Time) tea.Msg { return tipTickMsg{} })
}
