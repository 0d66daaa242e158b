package app

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"visionctl/internal/store"
)

const historyTickInterval = 2 * time.Second

type historyTickMsg time.Time

// historyModel scrolls the review history and picks up records added by
// other visionctl runs.
type historyModel struct {
	viewport    viewport.Model
	load        func(ctx context.Context) ([]store.PredictionRecord, error)
	content     string
	count       int
	ready       bool
	wasAtBottom bool
}

func newHistoryModel(load func(ctx context.Context) ([]store.PredictionRecord, error)) historyModel {
	m := historyModel{load: load}
	m.refreshContent()
	return m
}

func tickHistory() tea.Cmd {
	return tea.Tick(historyTickInterval, func(t time.Time) tea.Msg {
		return historyTickMsg(t)
	})
}

func (m historyModel) Init() tea.Cmd {
	return tickHistory()
}

func (m historyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "G":
			m.viewport.GotoBottom()
			return m, nil
		}

	case tea.WindowSizeMsg:
		// title + blank line above, blank line + footer below
		height := maxInt(msg.Height-4, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		return m, nil

	case historyTickMsg:
		m.refreshContent()
		return m, tickHistory()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.wasAtBottom = m.viewport.AtBottom()
	return m, cmd
}

func (m *historyModel) refreshContent() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	records, err := m.load(ctx)
	switch {
	case err != nil:
		m.content = styleMuted.Render("Error reading history: " + err.Error())
	case len(records) == 0:
		m.content = styleMuted.Render("No predictions yet. Run `visionctl predict <image>` first.")
	case len(records) == m.count:
		return
	default:
		m.content = renderHistory(records)
	}
	m.count = len(records)
	if m.ready {
		m.viewport.SetContent(m.content)
		if m.wasAtBottom {
			m.viewport.GotoBottom()
		}
	}
}

func renderHistory(records []store.PredictionRecord) string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeHistoryTable(tw, records)
	_ = tw.Flush()
	return buf.String()
}

func (m historyModel) View() string {
	if !m.ready {
		return styleMuted.Render("Loading...")
	}
	header := fmt.Sprintf("%s  %s", styleBrandStrong.Render("Prediction history"), styleSubtle.Render(fmt.Sprintf("%d records", m.count)))
	footer := styleMuted.Render("q/esc back · up/down scroll · G end")
	return header + "\n\n" + m.viewport.View() + "\n\n" + footer
}
