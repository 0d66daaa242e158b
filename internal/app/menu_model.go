package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MenuItem describes a single menu entry.
type MenuItem struct {
	Label       string
	Description string
	Value       string
	// Badge is optional text rendered after the label, e.g. "[3 labels]".
	Badge      string
	BadgeStyle *lipgloss.Style
}

// MenuConfig holds static data for a menu screen.
type MenuConfig struct {
	Title    string
	Intro    []string
	Items    []MenuItem
	Controls string
}

// MenuModel is a bubbletea Model for an interactive menu.
type MenuModel struct {
	config      MenuConfig
	cursor      int
	chosen      string
	width       int
	height      int
	quitted     bool
	helpVisible bool
	// revealed counts items shown so far; -1 shows all.
	revealed int
}

func NewMenuModel(cfg MenuConfig) MenuModel {
	if cfg.Controls == "" {
		cfg.Controls = "up/down or j/k move · enter select · esc/q quit"
	}
	revealed := -1
	if animationsEnabled() {
		revealed = 0
	}
	return MenuModel{config: cfg, width: DefaultTerminalWidth, revealed: revealed}
}

// Chosen returns the selected value after the model quits.
func (m MenuModel) Chosen() string { return m.chosen }

func (m MenuModel) Quitted() bool { return m.quitted }

func (m MenuModel) Cursor() int { return m.cursor }

// SetItems replaces the items and keeps the cursor in range.
func (m *MenuModel) SetItems(items []MenuItem) {
	m.config.Items = items
	m.cursor = clampInt(m.cursor, 0, maxInt(len(items)-1, 0))
}

func (m *MenuModel) SetIntro(intro []string) {
	m.config.Intro = intro
}

func (m MenuModel) Init() tea.Cmd {
	if m.revealed >= 0 {
		return tickReveal()
	}
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case revealTickMsg:
		if m.revealed < 0 {
			return m, nil
		}
		m.revealed++
		if m.revealed >= len(m.config.Items) {
			m.revealed = -1
			return m, nil
		}
		return m, tickReveal()

	case tea.KeyMsg:
		key := msg.String()
		if key == "?" {
			m.helpVisible = !m.helpVisible
			return m, nil
		}
		if m.helpVisible {
			if key == "esc" || key == "q" {
				m.helpVisible = false
			}
			return m, nil
		}
		m.revealed = -1
		n := len(m.config.Items)
		switch key {
		case "up", "k":
			if n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
			}
		case "down", "j":
			if n > 0 {
				m.cursor = (m.cursor + 1) % n
			}
		case "enter":
			if m.cursor < n {
				m.chosen = m.config.Items[m.cursor].Value
			}
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			m.quitted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m MenuModel) View() string {
	if m.width == 0 {
		return ""
	}
	contentWidth := clampInt(m.width-10, 20, 96)

	var header []string
	if m.config.Title != "" {
		header = append(header, styleTitle.Render(m.config.Title))
	}
	for _, line := range m.config.Intro {
		header = append(header, styleMuted.Render(truncateText(line, contentWidth)))
	}

	shown := len(m.config.Items)
	if m.revealed >= 0 && m.revealed < shown {
		shown = m.revealed
	}
	labelWidth := clampInt(contentWidth/3, 8, 24)
	descWidth := maxInt(contentWidth-labelWidth-6, 0)

	var rows []string
	for i, item := range m.config.Items[:shown] {
		label := fitText(item.Label, labelWidth)
		if item.Badge != "" {
			badgeStyle := styleSubtle
			if item.BadgeStyle != nil {
				badgeStyle = *item.BadgeStyle
			}
			label = fitText(item.Label+" ["+item.Badge+"]", labelWidth)
			label = strings.Replace(label, item.Badge, badgeStyle.Render(item.Badge), 1)
		}
		desc := fitText(item.Description, descWidth)
		if i == m.cursor {
			rows = append(rows, fmt.Sprintf("%s %s  %s", styleSelected.Render(">"), styleSelectedRow.Render(label), styleSelectedDesc.Render(desc)))
		} else {
			rows = append(rows, fmt.Sprintf("  %s  %s", styleMuted.Render(label), styleDescription.Render(desc)))
		}
	}
	if len(m.config.Items) == 0 {
		rows = append(rows, styleSubtle.Render("(no options)"))
	}

	box := styleMenuBox.Render(strings.Join(rows, "\n"))
	if m.helpVisible {
		box = styleMenuBox.Render(menuHelpText(m.config.Title))
	}
	footer := styleSubtle.Render(truncateText(m.config.Controls+" · ? help", contentWidth))
	body := joinVerticalNonEmpty(lipgloss.Left, strings.Join(header, "\n"), box)
	return composeWithPinnedFooter(body, footer, m.height)
}

func menuHelpText(screenTitle string) string {
	title := "Keymap"
	if t := strings.TrimSpace(screenTitle); t != "" {
		title = t + " keymap"
	}
	return strings.Join([]string{
		styleBrandStrong.Render(title),
		styleMuted.Render("up/down or j/k  move selection"),
		styleMuted.Render("enter           choose item"),
		styleMuted.Render("esc/q           back/quit"),
		styleMuted.Render("?               toggle this help"),
	}, "\n")
}

func composeWithPinnedFooter(body, footer string, height int) string {
	if height <= 0 {
		return joinVerticalNonEmpty(lipgloss.Left, body, footer)
	}
	bodyLines := splitLines(body)
	footerLines := splitLines(footer)
	if len(footerLines) >= height {
		return strings.Join(footerLines[:height], "\n")
	}
	if room := height - len(footerLines); len(bodyLines) > room {
		bodyLines = bodyLines[:room]
	}
	return strings.Join(append(bodyLines, footerLines...), "\n")
}

func joinVerticalNonEmpty(pos lipgloss.Position, items ...string) string {
	nonEmpty := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			nonEmpty = append(nonEmpty, item)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(pos, nonEmpty...)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func truncateText(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) <= width {
		return string(r)
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// fitText truncates or right-pads s to exactly width runes.
func fitText(s string, width int) string {
	t := truncateText(s, width)
	if n := len([]rune(t)); n < width {
		t += strings.Repeat(" ", width-n)
	}
	return t
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
