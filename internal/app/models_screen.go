package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"visionctl/internal/model"
	"visionctl/internal/query"
	"visionctl/internal/ui"
)

const browserPageSize = 12

// modelsModel filters the model list as the user types.
type modelsModel struct {
	all     []model.Model
	search  textinput.Model
	status  string
	visible []model.Model
	cursor  int
}

func newModelsModel(models []model.Model, search, status string) modelsModel {
	in := textinput.New()
	in.Placeholder = "search name, path, class or id"
	in.Prompt = "/ "
	in.SetValue(search)
	in.Focus()
	if status == "" {
		status = query.StatusAll
	}
	m := modelsModel{all: models, search: in, status: status}
	m.apply()
	return m
}

func (m *modelsModel) apply() {
	m.visible = query.Filter(m.all, m.search.Value(), m.status)
	m.cursor = clampInt(m.cursor, 0, maxInt(len(m.visible)-1, 0))
}

// Selected returns the highlighted model, if any.
func (m modelsModel) Selected() (model.Model, bool) {
	if len(m.visible) == 0 {
		return model.Model{}, false
	}
	return m.visible[m.cursor], true
}

func (m modelsModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m modelsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "ctrl+c", "enter":
			return m, tea.Quit
		case "tab":
			m.status = query.NextStatusFilter(m.status)
			m.apply()
			return m, nil
		case "up", "ctrl+p":
			if n := len(m.visible); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
			}
			return m, nil
		case "down", "ctrl+n":
			if n := len(m.visible); n > 0 {
				m.cursor = (m.cursor + 1) % n
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	before := m.search.Value()
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != before {
		m.apply()
	}
	return m, cmd
}

func (m modelsModel) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Models"))
	b.WriteString("\n\n")
	b.WriteString(m.search.View())
	b.WriteString("\n")
	var filters []string
	for _, f := range query.StatusFilters() {
		if f == m.status {
			filters = append(filters, styleSelected.Render("["+f+"]"))
		} else {
			filters = append(filters, styleMuted.Render(f))
		}
	}
	b.WriteString(strings.Join(filters, " "))
	b.WriteString("\n\n")

	if len(m.visible) == 0 {
		b.WriteString(styleMuted.Render("No models match."))
		b.WriteString("\n")
	}
	start := 0
	if m.cursor >= browserPageSize {
		start = m.cursor - browserPageSize + 1
	}
	end := minInt(start+browserPageSize, len(m.visible))
	for i := start; i < end; i++ {
		mod := m.visible[i]
		row := fmt.Sprintf("%-5d %-24s %-9s %7s  %s", mod.ID, truncateText(mod.Name, 24), mod.Status, formatAccuracy(mod.Accuracy), truncateText(strings.Join(mod.Classes, ","), 30))
		if i == m.cursor {
			b.WriteString(styleSelected.Render("> ") + styleSelectedRow.Render(row))
		} else {
			b.WriteString("  " + styleMuted.Render(row))
		}
		b.WriteString("\n")
	}
	if sel, ok := m.Selected(); ok {
		b.WriteString("\n")
		b.WriteString(ui.Info(sel.Name, fmt.Sprintf("status %s · path %s · size %s · created %s · last used %s",
			ui.Status(sel.Status), orDash(sel.Path), orDash(sel.Size), orDash(sel.CreatedAt), orDash(sel.LastUsed))))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styleSubtle.Render(fmt.Sprintf("showing %d of %d · type to search · tab status · up/down move · esc close", len(m.visible), len(m.all))))
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
