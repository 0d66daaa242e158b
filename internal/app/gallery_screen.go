package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"visionctl/internal/gallery"
)

const (
	probeTimeout = 5 * time.Second
	stripRadius  = 3
)

type probeResultMsg struct {
	filename string
	err      error
}

// galleryModel is a circular image viewer over one label.
type galleryModel struct {
	label  string
	cursor *gallery.Cursor
	urlFor func(label, filename string) string
	probe  func(ctx context.Context, label, filename string) error

	// available holds probe results by filename; absent means not probed yet.
	available map[string]bool
	width     int
}

func newGalleryModel(label string, cursor *gallery.Cursor, urlFor func(label, filename string) string, probe func(ctx context.Context, label, filename string) error) galleryModel {
	return galleryModel{
		label:     label,
		cursor:    cursor,
		urlFor:    urlFor,
		probe:     probe,
		available: make(map[string]bool),
		width:     TerminalWidth(),
	}
}

func (m galleryModel) probeCurrent() tea.Cmd {
	if m.probe == nil {
		return nil
	}
	filename := m.cursor.Current().Filename
	if _, done := m.available[filename]; done {
		return nil
	}
	label, probe := m.label, m.probe
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		return probeResultMsg{filename: filename, err: probe(ctx, label, filename)}
	}
}

func (m galleryModel) Init() tea.Cmd {
	return m.probeCurrent()
}

func (m galleryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case probeResultMsg:
		m.available[msg.filename] = msg.err == nil
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "right", "l", "n", " ":
			m.cursor.Next()
		case "left", "h", "p":
			m.cursor.Previous()
		case "home", "g":
			_, _ = m.cursor.JumpTo(0)
		case "end", "G":
			_, _ = m.cursor.JumpTo(m.cursor.Len() - 1)
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		default:
			return m, nil
		}
		return m, m.probeCurrent()
	}
	return m, nil
}

func (m galleryModel) View() string {
	current := m.cursor.Current()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  %s\n\n", styleTitle.Render("Gallery · "+m.label), styleMuted.Render(m.cursor.Position())))

	ok, probed := m.available[current.Filename]
	switch {
	case probed && !ok:
		b.WriteString(styleYellow.Render(gallery.Placeholder))
	default:
		b.WriteString(styleBrandStrong.Render(current.Filename))
	}
	b.WriteString("\n")
	b.WriteString(styleSubtle.Render(m.urlFor(m.label, current.Filename)))
	b.WriteString("\n\n")
	b.WriteString(m.filmstrip())
	b.WriteString("\n\n")
	b.WriteString(styleSubtle.Render("left/right or h/l browse · g/G first/last · q/esc back"))
	return stylePanel.MaxWidth(maxInt(m.width, 20)).Render(b.String())
}

// filmstrip shows the neighbours of the current image, wrapping at the ends.
func (m galleryModel) filmstrip() string {
	items := m.cursor.Items()
	n := len(items)
	idx := m.cursor.Index()
	span := stripRadius
	if 2*span+1 > n {
		// every image fits; start from the first
		var cells []string
		for i, item := range items {
			cells = append(cells, stripCell(item.Filename, i == idx))
		}
		return strings.Join(cells, " ")
	}
	cells := make([]string, 0, 2*span+1)
	for off := -span; off <= span; off++ {
		i := ((idx+off)%n + n) % n
		cells = append(cells, stripCell(items[i].Filename, off == 0))
	}
	return strings.Join(cells, " ")
}

func stripCell(name string, selected bool) string {
	name = truncateText(name, 14)
	if selected {
		return styleSelectedRow.Render(" " + name + " ")
	}
	return styleMuted.Render(" " + name + " ")
}
