package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"visionctl/internal/dataset"
	"visionctl/internal/training"
)

// homeStatus is what the home screen shows about the service.
type homeStatus struct {
	Snapshot dataset.Snapshot
	Err      error
	Training training.State
}

type homeStatusMsg homeStatus

// homeModel wraps the start menu and refreshes its badges on a timer.
type homeModel struct {
	menu     MenuModel
	load     func() homeStatus
	status   homeStatus
	loaded   bool
	tipIndex int
}

func newHomeModel(load func() homeStatus) homeModel {
	return homeModel{menu: NewMenuModel(StartMenuConfig()), load: load}
}

func (m homeModel) pollStatus() tea.Msg {
	return homeStatusMsg(m.load())
}

func (m homeModel) tickStatus() tea.Cmd {
	return tea.Tick(datasetPollInterval, func(time.Time) tea.Msg {
		return homeStatusMsg(m.load())
	})
}

func (m homeModel) Init() tea.Cmd {
	return tea.Batch(m.pollStatus, m.menu.Init(), tickStartupTip())
}

func (m homeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case homeStatusMsg:
		m.status = homeStatus(msg)
		m.loaded = true
		m.menu.SetItems(homeItems(m.status))
		m.refreshIntro()
		return m, m.tickStatus()
	case tipTickMsg:
		m.tipIndex++
		m.refreshIntro()
		return m, tickStartupTip()
	default:
		updated, cmd := m.menu.Update(msg)
		m.menu = updated.(MenuModel)
		return m, cmd
	}
}

func (m homeModel) View() string { return m.menu.View() }

func (m *homeModel) refreshIntro() {
	summary := "Loading dataset..."
	if m.loaded {
		summary = homeSummary(m.status)
	}
	m.menu.SetIntro([]string{summary, StartupTip(m.tipIndex)})
}

func homeSummary(st homeStatus) string {
	if st.Err != nil && !st.Snapshot.HasAnyData() {
		return "Service unavailable: " + st.Err.Error()
	}
	return st.Snapshot.Summary()
}

// homeItems decorates the start menu with dataset and training badges.
func homeItems(st homeStatus) []MenuItem {
	items := StartMenuConfig().Items
	snap := st.Snapshot
	for i := range items {
		switch StartChoice(items[i].Value) {
		case ChoiceDataset:
			if snap.Uploaded.Err != nil {
				items[i].Badge = "unavailable"
				items[i].BadgeStyle = &styleError
			} else {
				items[i].Badge = fmt.Sprintf("%d labels", len(snap.Uploaded.Items))
			}
		case ChoiceModels:
			if snap.Models.Err == nil {
				items[i].Badge = strconv.Itoa(len(snap.Models.Items))
			}
		case ChoiceTrain:
			switch {
			case st.Training.Active():
				items[i].Badge = "running"
				items[i].BadgeStyle = &styleYellow
			case st.Training.Phase == training.PhaseCompleted:
				items[i].Badge = "done"
				items[i].BadgeStyle = &styleGreen
			case st.Training.Phase == training.PhaseFailed:
				items[i].Badge = "failed"
				items[i].BadgeStyle = &styleError
			}
		case ChoicePredict:
			if snap.Models.Err == nil && !snap.HasTrainedModel() {
				items[i].Badge = "no model"
			}
		}
	}
	return items
}

// runHomeMenu shows the start menu and returns the chosen value, or
// ChoiceQuit when the user backs out.
func runHomeMenu(sc *bufio.Scanner, out io.Writer, interactive bool, load func() homeStatus) (string, error) {
	if !interactive {
		return runFallbackMenu(sc, out, StartMenuConfig(), load)
	}
	p := tea.NewProgram(newHomeModel(load), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	menu := final.(homeModel).menu
	if menu.Quitted() || menu.Chosen() == "" {
		return string(ChoiceQuit), nil
	}
	return menu.Chosen(), nil
}

// runFallbackMenu provides a numbered-list menu for non-interactive terminals.
func runFallbackMenu(sc *bufio.Scanner, out io.Writer, cfg MenuConfig, load func() homeStatus) (string, error) {
	items := cfg.Items
	if load != nil {
		st := load()
		items = homeItems(st)
		fmt.Fprintln(out, homeSummary(st))
	}
	fmt.Fprintln(out)
	for i, item := range items {
		badge := ""
		if item.Badge != "" {
			badge = " [" + item.Badge + "]"
		}
		fmt.Fprintf(out, "  %d) %s%s - %s\n", i+1, item.Label, badge, item.Description)
	}
	return readFallbackChoice(sc, out, items), nil
}

// readFallbackChoice reads until a valid number; EOF or q picks the last item.
func readFallbackChoice(sc *bufio.Scanner, out io.Writer, items []MenuItem) string {
	last := items[len(items)-1].Value
	for {
		fmt.Fprintf(out, "Select [1-%d] or q: ", len(items))
		if !sc.Scan() {
			return last
		}
		input := strings.TrimSpace(sc.Text())
		if input == "q" || input == "quit" {
			return last
		}
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(items) {
			return items[n-1].Value
		}
	}
}

// loadHomeStatus refreshes the dataset with a bounded wait.
func loadHomeStatus(ctx context.Context, svc *services) func() homeStatus {
	return func() homeStatus {
		ctx, cancel := context.WithTimeout(ctx, svc.cfg.RequestTimeout())
		defer cancel()
		snap, err := svc.dataset.Refresh(ctx)
		return homeStatus{Snapshot: snap, Err: err, Training: svc.training.State()}
	}
}
