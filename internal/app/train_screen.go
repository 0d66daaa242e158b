package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"visionctl/internal/training"
)

type trainStateMsg training.State

type trainDoneMsg struct{}

// trainModel follows one training job until it finishes or is canceled.
type trainModel struct {
	job      *training.Job
	current  func() training.State
	states   <-chan training.State
	spinner  spinner.Model
	state    training.State
	now      func() time.Time
	finished bool
	canceled bool
}

func newTrainModel(job *training.Job, current func() training.State, states <-chan training.State) trainModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styleBrandStrong))
	return trainModel{
		job:     job,
		current: current,
		states:  states,
		spinner: sp,
		state:   current(),
		now:     time.Now,
	}
}

func (m trainModel) waitState() tea.Msg {
	select {
	case st := <-m.states:
		return trainStateMsg(st)
	case <-m.job.Done():
		return trainDoneMsg{}
	}
}

func (m trainModel) waitDone() tea.Msg {
	<-m.job.Done()
	return trainDoneMsg{}
}

func (m trainModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitState, m.waitDone)
}

func (m trainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if !m.finished {
				m.job.Cancel()
				m.canceled = true
			}
			return m, tea.Quit
		}
		return m, nil
	case trainStateMsg:
		if m.finished {
			return m, nil
		}
		m.state = training.State(msg)
		return m, m.waitState
	case trainDoneMsg:
		if m.finished {
			return m, nil
		}
		m.finished = true
		m.state = m.current()
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m trainModel) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Training"))
	b.WriteString("\n\n")
	b.WriteString(styleMuted.Render("Labels: " + strings.Join(m.job.Labels, ", ")))
	b.WriteString("\n\n")

	st := m.state
	switch st.Phase {
	case training.PhaseCompleted:
		b.WriteString(styleGreen.Render("✓ " + st.Progress))
	case training.PhaseFailed:
		b.WriteString(errorLine(st.Err))
	case training.PhaseIdle:
		b.WriteString(styleMuted.Render("Training canceled"))
	default:
		b.WriteString(m.spinner.View() + " " + st.Progress)
	}
	b.WriteString("\n")
	b.WriteString(styleSubtle.Render(trainStats(st, m.now())))
	b.WriteString("\n\n")
	if m.finished {
		b.WriteString(styleSubtle.Render("q/esc close"))
	} else {
		b.WriteString(styleSubtle.Render("q/esc/ctrl+c cancel"))
	}
	return stylePanel.Render(b.String())
}

func trainStats(st training.State, now time.Time) string {
	line := fmt.Sprintf("elapsed %s · polls %d", st.Elapsed(now).Round(time.Second), st.Polls)
	if st.PollErrors > 0 {
		line += fmt.Sprintf(" · poll errors %d", st.PollErrors)
	}
	if st.LastPollErr != nil {
		line += " · retrying: " + st.LastPollErr.Error()
	}
	return line
}

// subscribeStates forwards controller states to a buffered channel without
// ever blocking the poll loop. Overflowing states are dropped; readers fall
// back to Controller.State once the job is done.
func subscribeStates(ctrl *training.Controller) (<-chan training.State, func()) {
	ch := make(chan training.State, 32)
	unsubscribe := ctrl.Subscribe(func(st training.State) {
		select {
		case ch <- st:
		default:
		}
	})
	return ch, unsubscribe
}

// followTraining shows job progress until it finishes and returns the final
// state. ctx cancellation cancels the job.
func followTraining(ctx context.Context, out io.Writer, interactive bool, ctrl *training.Controller, job *training.Job) (training.State, error) {
	states, stop := subscribeStates(ctrl)
	defer stop()

	if interactive {
		p := tea.NewProgram(newTrainModel(job, ctrl.State, states), tea.WithContext(ctx))
		final, err := p.Run()
		if err != nil && ctx.Err() == nil {
			job.Cancel()
			return ctrl.State(), err
		}
		if tm, ok := final.(trainModel); ok && tm.canceled {
			return ctrl.State(), context.Canceled
		}
	} else {
		followTrainingLines(ctx, out, job, states)
	}

	if ctx.Err() != nil {
		job.Cancel()
		return ctrl.State(), ctx.Err()
	}
	return ctrl.State(), nil
}

// followTrainingLines prints each new progress message until the job ends.
func followTrainingLines(ctx context.Context, out io.Writer, job *training.Job, states <-chan training.State) {
	last := ""
	for {
		select {
		case <-ctx.Done():
			job.Cancel()
			return
		case <-job.Done():
			for {
				select {
				case st := <-states:
					last = printProgress(out, st, last)
				default:
					return
				}
			}
		case st := <-states:
			last = printProgress(out, st, last)
		}
	}
}

func printProgress(out io.Writer, st training.State, last string) string {
	if st.Progress == "" || st.Progress == last {
		return last
	}
	fmt.Fprintln(out, statusLine("Training", st.Progress))
	return st.Progress
}
