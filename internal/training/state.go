package training

import (
	"fmt"
	"time"

	"visionctl/internal/model"
)

// Phase is the lifecycle position of a training job.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// ErrInvalidTransition is returned by a transition applied in the wrong phase.
var ErrInvalidTransition = fmt.Errorf("%w: invalid training transition", model.ErrStateConflict)

// State is an immutable value; transitions return a new State.
type State struct {
	Phase    Phase
	JobID    string
	Labels   []string
	Progress string

	Polls       int
	PollErrors  int
	LastPollErr error

	// Err is set in PhaseFailed.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

func Idle() State { return State{Phase: PhaseIdle} }

// Active reports whether a job is being submitted or polled.
func (s State) Active() bool {
	return s.Phase == PhaseSubmitting || s.Phase == PhasePolling
}

func (s State) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}

// Submit starts a new job from any inactive phase.
func (s State) Submit(jobID string, labels []string, at time.Time) (State, error) {
	if s.Active() {
		return s, model.ErrAlreadyRunning
	}
	return State{
		Phase:     PhaseSubmitting,
		JobID:     jobID,
		Labels:    append([]string(nil), labels...),
		Progress:  "Submitting training request",
		StartedAt: at,
	}, nil
}

// Accepted moves a submitted job to polling.
func (s State) Accepted() (State, error) {
	if s.Phase != PhaseSubmitting {
		return s, s.invalid("accept")
	}
	s.Phase = PhasePolling
	s.Progress = "Training started"
	return s, nil
}

// Rejected fails a job whose submission was refused.
func (s State) Rejected(err error, at time.Time) (State, error) {
	if s.Phase != PhaseSubmitting {
		return s, s.invalid("reject")
	}
	s.Phase = PhaseFailed
	s.Err = err
	s.FinishedAt = at
	return s, nil
}

// Polled records a successful status response.
func (s State) Polled(status model.TrainingStatus) (State, error) {
	if s.Phase != PhasePolling {
		return s, s.invalid("poll")
	}
	s.Polls++
	s.LastPollErr = nil
	if status.Progress != "" {
		s.Progress = status.Progress
	}
	return s, nil
}

// PollFailed records a status call that failed. Polling continues.
func (s State) PollFailed(err error) (State, error) {
	if s.Phase != PhasePolling {
		return s, s.invalid("record poll failure")
	}
	s.Polls++
	s.PollErrors++
	s.LastPollErr = err
	return s, nil
}

// Completed finishes a polled job.
func (s State) Completed(at time.Time) (State, error) {
	if s.Phase != PhasePolling {
		return s, s.invalid("complete")
	}
	s.Phase = PhaseCompleted
	s.Progress = "Training completed"
	s.FinishedAt = at
	return s, nil
}

// Reset returns a terminal state to idle. Active states are returned as is.
func (s State) Reset() State {
	if s.Active() {
		return s
	}
	return Idle()
}

// Elapsed is the time since submission, up to FinishedAt once terminal.
func (s State) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

func (s State) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s in phase %s", ErrInvalidTransition, op, s.Phase)
}
