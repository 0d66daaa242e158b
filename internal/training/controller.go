// Package training submits remote training jobs and follows them to
// completion with a single, cancellable poll loop.
package training

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"visionctl/internal/dataset"
	"visionctl/internal/metrics"
	"visionctl/internal/model"
	"visionctl/internal/protocol"
)

// Dataset is the part of the reconciler the controller needs.
type Dataset interface {
	Current() dataset.Snapshot
	Refresh(ctx context.Context) (dataset.Snapshot, error)
}

// ImageCache is flushed once a job completes.
type ImageCache interface {
	InvalidateImages()
}

type Controller struct {
	Trainer  model.Trainer
	Dataset  Dataset
	Images   ImageCache
	Interval time.Duration
	Metrics  *metrics.Collector

	// Logger is optional; when nil the standard log package is used.
	Logger *log.Logger

	// NewJobID defaults to uuid.NewString.
	NewJobID func() string
	now      func() time.Time

	mu        sync.Mutex
	state     State
	job       *Job
	observers map[int]func(State)
	nextObs   int

	loops atomic.Int32
}

func NewController(trainer model.Trainer, ds Dataset) *Controller {
	return &Controller{
		Trainer:  trainer,
		Dataset:  ds,
		Interval: protocol.DefaultPollInterval,
		state:    Idle(),
	}
}

// Job is the handle of one accepted training job.
type Job struct {
	ID     string
	Labels []string

	c      *Controller
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops polling, discards any in-flight result and returns the
// controller to idle. It returns once the poll loop and its ticker are gone,
// so it must not be called from a state observer. It is a no-op once the job
// has finished.
func (j *Job) Cancel() {
	if j == nil {
		return
	}
	j.c.release(j)
	<-j.done
}

// Done closes when the job's poll loop has exited.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveLoops is the number of poll loops currently running.
func (c *Controller) ActiveLoops() int {
	return int(c.loops.Load())
}

// Subscribe registers fn for every published state. Observers run outside
// the controller lock, on the goroutine that caused the transition.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observers == nil {
		c.observers = make(map[int]func(State))
	}
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// StartTraining validates labels against the uploaded collection of the
// current snapshot, submits them and starts polling. At most one job runs;
// a second call while one is active returns model.ErrAlreadyRunning.
func (c *Controller) StartTraining(ctx context.Context, labels []string) (*Job, error) {
	if c.Trainer == nil || c.Dataset == nil {
		return nil, errors.New("trainer and dataset are required")
	}
	labels = normalizeLabels(labels)
	if len(labels) == 0 {
		return nil, model.ErrEmptySelection
	}

	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return nil, model.ErrAlreadyRunning
	}
	if err := checkUploaded(c.Dataset.Current(), labels); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	next, err := c.state.Submit(c.newJobID(), labels, c.clock())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:     next.JobID,
		Labels: next.Labels,
		c:      c,
		ctx:    jobCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.job = job
	notify := c.setLocked(next)
	c.mu.Unlock()
	notify()

	c.logf("training job %s: submitting %d labels", job.ID, len(labels))
	submitErr := c.Trainer.StartTraining(jobCtx, labels)

	c.mu.Lock()
	if c.job != job {
		// Canceled while submitting; release already reset the state.
		c.mu.Unlock()
		close(job.done)
		if submitErr != nil {
			return nil, submitErr
		}
		return nil, context.Canceled
	}
	if submitErr != nil {
		failed, _ := c.state.Rejected(submitErr, c.clock())
		c.job = nil
		notify = c.setLocked(failed)
		c.mu.Unlock()
		cancel()
		close(job.done)
		c.Metrics.ObserveJob(string(PhaseFailed))
		c.logf("training job %s: submit failed: %v", job.ID, submitErr)
		notify()
		return nil, submitErr
	}
	polling, err := c.state.Accepted()
	if err != nil {
		c.job = nil
		notify = c.setLocked(Idle())
		c.mu.Unlock()
		cancel()
		close(job.done)
		notify()
		return nil, err
	}
	notify = c.setLocked(polling)
	c.loops.Add(1)
	c.Metrics.LoopStarted()
	go c.run(job)
	c.mu.Unlock()
	notify()
	return job, nil
}

// Cancel cancels the active job, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	job := c.job
	c.mu.Unlock()
	job.Cancel()
}

// Reset returns a completed or failed state to idle. It does nothing while
// a job is active.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.state.Active() || c.state.Phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	notify := c.setLocked(c.state.Reset())
	c.mu.Unlock()
	notify()
}

func (c *Controller) run(job *Job) {
	defer func() {
		c.loops.Add(-1)
		c.Metrics.LoopStopped()
		close(job.done)
	}()

	interval := c.Interval
	if interval <= 0 {
		interval = protocol.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-job.ctx.Done():
			c.release(job)
			return
		case <-ticker.C:
		}

		status, err := c.Trainer.TrainingStatus(job.ctx)
		if job.ctx.Err() != nil {
			c.release(job)
			return
		}
		c.Metrics.ObservePoll(err)
		if err != nil {
			c.logf("training job %s: status poll failed: %v", job.ID, err)
			if !c.apply(job, func(s State) (State, error) { return s.PollFailed(err) }) {
				c.release(job)
				return
			}
			continue
		}
		if !c.apply(job, func(s State) (State, error) { return s.Polled(status) }) {
			c.release(job)
			return
		}
		if status.IsTraining {
			continue
		}

		c.logf("training job %s: service reports training finished", job.ID)
		if _, err := c.Dataset.Refresh(job.ctx); err != nil {
			c.logf("training job %s: refresh after completion: %v", job.ID, err)
		}
		if job.ctx.Err() != nil {
			c.release(job)
			return
		}
		if c.Images != nil {
			c.Images.InvalidateImages()
		}
		c.finish(job)
		return
	}
}

// apply runs a transition for job. It reports false when job is no longer
// the active job, in which case the result is discarded.
func (c *Controller) apply(job *Job, transition func(State) (State, error)) bool {
	c.mu.Lock()
	if c.job != job {
		c.mu.Unlock()
		return false
	}
	next, err := transition(c.state)
	if err != nil {
		c.mu.Unlock()
		c.logf("training job %s: %v", job.ID, err)
		return false
	}
	notify := c.setLocked(next)
	c.mu.Unlock()
	notify()
	return true
}

func (c *Controller) finish(job *Job) {
	c.mu.Lock()
	if c.job != job {
		c.mu.Unlock()
		return
	}
	done, err := c.state.Completed(c.clock())
	if err != nil {
		c.mu.Unlock()
		c.logf("training job %s: %v", job.ID, err)
		return
	}
	c.job = nil
	notify := c.setLocked(done)
	c.mu.Unlock()
	job.cancel()
	c.Metrics.ObserveJob(string(PhaseCompleted))
	c.logf("training job %s: completed after %d polls", job.ID, done.Polls)
	notify()
}

// release cancels job and, when it is still the active job, resets the
// controller to idle.
func (c *Controller) release(job *Job) {
	job.cancel()
	c.mu.Lock()
	if c.job != job {
		c.mu.Unlock()
		return
	}
	c.job = nil
	notify := c.setLocked(Idle())
	c.mu.Unlock()
	c.Metrics.ObserveJob("canceled")
	c.logf("training job %s: canceled", job.ID)
	notify()
}

// setLocked stores next and returns the deferred observer calls.
func (c *Controller) setLocked(next State) func() {
	c.state = next
	if len(c.observers) == 0 {
		return func() {}
	}
	fns := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(next)
		}
	}
}

func checkUploaded(snap dataset.Snapshot, labels []string) error {
	uploaded, err := snap.UploadedLabels()
	if err != nil {
		return err
	}
	known := model.NewLabelSet(uploaded...)
	var missing []string
	for _, label := range labels {
		if !known.Has(label) {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return &model.ValidationError{
			Field:   "labels",
			Message: fmt.Sprintf("not in the uploaded data: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}

func normalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

func (c *Controller) newJobID() string {
	if c.NewJobID != nil {
		return c.NewJobID()
	}
	return uuid.NewString()
}

func (c *Controller) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Controller) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
