package training

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"visionctl/internal/dataset"
	"visionctl/internal/metrics"
	"visionctl/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testInterval = 5 * time.Millisecond

type statusReply struct {
	status model.TrainingStatus
	err    error
}

type fakeTrainer struct {
	mu       sync.Mutex
	startErr error
	started  [][]string
	replies  []statusReply
	calls    int

	// gate, when set, holds every status call until it is closed or the
	// call's context ends.
	gate  chan struct{}
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeTrainer) StartTraining(_ context.Context, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, append([]string(nil), labels...))
	return f.startErr
}

func (f *fakeTrainer) TrainingStatus(ctx context.Context) (model.TrainingStatus, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return model.TrainingStatus{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if len(f.replies) == 0 {
		return model.TrainingStatus{IsTraining: true}, nil
	}
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	r := f.replies[idx]
	return r.status, r.err
}

func (f *fakeTrainer) statusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTrainer) startCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.started...)
}

type fakeDataset struct {
	snap      dataset.Snapshot
	refreshes atomic.Int32
}

func (d *fakeDataset) Current() dataset.Snapshot { return d.snap }

func (d *fakeDataset) Refresh(context.Context) (dataset.Snapshot, error) {
	d.refreshes.Add(1)
	return d.snap, nil
}

type fakeImages struct{ flushes atomic.Int32 }

func (f *fakeImages) InvalidateImages() { f.flushes.Add(1) }

func uploadedDataset(labels ...string) *fakeDataset {
	groups := make([]model.LabeledImageGroup, 0, len(labels))
	for _, l := range labels {
		groups = append(groups, model.LabeledImageGroup{Label: l, Count: 2})
	}
	return &fakeDataset{snap: dataset.Snapshot{
		Generation: 1,
		Uploaded:   dataset.Section[model.LabeledImageGroup]{Items: groups},
		Trained:    dataset.Section[model.LabeledImageGroup]{Items: []model.LabeledImageGroup{}},
		Models:     dataset.Section[model.Model]{Items: []model.Model{}},
	}}
}

func newTestController(tr *fakeTrainer, ds *fakeDataset) *Controller {
	c := NewController(tr, ds)
	c.Interval = testInterval
	c.Logger = log.New(io.Discard, "", 0)
	c.NewJobID = func() string { return "job-1" }
	return c
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("training job did not finish")
	}
}

func TestStartTraining_PollsUntilComplete(t *testing.T) {
	tr := &fakeTrainer{replies: []statusReply{
		{status: model.TrainingStatus{IsTraining: true, Progress: "Epoch 1/3"}},
		{status: model.TrainingStatus{IsTraining: true, Progress: "Epoch 2/3"}},
		{status: model.TrainingStatus{IsTraining: false, Progress: "done"}},
	}}
	ds := uploadedDataset("cat", "dog")
	images := &fakeImages{}
	c := newTestController(tr, ds)
	c.Images = images
	c.Metrics = metrics.New()

	job, err := c.StartTraining(context.Background(), []string{" cat ", "dog", "cat", ""})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, []string{"cat", "dog"}, job.Labels)
	waitDone(t, job)

	state := c.State()
	assert.Equal(t, PhaseCompleted, state.Phase)
	assert.Equal(t, 3, state.Polls)
	assert.Equal(t, [][]string{{"cat", "dog"}}, tr.startCalls())
	assert.Equal(t, int32(1), ds.refreshes.Load())
	assert.Equal(t, int32(1), images.flushes.Load())
	assert.Zero(t, c.ActiveLoops())

	calls := tr.statusCalls()
	time.Sleep(10 * testInterval)
	assert.Equal(t, calls, tr.statusCalls(), "no status requests after completion")

	c.Reset()
	assert.Equal(t, PhaseIdle, c.State().Phase)
}

func TestStartTraining_SecondStartIsRejected(t *testing.T) {
	tr := &fakeTrainer{}
	c := newTestController(tr, uploadedDataset("cat"))

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)

	second, err := c.StartTraining(context.Background(), []string{"cat"})
	require.ErrorIs(t, err, model.ErrAlreadyRunning)
	require.ErrorIs(t, err, model.ErrStateConflict)
	assert.Nil(t, second)
	assert.Equal(t, 1, c.ActiveLoops())
	assert.Len(t, tr.startCalls(), 1)

	job.Cancel()
	waitDone(t, job)
	assert.Equal(t, PhaseIdle, c.State().Phase)
	assert.Zero(t, c.ActiveLoops())
}

func TestStartTraining_ConcurrentStartsRunOneLoop(t *testing.T) {
	tr := &fakeTrainer{}
	c := newTestController(tr, uploadedDataset("cat"))

	var wg sync.WaitGroup
	var accepted atomic.Int32
	var rejected atomic.Int32
	jobs := make(chan *Job, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := c.StartTraining(context.Background(), []string{"cat"})
			if err == nil {
				accepted.Add(1)
				jobs <- job
				return
			}
			if errors.Is(err, model.ErrAlreadyRunning) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	close(jobs)

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(7), rejected.Load())
	assert.Equal(t, 1, c.ActiveLoops())

	c.Cancel()
	for job := range jobs {
		waitDone(t, job)
	}
}

func TestStartTraining_LabelNotUploadedNeverSubmitted(t *testing.T) {
	tr := &fakeTrainer{}
	c := newTestController(tr, uploadedDataset("cat"))

	_, err := c.StartTraining(context.Background(), []string{"cat", "fox"})
	require.ErrorIs(t, err, model.ErrValidation)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "labels", verr.Field)
	assert.Contains(t, verr.Message, "fox")
	assert.Empty(t, tr.startCalls())
	assert.Equal(t, PhaseIdle, c.State().Phase)
}

func TestStartTraining_UploadedSectionFailed(t *testing.T) {
	ds := uploadedDataset("cat")
	ds.snap.Uploaded = dataset.Section[model.LabeledImageGroup]{Err: errors.New("connection refused")}
	tr := &fakeTrainer{}
	c := newTestController(tr, ds)

	_, err := c.StartTraining(context.Background(), []string{"cat"})
	var fetchErr *dataset.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.Has(dataset.SourceUploaded))
	assert.Empty(t, tr.startCalls())
}

func TestStartTraining_EmptySelection(t *testing.T) {
	tr := &fakeTrainer{}
	c := newTestController(tr, uploadedDataset("cat"))

	_, err := c.StartTraining(context.Background(), []string{" ", ""})
	require.ErrorIs(t, err, model.ErrEmptySelection)
	_, err = c.StartTraining(context.Background(), nil)
	require.ErrorIs(t, err, model.ErrEmptySelection)
	assert.Empty(t, tr.startCalls())
}

func TestStartTraining_SubmitFailure(t *testing.T) {
	submitErr := &model.APIError{Op: "train", Kind: model.KindServer, Message: "no uploaded data", StatusCode: 400}
	tr := &fakeTrainer{startErr: submitErr}
	c := newTestController(tr, uploadedDataset("cat"))

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.ErrorIs(t, err, submitErr)
	assert.Nil(t, job)

	state := c.State()
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Equal(t, submitErr, state.Err)
	assert.Zero(t, c.ActiveLoops())

	time.Sleep(5 * testInterval)
	assert.Zero(t, tr.statusCalls())

	c.Reset()
	assert.Equal(t, PhaseIdle, c.State().Phase)
}

func TestStartTraining_AfterFailureStartsFresh(t *testing.T) {
	tr := &fakeTrainer{startErr: errors.New("boom")}
	c := newTestController(tr, uploadedDataset("cat"))

	_, err := c.StartTraining(context.Background(), []string{"cat"})
	require.Error(t, err)

	tr.mu.Lock()
	tr.startErr = nil
	tr.mu.Unlock()

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)
	state := c.State()
	assert.Equal(t, PhasePolling, state.Phase)
	assert.NoError(t, state.Err)
	job.Cancel()
	waitDone(t, job)
}

func TestPoll_TransientErrorsKeepPolling(t *testing.T) {
	transient := &model.APIError{Op: "training_status", Kind: model.KindTransport, Message: "request failed", Retryable: true}
	tr := &fakeTrainer{replies: []statusReply{
		{err: transient},
		{err: transient},
		{status: model.TrainingStatus{IsTraining: true, Progress: "Epoch 3/3"}},
		{status: model.TrainingStatus{IsTraining: false}},
	}}
	c := newTestController(tr, uploadedDataset("cat"))

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)
	waitDone(t, job)

	state := c.State()
	assert.Equal(t, PhaseCompleted, state.Phase)
	assert.Equal(t, 2, state.PollErrors)
	assert.Equal(t, 4, state.Polls)
	assert.NoError(t, state.LastPollErr)
}

func TestPoll_RequestsNeverOverlap(t *testing.T) {
	tr := &fakeTrainer{
		delay: 3 * testInterval,
		replies: []statusReply{
			{status: model.TrainingStatus{IsTraining: true}},
			{status: model.TrainingStatus{IsTraining: true}},
			{status: model.TrainingStatus{IsTraining: false}},
		},
	}
	c := newTestController(tr, uploadedDataset("cat"))

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)
	waitDone(t, job)

	assert.Equal(t, int32(1), tr.maxInFlight.Load())
	assert.Equal(t, 3, tr.statusCalls())
}

func TestCancel_DiscardsInFlightResult(t *testing.T) {
	tr := &fakeTrainer{
		gate:    make(chan struct{}),
		replies: []statusReply{{status: model.TrainingStatus{IsTraining: false}}},
	}
	ds := uploadedDataset("cat")
	c := newTestController(tr, ds)

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return tr.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	c.Cancel()
	close(tr.gate)
	waitDone(t, job)

	assert.Equal(t, PhaseIdle, c.State().Phase)
	assert.Zero(t, ds.refreshes.Load())
	assert.Zero(t, c.ActiveLoops())

	job.Cancel()
	c.Cancel()
}

func TestCancel_ParentContext(t *testing.T) {
	tr := &fakeTrainer{}
	c := newTestController(tr, uploadedDataset("cat"))

	ctx, cancel := context.WithCancel(context.Background())
	job, err := c.StartTraining(ctx, []string{"cat"})
	require.NoError(t, err)
	cancel()
	waitDone(t, job)

	assert.Equal(t, PhaseIdle, c.State().Phase)
	assert.Zero(t, c.ActiveLoops())
}

func TestCancel_ImmediateRestartRunsOneLoop(t *testing.T) {
	tr := &fakeTrainer{}
	c := newTestController(tr, uploadedDataset("cat"))

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)
	for range 50 {
		time.Sleep(testInterval + time.Millisecond)
		job.Cancel()

		select {
		case <-job.Done():
		default:
			t.Fatal("cancel returned before the poll loop exited")
		}
		assert.Zero(t, c.ActiveLoops())

		job, err = c.StartTraining(context.Background(), []string{"cat"})
		require.NoError(t, err)
		require.Equal(t, 1, c.ActiveLoops())
	}
	job.Cancel()
	assert.Zero(t, c.ActiveLoops())
}

func TestReset_NoopWhileActive(t *testing.T) {
	tr := &fakeTrainer{}
	c := newTestController(tr, uploadedDataset("cat"))

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)
	c.Reset()
	assert.Equal(t, PhasePolling, c.State().Phase)

	job.Cancel()
	waitDone(t, job)
}

func TestSubscribe_ObservesPhases(t *testing.T) {
	tr := &fakeTrainer{replies: []statusReply{
		{status: model.TrainingStatus{IsTraining: true, Progress: "Epoch 1/1"}},
		{status: model.TrainingStatus{IsTraining: false}},
	}}
	c := newTestController(tr, uploadedDataset("cat"))

	var mu sync.Mutex
	var phases []Phase
	var progress []string
	unsubscribe := c.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
		progress = append(progress, s.Progress)
	})

	job, err := c.StartTraining(context.Background(), []string{"cat"})
	require.NoError(t, err)
	waitDone(t, job)
	unsubscribe()
	c.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseSubmitting, PhasePolling, PhasePolling, PhasePolling, PhaseCompleted}, phases)
	assert.Equal(t, "Epoch 1/1", progress[2])
}
