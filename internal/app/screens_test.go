package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionctl/internal/gallery"
	"visionctl/internal/model"
	"visionctl/internal/query"
	"visionctl/internal/store"
	"visionctl/internal/training"
)

func testRefs(n int) []model.ImageRef {
	refs := make([]model.ImageRef, n)
	for i := range refs {
		refs[i] = model.ImageRef{Filename: fmt.Sprintf("img%d.jpg", i), Filepath: fmt.Sprintf("train/cat/img%d.jpg", i)}
	}
	return refs
}

func testURL(label, filename string) string {
	return "http://svc.test/static/train/" + label + "/" + filename
}

func newTestGallery(t *testing.T, n int, probe func(ctx context.Context, label, filename string) error) galleryModel {
	t.Helper()
	cursor, err := gallery.Open(testRefs(n))
	require.NoError(t, err)
	return newGalleryModel("cat", cursor, testURL, probe)
}

func updateGallery(t *testing.T, m galleryModel, msg tea.Msg) (galleryModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(galleryModel), cmd
}

func TestGalleryModel_NavigationWraps(t *testing.T) {
	m := newTestGallery(t, 5, nil)

	m, _ = updateGallery(t, m, key("left"))
	assert.Equal(t, 4, m.cursor.Index())
	m, _ = updateGallery(t, m, key("l"))
	assert.Equal(t, 0, m.cursor.Index())
	m, _ = updateGallery(t, m, key("G"))
	assert.Equal(t, 4, m.cursor.Index())
	m, _ = updateGallery(t, m, key("g"))
	assert.Equal(t, 0, m.cursor.Index())
	m, _ = updateGallery(t, m, key(" "))
	assert.Equal(t, 1, m.cursor.Index())

	view := m.View()
	assert.Contains(t, view, "Gallery · cat")
	assert.Contains(t, view, "2/5")
	assert.Contains(t, view, testURL("cat", "img1.jpg"))

	_, cmd := updateGallery(t, m, key("q"))
	require.NotNil(t, cmd)
}

func TestGalleryModel_FailedProbeShowsPlaceholder(t *testing.T) {
	var probed []string
	probe := func(_ context.Context, label, filename string) error {
		probed = append(probed, label+"/"+filename)
		if filename == "img1.jpg" {
			return errors.New("404")
		}
		return nil
	}
	m := newTestGallery(t, 3, probe)

	initCmd := m.Init()
	require.NotNil(t, initCmd)
	m, _ = updateGallery(t, m, initCmd())
	assert.NotContains(t, m.View(), gallery.Placeholder)

	m, cmd := updateGallery(t, m, key("right"))
	require.NotNil(t, cmd)
	m, _ = updateGallery(t, m, cmd())
	assert.Contains(t, m.View(), gallery.Placeholder)

	// results are remembered per file
	m, _ = updateGallery(t, m, key("left"))
	_, cmd = updateGallery(t, m, key("right"))
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"cat/img0.jpg", "cat/img1.jpg"}, probed)
}

func TestGalleryModel_FilmstripWindow(t *testing.T) {
	m := newTestGallery(t, 9, nil)

	strip := m.filmstrip()
	for _, name := range []string{"img6", "img7", "img8", "img0", "img1", "img2", "img3"} {
		assert.Contains(t, strip, name)
	}
	assert.NotContains(t, strip, "img4")
	assert.NotContains(t, strip, "img5")

	small := newTestGallery(t, 3, nil)
	assert.Equal(t, 3, strings.Count(small.filmstrip(), "img"))
}

func testModels() []model.Model {
	acc := 0.91
	return []model.Model{
		{ID: 1, Name: "cats-v1", Path: "/models/1", Status: model.StatusTrained, Accuracy: &acc, Classes: []string{"cat"}},
		{ID: 2, Name: "dogs-v1", Path: "/models/2", Status: model.StatusTraining, Classes: []string{"dog"}},
		{ID: 3, Name: "cats-v2", Path: "/models/3", Status: model.StatusFailed, Classes: []string{"cat", "dog"}},
		{ID: 4, Name: "legacy", Path: "/models/4"},
	}
}

func updateModels(t *testing.T, m modelsModel, msgs ...tea.Msg) modelsModel {
	t.Helper()
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(modelsModel)
	}
	return m
}

func TestModelsModel_TypingFilters(t *testing.T) {
	m := newModelsModel(testModels(), "", "")
	assert.Equal(t, query.StatusAll, m.status)
	assert.Len(t, m.visible, 4)

	m = updateModels(t, m, key("c"), key("a"), key("t"))
	require.Len(t, m.visible, 2)
	assert.Equal(t, int64(1), m.visible[0].ID)
	assert.Equal(t, int64(3), m.visible[1].ID)
	assert.Contains(t, m.View(), "showing 2 of 4")

	m = updateModels(t, m, key("up"))
	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, int64(3), sel.ID)
}

func TestModelsModel_TabCyclesStatus(t *testing.T) {
	m := newModelsModel(testModels(), "", query.StatusAll)

	m = updateModels(t, m, key("tab"))
	assert.Equal(t, string(model.StatusTraining), m.status)
	require.Len(t, m.visible, 1)
	assert.Equal(t, int64(2), m.visible[0].ID)

	m = updateModels(t, m, key("tab"), key("tab"))
	assert.Equal(t, string(model.StatusFailed), m.status)

	m = updateModels(t, m, key("tab"))
	assert.Equal(t, query.StatusAll, m.status)
	assert.Len(t, m.visible, 4, "models without a status only show under all")
}

func TestModelsModel_NoMatches(t *testing.T) {
	m := newModelsModel(testModels(), "zebra", "")
	_, ok := m.Selected()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "No models match.")
}

func updateTrain(t *testing.T, m trainModel, msg tea.Msg) (trainModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(trainModel), cmd
}

func TestTrainModel_FollowsStatesUntilDone(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	final := training.State{Phase: training.PhaseCompleted, Progress: "Training completed", Polls: 4, StartedAt: start, FinishedAt: start.Add(8 * time.Second)}
	current := training.State{Phase: training.PhaseSubmitting, StartedAt: start}
	job := &training.Job{ID: "job-1", Labels: []string{"cat", "dog"}}
	m := newTrainModel(job, func() training.State { return current }, make(chan training.State))
	m.now = func() time.Time { return start.Add(5 * time.Second) }

	m, cmd := updateTrain(t, m, trainStateMsg(training.State{Phase: training.PhasePolling, Progress: "Epoch 2/10", Polls: 2, StartedAt: start}))
	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Labels: cat, dog")
	assert.Contains(t, view, "Epoch 2/10")
	assert.Contains(t, view, "elapsed 5s · polls 2")
	assert.Contains(t, view, "q/esc/ctrl+c cancel")

	current = final
	m, _ = updateTrain(t, m, trainDoneMsg{})
	assert.True(t, m.finished)
	assert.Contains(t, m.View(), "✓ Training completed")

	// late states from the subscription are ignored
	m, cmd = updateTrain(t, m, trainStateMsg(training.State{Phase: training.PhasePolling, Progress: "Epoch 9/10"}))
	assert.Nil(t, cmd)
	assert.Equal(t, training.PhaseCompleted, m.state.Phase)

	m, cmd = updateTrain(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.False(t, m.canceled)
}

func TestTrainModel_FailedView(t *testing.T) {
	failed := training.State{Phase: training.PhaseFailed, Err: errors.New("service rejected labels")}
	job := &training.Job{ID: "job-2", Labels: []string{"cat"}}
	m := newTrainModel(job, func() training.State { return failed }, make(chan training.State))

	m, _ = updateTrain(t, m, trainDoneMsg{})
	assert.Contains(t, m.View(), "error: service rejected labels")
}

func TestTrainStats(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := training.State{Phase: training.PhasePolling, Polls: 5, PollErrors: 2, LastPollErr: errors.New("timeout"), StartedAt: start}

	assert.Equal(t, "elapsed 12s · polls 5 · poll errors 2 · retrying: timeout", trainStats(st, start.Add(12*time.Second)))
	assert.Equal(t, "elapsed 0s · polls 0", trainStats(training.State{StartedAt: start}, start))
}

func TestHistoryModel_RefreshesWhenRecordsChange(t *testing.T) {
	records := []store.PredictionRecord{}
	load := func(context.Context) ([]store.PredictionRecord, error) { return records, nil }

	m := newHistoryModel(load)
	assert.Contains(t, m.content, "No predictions yet")

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	m = updated.(historyModel)

	records = append(records, store.PredictionRecord{
		CreatedAt:  time.Now().Add(-time.Minute),
		Filename:   "kitten.jpg",
		Label:      "cat",
		Confidence: 0.97,
		Tier:       "perfect_match",
		Matches:    2,
	})
	updated, cmd := m.Update(historyTickMsg(time.Now()))
	m = updated.(historyModel)
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.count)

	view := m.View()
	assert.Contains(t, view, "1 records")
	assert.Contains(t, view, "kitten.jpg")
	assert.Contains(t, view, "97.0%")
}

func TestHistoryModel_LoadError(t *testing.T) {
	m := newHistoryModel(func(context.Context) ([]store.PredictionRecord, error) {
		return nil, errors.New("database is locked")
	})
	assert.Contains(t, m.content, "Error reading history: database is locked")
}
