// Package dataset reconciles the uploaded, trained and model collections of
// the inference service into one snapshot.
package dataset

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"visionctl/internal/metrics"
	"visionctl/internal/model"
)

type Reconciler struct {
	Source  model.DatasetSource
	Metrics *metrics.Collector

	// Logger is optional; when nil the standard log package is used.
	Logger *log.Logger

	now        func() time.Time
	generation atomic.Uint64
	current    atomic.Pointer[Snapshot]

	// publishMu orders the generation check with the swap.
	publishMu sync.Mutex
}

func NewReconciler(src model.DatasetSource) *Reconciler {
	r := &Reconciler{Source: src, now: time.Now}
	r.current.Store(emptySnapshot())
	return r
}

// Current returns the last published snapshot.
func (r *Reconciler) Current() Snapshot {
	if snap := r.current.Load(); snap != nil {
		return *snap
	}
	return *emptySnapshot()
}

// Refresh fetches the three collections concurrently and publishes them as
// one snapshot. A *FetchError lists the sources that failed; the returned
// snapshot still holds every source that loaded. A refresh that finishes
// after a newer one has published is returned but not published. When ctx
// ends before the fetches return nothing is published.
func (r *Reconciler) Refresh(ctx context.Context) (Snapshot, error) {
	if r.Source == nil {
		return Snapshot{}, errors.New("dataset source is required")
	}
	gen := r.generation.Add(1)

	snap := &Snapshot{Generation: gen}
	var g errgroup.Group
	g.Go(func() error {
		snap.Uploaded.Items, snap.Uploaded.Err = r.Source.UploadedData(ctx)
		return nil
	})
	g.Go(func() error {
		snap.Trained.Items, snap.Trained.Err = r.Source.TrainingData(ctx)
		return nil
	})
	g.Go(func() error {
		snap.Models.Items, snap.Models.Err = r.Source.Models(ctx)
		return nil
	})
	_ = g.Wait()
	snap.FetchedAt = r.clock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logf("dataset refresh %d abandoned: %v", gen, ctxErr)
		return *snap, ctxErr
	}

	normalize(snap)
	err := fetchError(snap)
	r.Metrics.ObserveRefresh(err)

	if !r.publish(snap) {
		r.logf("dataset refresh %d superseded by a newer snapshot", gen)
	}
	if err != nil {
		r.logf("dataset refresh %d partial: %v", gen, err)
		return *snap, err
	}
	return *snap, nil
}

// RemoveModel drops a deleted model from the published snapshot without a
// refetch. It reports whether the model was present.
func (r *Reconciler) RemoveModel(id int64) bool {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	cur := r.current.Load()
	if cur == nil || !cur.Models.Loaded() {
		return false
	}
	kept := make([]model.Model, 0, len(cur.Models.Items))
	for _, m := range cur.Models.Items {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(cur.Models.Items) {
		return false
	}
	next := *cur
	next.Models = Section[model.Model]{Items: kept}
	r.current.Store(&next)
	return true
}

func (r *Reconciler) publish(snap *Snapshot) bool {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	if cur := r.current.Load(); cur != nil && cur.Generation > snap.Generation {
		return false
	}
	r.current.Store(snap)
	return true
}

func normalize(snap *Snapshot) {
	if snap.Uploaded.Err != nil {
		snap.Uploaded.Items = nil
	} else if snap.Uploaded.Items == nil {
		snap.Uploaded.Items = []model.LabeledImageGroup{}
	}
	if snap.Trained.Err != nil {
		snap.Trained.Items = nil
	} else if snap.Trained.Items == nil {
		snap.Trained.Items = []model.LabeledImageGroup{}
	}
	if snap.Models.Err != nil {
		snap.Models.Items = nil
	} else if snap.Models.Items == nil {
		snap.Models.Items = []model.Model{}
	}
}

func fetchError(snap *Snapshot) error {
	var failures []SourceError
	for _, source := range Sources() {
		if err := snap.Failed(source); err != nil {
			failures = append(failures, SourceError{Source: source, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &FetchError{Failures: failures}
}

func (r *Reconciler) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
