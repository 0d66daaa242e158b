package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"visionctl/internal/model"
)

// Source names one of the three collections the reconciler fetches.
type Source string

const (
	SourceUploaded Source = "uploaded"
	SourceTrained  Source = "trained"
	SourceModels   Source = "models"
)

// Sources lists every source in fetch order.
func Sources() []Source {
	return []Source{SourceUploaded, SourceTrained, SourceModels}
}

// ErrNotLoaded marks a section no refresh has filled yet.
var ErrNotLoaded = errors.New("not loaded yet")

// Section holds either the items of one source or the error that kept them
// from loading. A failed section never reads as an empty collection.
type Section[T any] struct {
	Items []T
	Err   error
}

func (s Section[T]) Loaded() bool { return s.Err == nil }

// Snapshot is one consistent view of the three collections. Snapshots are
// replaced whole and must be treated as read-only.
type Snapshot struct {
	Generation uint64
	FetchedAt  time.Time

	Uploaded Section[model.LabeledImageGroup]
	Trained  Section[model.LabeledImageGroup]
	Models   Section[model.Model]
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Uploaded: Section[model.LabeledImageGroup]{Err: ErrNotLoaded},
		Trained:  Section[model.LabeledImageGroup]{Err: ErrNotLoaded},
		Models:   Section[model.Model]{Err: ErrNotLoaded},
	}
}

// Complete reports whether every source loaded.
func (s Snapshot) Complete() bool {
	return s.Uploaded.Loaded() && s.Trained.Loaded() && s.Models.Loaded()
}

// Failed returns the load error of source, or nil.
func (s Snapshot) Failed(source Source) error {
	switch source {
	case SourceUploaded:
		return s.Uploaded.Err
	case SourceTrained:
		return s.Trained.Err
	case SourceModels:
		return s.Models.Err
	default:
		return fmt.Errorf("unknown source %q", source)
	}
}

// HasAnyData reports whether any loaded section has content.
func (s Snapshot) HasAnyData() bool {
	return (s.Uploaded.Loaded() && len(s.Uploaded.Items) > 0) ||
		(s.Trained.Loaded() && len(s.Trained.Items) > 0) ||
		(s.Models.Loaded() && len(s.Models.Items) > 0)
}

// HasTrainedModel reports whether the service lists any model at all. The
// status of the models is not considered.
func (s Snapshot) HasTrainedModel() bool {
	return s.Models.Loaded() && len(s.Models.Items) > 0
}

// KnownLabels is the union of trained and uploaded labels.
func (s Snapshot) KnownLabels() model.LabelSet {
	set := model.NewLabelSet()
	if s.Trained.Loaded() {
		for _, label := range model.Labels(s.Trained.Items) {
			set.Add(label)
		}
	}
	if s.Uploaded.Loaded() {
		for _, label := range model.Labels(s.Uploaded.Items) {
			set.Add(label)
		}
	}
	return set
}

func (s Snapshot) IsKnownLabel(label string) bool {
	return s.KnownLabels().Has(strings.TrimSpace(label))
}

// UploadedLabels lists the labels that may be selected for training. It
// fails when the uploaded collection did not load.
func (s Snapshot) UploadedLabels() ([]string, error) {
	if !s.Uploaded.Loaded() {
		return nil, &FetchError{Failures: []SourceError{{Source: SourceUploaded, Err: s.Uploaded.Err}}}
	}
	return model.NewLabelSet(model.Labels(s.Uploaded.Items)...).Sorted(), nil
}

func (s Snapshot) TotalUploaded() int {
	return model.TotalImages(s.Uploaded.Items)
}

func (s Snapshot) TotalTrained() int {
	return model.TotalImages(s.Trained.Items)
}

// Summary is a one-line description for refresh notifications.
func (s Snapshot) Summary() string {
	parts := []string{
		groupSummary(SourceUploaded, s.Uploaded),
		groupSummary(SourceTrained, s.Trained),
	}
	if s.Models.Loaded() {
		parts = append(parts, fmt.Sprintf("models: %s", humanize.Comma(int64(len(s.Models.Items)))))
	} else {
		parts = append(parts, "models: unavailable")
	}
	return strings.Join(parts, "; ")
}

func groupSummary(source Source, section Section[model.LabeledImageGroup]) string {
	if !section.Loaded() {
		return fmt.Sprintf("%s: unavailable", source)
	}
	return fmt.Sprintf("%s: %d labels, %s images", source, len(section.Items), humanize.Comma(int64(model.TotalImages(section.Items))))
}

// SourceError is the failure of a single source.
type SourceError struct {
	Source Source
	Err    error
}

// FetchError reports the sources a refresh could not load. The snapshot that
// accompanies it still carries every source that did load.
type FetchError struct {
	Failures []SourceError
}

func (e *FetchError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "dataset fetch failed"
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s: %v", f.Source, f.Err))
	}
	return "failed to load " + strings.Join(msgs, "; ")
}

func (e *FetchError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// Sources lists the failed sources in fetch order.
func (e *FetchError) Sources() []Source {
	if e == nil {
		return nil
	}
	out := make([]Source, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Source)
	}
	return out
}

func (e *FetchError) Has(source Source) bool {
	for _, s := range e.Sources() {
		if s == source {
			return true
		}
	}
	return false
}
