package model

import (
	"sort"
	"strings"
)

// ModelStatus is the lifecycle status the service reports for a model.
// An absent status decodes to StatusUnknown.
type ModelStatus string

const (
	StatusUnknown  ModelStatus = ""
	StatusTraining ModelStatus = "training"
	StatusTrained  ModelStatus = "trained"
	StatusFailed   ModelStatus = "failed"
)

// String renders the status for display; an absent status renders as "unknown".
func (s ModelStatus) String() string {
	if s == StatusUnknown {
		return "unknown"
	}
	return string(s)
}

// LabeledImageGroup is one label of the uploaded or trained collection.
// SampleFiles is a bounded prefix of the label's files, not a full listing.
type LabeledImageGroup struct {
	Label       string   `json:"label" yaml:"label"`
	Count       int      `json:"count" yaml:"count"`
	SampleFiles []string `json:"sample_files" yaml:"sample_files"`
}

// Model is a trained model as listed by the service. ID is the identity;
// names are not unique.
type Model struct {
	ID        int64       `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	Path      string      `json:"path" yaml:"path"`
	Status    ModelStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Accuracy  *float64    `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
	Classes   []string    `json:"classes,omitempty" yaml:"classes,omitempty"`
	Size      string      `json:"size,omitempty" yaml:"size,omitempty"`
	CreatedAt string      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	LastUsed  string      `json:"last_used,omitempty" yaml:"last_used,omitempty"`
}

// ImageRef points at a stored image on the service.
type ImageRef struct {
	Filename string `json:"filename" yaml:"filename"`
	Filepath string `json:"filepath" yaml:"filepath"`
}

// MatchedImage is a training image the service associates with a prediction.
type MatchedImage struct {
	ImageRef          `yaml:",inline"`
	SimilarityScore   *float64 `json:"similarity_score,omitempty" yaml:"similarity_score,omitempty"`
	FeatureSimilarity *float64 `json:"feature_similarity,omitempty" yaml:"feature_similarity,omitempty"`
	ColorSimilarity   *float64 `json:"color_similarity,omitempty" yaml:"color_similarity,omitempty"`
}

// PredictionResult is the service's answer to a predict-with-match request.
type PredictionResult struct {
	PredictedLabel string         `json:"prediction" yaml:"prediction"`
	Confidence     float64        `json:"confidence" yaml:"confidence"`
	MatchedImages  []MatchedImage `json:"matched_training_images,omitempty" yaml:"matched_training_images,omitempty"`
}

// TrainingStatus is the body of GET /training-status.
type TrainingStatus struct {
	IsTraining bool   `json:"is_training" yaml:"is_training"`
	Progress   string `json:"progress" yaml:"progress"`
}

// UploadResult is the body of POST /upload.
type UploadResult struct {
	Status   bool   `json:"status" yaml:"status"`
	ImageID  int64  `json:"image_id" yaml:"image_id"`
	Filename string `json:"filename" yaml:"filename"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// LabelSet is a set of label names.
type LabelSet map[string]struct{}

// NewLabelSet builds a set from labels, ignoring blanks.
func NewLabelSet(labels ...string) LabelSet {
	set := make(LabelSet, len(labels))
	for _, label := range labels {
		set.Add(label)
	}
	return set
}

// Add inserts label after trimming surrounding whitespace.
func (s LabelSet) Add(label string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	s[label] = struct{}{}
}

// Has reports membership. A nil set contains nothing.
func (s LabelSet) Has(label string) bool {
	if s == nil {
		return false
	}
	_, ok := s[label]
	return ok
}

// Sorted returns the labels in lexical order.
func (s LabelSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for label := range s {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Labels returns the label names of groups in their original order.
func Labels(groups []LabeledImageGroup) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Label)
	}
	return out
}

// TotalImages sums the counts of groups.
func TotalImages(groups []LabeledImageGroup) int {
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	return total
}
