package model

import "context"

// DatasetSource fetches the three collections the dataset view is built from.
type DatasetSource interface {
	UploadedData(ctx context.Context) ([]LabeledImageGroup, error)
	TrainingData(ctx context.Context) ([]LabeledImageGroup, error)
	Models(ctx context.Context) ([]Model, error)
}

// Trainer starts remote training jobs and reports their status.
type Trainer interface {
	StartTraining(ctx context.Context, labels []string) error
	TrainingStatus(ctx context.Context) (TrainingStatus, error)
}

// ImageSource lists the stored images of a label.
type ImageSource interface {
	LabelImages(ctx context.Context, label string, trainedOnly bool) ([]ImageRef, error)
}
