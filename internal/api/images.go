package api

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/patrickmn/go-cache"

	"visionctl/internal/model"
	"visionctl/internal/protocol"
)

type imagesResponse struct {
	Images []model.ImageRef `json:"images"`
}

// TrainingImages lists the stored images the active model was trained on.
func (c *Client) TrainingImages(ctx context.Context, label string) ([]model.ImageRef, error) {
	return c.cachedImages(ctx, "training_images", protocol.PathTrainingImages, label)
}

// SampleImages lists uploaded images for label.
func (c *Client) SampleImages(ctx context.Context, label string) ([]model.ImageRef, error) {
	return c.cachedImages(ctx, "sample_images", protocol.PathSampleImages, label)
}

// LabelImages returns trained images for label, falling back to uploaded
// samples when trainedOnly is false and none are trained.
func (c *Client) LabelImages(ctx context.Context, label string, trainedOnly bool) ([]model.ImageRef, error) {
	trained, trainedErr := c.TrainingImages(ctx, label)
	if trainedErr == nil && len(trained) > 0 {
		return trained, nil
	}
	if trainedOnly {
		if trainedErr != nil {
			return nil, trainedErr
		}
		return []model.ImageRef{}, nil
	}
	if trainedErr != nil {
		if errors.Is(trainedErr, context.Canceled) || errors.Is(trainedErr, context.DeadlineExceeded) {
			return nil, trainedErr
		}
		c.logf("training images for %q unavailable, using samples: %v", label, trainedErr)
	}

	samples, err := c.SampleImages(ctx, label)
	if err != nil {
		if trainedErr != nil {
			return nil, trainedErr
		}
		return nil, err
	}
	return samples, nil
}

// InvalidateImages drops cached image listings.
func (c *Client) InvalidateImages() {
	if c.images == nil {
		return
	}
	c.images.Flush()
}

func (c *Client) cachedImages(ctx context.Context, op, prefix, label string) ([]model.ImageRef, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, &model.ValidationError{Field: "label", Message: "label is required"}
	}

	key := prefix + label
	if c.images != nil {
		if v, ok := c.images.Get(key); ok {
			if refs, ok := v.([]model.ImageRef); ok {
				return cloneRefs(refs), nil
			}
		}
	}

	var out imagesResponse
	if err := c.getJSON(ctx, op, prefix+url.PathEscape(label), &out); err != nil {
		return nil, err
	}
	refs := out.Images
	if refs == nil {
		refs = []model.ImageRef{}
	}
	if c.images != nil {
		c.images.Set(key, cloneRefs(refs), cache.DefaultExpiration)
	}
	return cloneRefs(refs), nil
}

func cloneRefs(refs []model.ImageRef) []model.ImageRef {
	out := make([]model.ImageRef, len(refs))
	copy(out, refs)
	return out
}
