package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"visionctl/internal/dataset"
	"visionctl/internal/model"
)

func TestBuildFeedback(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantError    bool
		wantMessage  string
		wantRecovery string
	}{
		{
			name:         "success",
			wantMessage:  "Train done",
			wantRecovery: "Exit",
		},
		{
			name:         "canceled is not an error",
			err:          fmt.Errorf("follow: %w", context.Canceled),
			wantMessage:  "Train canceled",
			wantRecovery: "Select Train again",
		},
		{
			name:         "validation",
			err:          &model.ValidationError{Field: "labels", Message: "not in the uploaded data: cat"},
			wantError:    true,
			wantMessage:  "Train: not in the uploaded data: cat",
			wantRecovery: "Fix the input",
		},
		{
			name:         "empty selection",
			err:          model.ErrEmptySelection,
			wantError:    true,
			wantRecovery: "--all",
		},
		{
			name:         "already running",
			err:          model.ErrAlreadyRunning,
			wantError:    true,
			wantRecovery: "Wait for the current training job",
		},
		{
			name:         "empty gallery",
			err:          model.ErrEmptyGallery,
			wantError:    true,
			wantRecovery: "Upload images",
		},
		{
			name: "fetch error names sources",
			err: &dataset.FetchError{Failures: []dataset.SourceError{
				{Source: dataset.SourceTrained, Err: errors.New("boom")},
				{Source: dataset.SourceModels, Err: errors.New("boom")},
			}},
			wantError:    true,
			wantRecovery: "Unavailable: trained, models",
		},
		{
			name:         "transport",
			err:          &model.APIError{Op: "models", Kind: model.KindTransport, Message: "request failed", Retryable: true},
			wantError:    true,
			wantRecovery: "reachable",
		},
		{
			name:         "retryable server error",
			err:          &model.APIError{Op: "models", Kind: model.KindServer, StatusCode: 503, Retryable: true},
			wantError:    true,
			wantRecovery: "temporary problem",
		},
		{
			name:         "rejected",
			err:          &model.APIError{Op: "upload", Kind: model.KindServer, StatusCode: 422, Message: "bad label"},
			wantError:    true,
			wantRecovery: "rejected",
		},
		{
			name:         "other",
			err:          errors.New("disk full"),
			wantError:    true,
			wantMessage:  "Train failed: disk full",
			wantRecovery: "Select Train to retry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := BuildFeedback("Train", tt.err)
			assert.Equal(t, tt.wantError, fb.IsError)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, fb.Message)
			}
			assert.Contains(t, fb.Recovery, tt.wantRecovery)
		})
	}
}

func TestPrintFeedback_WritesMessageAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	printFeedback(&buf, "Upload", &model.ValidationError{Field: "label", Message: "label is required"})

	out := buf.String()
	assert.Contains(t, out, "Upload: label is required")
	assert.Contains(t, out, "Fix the input and try again.")
}
