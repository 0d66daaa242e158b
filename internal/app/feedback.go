package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"visionctl/internal/dataset"
	"visionctl/internal/model"
)

// Feedback is rendered after an action finishes so every outcome ends with
// a message and a next step.
type Feedback struct {
	Message  string
	Recovery string
	IsError  bool
}

// BuildFeedback classifies the result of action for display.
func BuildFeedback(action string, err error) Feedback {
	if err == nil {
		return Feedback{
			Message:  action + " done",
			Recovery: "Choose another action, or Exit to leave visionctl.",
		}
	}
	if errors.Is(err, context.Canceled) {
		return Feedback{
			Message:  action + " canceled",
			Recovery: fmt.Sprintf("Select %s again to retry.", action),
		}
	}

	fb := Feedback{Message: fmt.Sprintf("%s failed: %v", action, err), IsError: true}

	var validation *model.ValidationError
	var fetch *dataset.FetchError
	var apiErr *model.APIError
	switch {
	case errors.As(err, &validation):
		fb.Message = fmt.Sprintf("%s: %s", action, validation.Message)
		fb.Recovery = "Fix the input and try again."
	case errors.Is(err, model.ErrEmptySelection):
		fb.Recovery = "Pass one or more labels, or use --all to train on every uploaded label."
	case errors.Is(err, model.ErrAlreadyRunning):
		fb.Recovery = "Wait for the current training job to finish, or cancel it first."
	case errors.Is(err, model.ErrEmptyGallery):
		fb.Recovery = "Upload images for this label first."
	case errors.As(err, &fetch):
		fb.Recovery = fmt.Sprintf("Unavailable: %s. Run `visionctl data` to retry loading.", joinSources(fetch.Sources()))
	case errors.As(err, &apiErr) && apiErr.Kind == model.KindTransport:
		fb.Recovery = "Check that the service is reachable (api.base_url) and retry."
	case errors.As(err, &apiErr) && apiErr.Retryable:
		fb.Recovery = "The service had a temporary problem. Retry in a moment."
	case errors.As(err, &apiErr):
		fb.Recovery = "The service rejected the request. Check the input and retry."
	default:
		fb.Recovery = fmt.Sprintf("Select %s to retry after fixing config/network.", action)
	}
	return fb
}

func joinSources(sources []dataset.Source) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func printFeedback(w io.Writer, action string, err error) {
	fb := BuildFeedback(action, err)
	if fb.IsError {
		fmt.Fprintln(w, errorLine(errors.New(fb.Message)))
	} else {
		fmt.Fprintln(w, statusLine("Done", fb.Message))
	}
	fmt.Fprintln(w, styleMuted.Render(fb.Recovery))
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, statusLine("Opening", title))
	fmt.Fprintln(w)
}
