package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict marks calls the core rejects because of its current state.
	ErrStateConflict = errors.New("state conflict")

	ErrEmptySelection  = fmt.Errorf("%w: select at least one label to train on", ErrValidation)
	ErrAlreadyRunning  = fmt.Errorf("%w: a training job is already running", ErrStateConflict)
	ErrEmptyGallery    = fmt.Errorf("%w: no images found for this label", ErrStateConflict)
	ErrIndexOutOfRange = fmt.Errorf("%w: image index out of range", ErrStateConflict)
)

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ErrorKind separates failures that never reached the service from failures
// the service reported.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindServer    ErrorKind = "server"
)

// APIError is returned by every remote call of the API client.
type APIError struct {
	Op         string
	Kind       ErrorKind
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op + ": " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransport reports whether err is an APIError that never got a response.
func IsTransport(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindTransport
}

// IsServer reports whether err is an APIError reported by the service.
func IsServer(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindServer
}
