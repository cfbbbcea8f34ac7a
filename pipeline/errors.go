package pipeline

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when another run for the date started recently
// and has not finished.
var ErrRunInProgress = errors.New("a run for this date is already in progress")

// GenerationError means the content generator failed.
type GenerationError struct {
	Detail string
	Err    error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Detail }
func (e *GenerationError) Unwrap() error { return e.Err }

// CompositionError means the video composer failed. Nothing was uploaded.
type CompositionError struct {
	Detail string
	Err    error
}

func (e *CompositionError) Error() string { return "composition failed: " + e.Detail }
func (e *CompositionError) Unwrap() error { return e.Err }

// UploadError means the hosting platform rejected or never received the video.
type UploadError struct {
	Detail string
	Err    error
}

func (e *UploadError) Error() string { return "upload failed: " + e.Detail }
func (e *UploadError) Unwrap() error { return e.Err }

// detail is the text recorded as error_detail for a collaborator failure.
func detail(err error) string {
	if err == nil {
		return "unknown error"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}

func newGenerationError(detail string, err error) error {
	return &GenerationError{Detail: detail, Err: err}
}

func newCompositionError(detail string, err error) error {
	return &CompositionError{Detail: detail, Err: err}
}

func newUploadError(detail string, err error) error {
	return &UploadError{Detail: detail, Err: err}
}

// classify wraps a collaborator error with wrap unless the collaborator
// already returned one of the typed failures.
func classify(err error, wrap func(detail string, err error) error) error {
	var (
		g *GenerationError
		c *CompositionError
		u *UploadError
	)
	if errors.As(err, &g) || errors.As(err, &c) || errors.As(err, &u) {
		return err
	}
	return wrap(detail(err), err)
}
