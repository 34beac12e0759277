package model

import (
	"errors"
	"fmt"
)

// ErrKind classifies a pipeline failure. Network and decode failures are
// session-wide; processing failures are per-task.
type ErrKind string

const (
	KindDataLoadingFailed ErrKind = "data_loading_failed"
	KindDecodingFailed    ErrKind = "decoding_failed"
	KindProcessingFailed  ErrKind = "processing_failed"
)

// PipelineError is the failure taxonomy: a kind plus an optional wrapped
// cause. Cancellation is never represented as a PipelineError — a
// cancelled task receives no completion callback.
type PipelineError struct {
	Kind  ErrKind
	Cause error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewDataLoadingFailed wraps a transport error as a session-wide failure.
func NewDataLoadingFailed(cause error) *PipelineError {
	return &PipelineError{Kind: KindDataLoadingFailed, Cause: cause}
}

// NewDecodingFailed reports a decoder that produced no image for final
// bytes, or that no decoder could be constructed from the sample data.
func NewDecodingFailed(cause error) *PipelineError {
	return &PipelineError{Kind: KindDecodingFailed, Cause: cause}
}

// NewProcessingFailed reports a processor that returned no image.
func NewProcessingFailed(cause error) *PipelineError {
	return &PipelineError{Kind: KindProcessingFailed, Cause: cause}
}

// Is supports errors.Is(err, model.ErrDecodingFailed) style checks against
// the kind alone, ignoring the wrapped cause.
func (e *PipelineError) Is(target error) bool {
	var other *PipelineError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel kind markers for errors.Is comparisons that don't care about the
// wrapped cause.
var (
	ErrDataLoadingFailed = &PipelineError{Kind: KindDataLoadingFailed}
	ErrDecodingFailed    = &PipelineError{Kind: KindDecodingFailed}
	ErrProcessingFailed  = &PipelineError{Kind: KindProcessingFailed}
)

// ErrNotFound is returned by stores (resumable, caches) on a clean miss.
var ErrNotFound = errors.New("not found")
