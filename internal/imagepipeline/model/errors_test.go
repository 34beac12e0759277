package model

import (
	"errors"
	"testing"
)

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDataLoadingFailed(cause)

	if !errors.Is(err, ErrDataLoadingFailed) {
		t.Error("expected errors.Is to match on kind")
	}
	if errors.Unwrap(err) != cause {
		t.Error("expected Unwrap to return the wrapped cause")
	}
}

func TestPipelineErrorIsDistinguishesKind(t *testing.T) {
	decodeErr := NewDecodingFailed(errors.New("truncated"))

	if errors.Is(decodeErr, ErrDataLoadingFailed) {
		t.Error("decode failure must not match data-loading kind")
	}
	if !errors.Is(decodeErr, ErrDecodingFailed) {
		t.Error("expected decode failure to match its own kind")
	}
}

func TestPipelineErrorMessageIncludesCause(t *testing.T) {
	err := NewProcessingFailed(errors.New("resize failed"))
	if err.Error() == string(KindProcessingFailed) {
		t.Error("expected message to include the wrapped cause")
	}
}

func TestPipelineErrorWithoutCause(t *testing.T) {
	err := &PipelineError{Kind: KindDecodingFailed}
	if err.Error() != string(KindDecodingFailed) {
		t.Errorf("expected bare kind string, got %q", err.Error())
	}
}
