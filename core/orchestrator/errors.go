package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/siherrmann/docketflow/core/ocr"
)

// ErrorKind classifies a stage failure for the retry decision. The
// orchestrator is the only component that acts on the classification.
type ErrorKind string

const (
	// ErrorKindTransient covers timeouts and temporarily unavailable
	// collaborators. Retried with exponential backoff.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindValidation covers malformed input that will not improve on
	// retry. Fails the document immediately.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindPermanent covers failures the pipeline cannot recover from,
	// such as a failed external job. Fails the document immediately.
	ErrorKindPermanent ErrorKind = "permanent"
	// ErrorKindUnknown covers unclassified failures. Retried once, then
	// escalated to permanent.
	ErrorKindUnknown ErrorKind = "unknown"
)

// StageError tags a stage failure with its retry classification.
type StageError struct {
	Kind ErrorKind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage error: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable stage error.
func Transient(err error) *StageError {
	return &StageError{Kind: ErrorKindTransient, Err: err}
}

// Validation wraps err as a non-retryable input error.
func Validation(err error) *StageError {
	return &StageError{Kind: ErrorKindValidation, Err: err}
}

// Permanent wraps err as a non-retryable stage error.
func Permanent(err error) *StageError {
	return &StageError{Kind: ErrorKindPermanent, Err: err}
}

// Classify maps an error to its retry classification. Explicitly tagged
// errors keep their kind; known collaborator errors are mapped; everything
// else is unknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}

	stageErr := &StageError{}
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}

	switch {
	case errors.Is(err, ocr.ErrJobFailed):
		return ErrorKindPermanent
	case errors.Is(err, ocr.ErrPollTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTransient
	default:
		return ErrorKindUnknown
	}
}

// retryable reports whether a failure of the given kind should be retried
// at the given attempt count (attempts already made, including this one).
func retryable(kind ErrorKind, attempts int, maxAttempts int) bool {
	switch kind {
	case ErrorKindTransient:
		return attempts < maxAttempts
	case ErrorKindUnknown:
		// One retry for unclassified failures, then escalate.
		return attempts < 2 && attempts < maxAttempts
	default:
		return false
	}
}
