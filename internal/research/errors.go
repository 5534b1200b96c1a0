package research

import (
	"context"
	"errors"
	"fmt"
)

// #region kinds

// ErrorKind classifies failures across the engine.
type ErrorKind string

const (
	KindInvalidTopic         ErrorKind = "invalid_topic"
	KindRetrievalFailure     ErrorKind = "retrieval_failure"
	KindDeadlineExceeded     ErrorKind = "deadline_exceeded"
	KindInsufficientEvidence ErrorKind = "insufficient_evidence"
	KindSynthesisError       ErrorKind = "synthesis_error"
	KindInternalError        ErrorKind = "internal_error"
)

// #endregion kinds

// #region sentinels

var (
	// ErrInvalidTopic is returned by planners for blank or over-length topics.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrSynthesis is returned by synthesizers for malformed or empty input.
	ErrSynthesis = errors.New("synthesis failed")
)

// #endregion sentinels

// #region source-error

// SourceError is a classified EvidenceSource failure.
type SourceError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error { return e.Err }

// Retryable marks err as transient (timeout, rate limit, network blip).
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Retryable: true, Err: err}
}

// Permanent marks err as non-retryable (query rejected, nothing found).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Retryable: false, Err: err}
}

// Retryablef is Retryable(fmt.Errorf(...)).
func Retryablef(format string, args ...any) error {
	return Retryable(fmt.Errorf(format, args...))
}

// Permanentf is Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsRetryable reports whether err should be retried.
// An explicit SourceError wins; otherwise a bare attempt timeout is retryable
// and everything else is not.
func IsRetryable(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// #endregion source-error
