package ai

import (
	"errors"
	"fmt"
)

// ErrParseFailed reports that no numeric or categorical score could be
// extracted from a generative reply. It is recorded on the affected record
// instead of being folded into a fake low score.
var ErrParseFailed = errors.New("no score found in model reply")

// ErrTaskNotFound reports an unknown batch task id.
var ErrTaskNotFound = errors.New("task not found")

// BackendErrorKind classifies remote backend failures so the retry and
// fallback policies can react differently per kind.
type BackendErrorKind string

const (
	KindTimeout     BackendErrorKind = "timeout"
	KindRateLimited BackendErrorKind = "rate_limited"
	KindServerError BackendErrorKind = "server_error"
	KindUnavailable BackendErrorKind = "unavailable"
)

// BackendError wraps a failure of the generative backend.
type BackendError struct {
	Kind BackendErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generative backend %s: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *BackendError) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindRateLimited || e.Kind == KindServerError
}

// NewBackendError wraps err with the given kind, keeping an existing
// BackendError untouched.
func NewBackendError(kind BackendErrorKind, err error) error {
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Kind: kind, Err: err}
}

// ValidationError reports malformed comparison input, for example a value
// that is neither a scalar, a list, nor a keyed map.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid comparison input: %s", e.Reason)
}
