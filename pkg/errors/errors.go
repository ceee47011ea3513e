package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrExecution        = errors.New("facet execution failed")
	ErrInterrupted      = errors.New("facet execution interrupted")
	ErrShardUnavailable = errors.New("shard unavailable")
	ErrNotFound         = errors.New("not found")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// FacetError reports a failed facet computation. Err is one of the
// sentinels above and Cause the underlying failure, if any.
type FacetError struct {
	Err     error
	Field   string
	Message string
	Cause   error
}

func (e *FacetError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg += " on field " + e.Field
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FacetError) Unwrap() []error {
	errs := []error{e.Err}
	if e.Err == ErrInterrupted {
		errs = append(errs, ErrExecution)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// InputError rejects a request before any counting starts.
func InputError(field, format string, args ...any) *FacetError {
	return &FacetError{Err: ErrInvalidInput, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExecutionError wraps a failure raised while counting field. Context
// cancellation and deadlines become ErrInterrupted, which still matches
// ErrExecution. An error that already is a *FacetError is returned as is.
func ExecutionError(field string, cause error) error {
	if cause == nil {
		return nil
	}
	var fe *FacetError
	if errors.As(cause, &fe) {
		return cause
	}
	sentinel := ErrExecution
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		sentinel = ErrInterrupted
	}
	return &FacetError{Err: sentinel, Field: field, Cause: cause}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInterrupted), errors.Is(err, ErrShardUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
