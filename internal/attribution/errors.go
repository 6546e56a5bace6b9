package attribution

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks configuration errors detected before any query runs.
	ErrInvalidRequest = errors.New("invalid attribution request")
	// ErrQueryFailed marks connectivity and execution failures of the event store.
	ErrQueryFailed = errors.New("attribution query failed")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrInvalidRequest as well as the wrapped cause.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// QueryError wraps a failure of the backing event store.
type QueryError struct {
	Engine string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrQueryFailed, e.Engine, e.Err)
}

func (e *QueryError) Is(target error) bool {
	return target == ErrQueryFailed
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError wraps err as a failure of engine.
func NewQueryError(engine string, err error) error {
	return &QueryError{Engine: engine, Err: err}
}
