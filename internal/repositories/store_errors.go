package repositories

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks store calls rejected before touching the backend.
var ErrInvalidArgument = errors.New("invalid argument")

// StoreError is a RepositoryError for backends without their own error type, such as the in-memory store.
type StoreError struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprint(e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing record.
func (e *StoreError) IsNotFound() bool { return e != nil && e.NotFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *StoreError) IsConflict() bool { return e != nil && e.Conflict }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Unavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Err: fmt.Errorf(format, args...), NotFound: true}
}

// NewConflictError reports a write that collided with existing state.
func NewConflictError(op string, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Err: fmt.Errorf(format, args...), Conflict: true}
}

// NewInvalidArgumentError reports a call rejected for bad arguments. It matches ErrInvalidArgument.
func NewInvalidArgumentError(op string, format string, args ...any) *StoreError {
	return &StoreError{Op: op, Err: fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))}
}
