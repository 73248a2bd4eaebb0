package rq

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every introspection component.
var (
	// ErrNotFound indicates the requested job id has no record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates an unrecognized filter or input value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDataCorruption indicates one or more stored fields failed to decode.
	// Results carrying this error are still usable; the affected fields are
	// marked corrupt.
	ErrDataCorruption = errors.New("data corruption")

	// ErrServiceUnavailable indicates the store is unreachable or timed out.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// OpError wraps a failure with the operation and key that produced it.
type OpError struct {
	// Op is the operation that failed (e.g., "GetJob", "DeleteJob").
	Op string

	// Key is the store key or identifier involved, if any.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in an OpError, or nil when err is nil.
func Wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}

// IsNotFound returns true if the error indicates a missing job record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument returns true if the error indicates a rejected input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsDataCorruption returns true if the error marks a partially decoded result.
func IsDataCorruption(err error) bool {
	return errors.Is(err, ErrDataCorruption)
}

// IsServiceUnavailable returns true if the store could not be reached.
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
