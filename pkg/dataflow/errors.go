package dataflow

import (
	"errors"
	"fmt"
)

var (
	// ErrPoisoned is returned by a worker whose step was aborted, e.g., by a cancelled context.
	// The worker state is inconsistent afterwards and cannot be stepped again.
	ErrPoisoned = errors.New("worker poisoned")

	// ErrNoProgress is returned when a caller waits for a condition that pending work cannot
	// satisfy until some input advances its time.
	ErrNoProgress = errors.New("no progress possible until inputs advance")

	// ErrClosed is returned when using a closed worker or input.
	ErrClosed = errors.New("closed")
)

// DataflowError signals misuse of the dataflow API, like mixing collections from different
// scopes or setting a variable twice.
type DataflowError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *DataflowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the cause.
func (e *DataflowError) Unwrap() error { return e.Cause }

func newDataflowError(message string, cause error) error {
	return &DataflowError{Message: message, Cause: cause}
}

// misuse panics with a DataflowError. Worker.Dataflow and Worker.Step recover these panics and
// return them as errors.
func misuse(format string, args ...any) {
	panic(newDataflowError(fmt.Sprintf(format, args...), nil))
}

// recoverMisuse turns a DataflowError panic into an error. Other panics are propagated.
func recoverMisuse(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(*DataflowError); ok {
			*err = e
			return
		}
		panic(r)
	}
}
