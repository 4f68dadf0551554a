package controller

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-motor/rpc"
)

var (
	// ErrTerminated is returned by operations on a terminated controller.
	ErrTerminated = fmt.Errorf("controller: %w", rpc.ErrTerminated)

	// ErrTermination indicates a failure while shutting the device down.
	ErrTermination = errors.New("controller: termination failed")

	// ErrUnknownExtension indicates an extension the device does not provide.
	ErrUnknownExtension = errors.New("controller: unknown extension")
)

// TerminationError is a failed Stop or Deinitialize during Terminate.
type TerminationError struct {
	Axis int
	Op   string
	Err  error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("controller: %s axis %d: %v", e.Op, e.Axis, e.Err)
}

// Unwrap returns ErrTermination and the cause.
func (e *TerminationError) Unwrap() []error {
	return []error{ErrTermination, e.Err}
}
