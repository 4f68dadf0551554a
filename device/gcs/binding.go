package gcs

import (
	"errors"
	"fmt"
)

// ErrController indicates an error reported by the controller itself
// through its error register.
var ErrController = errors.New("gcs: controller error")

// ControllerError is a non-zero GCS error code.
type ControllerError struct {
	Cmd  string
	Code int
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("gcs: %q failed with error %d (%s)", e.Cmd, e.Code, errorText(e.Code))
}

// Unwrap returns ErrController.
func (e *ControllerError) Unwrap() error { return ErrController }

func errorText(code int) string {
	switch code {
	case 1:
		return "parameter syntax error"
	case 2:
		return "unknown command"
	case 5:
		return "unallowable move attempted on unreferenced axis"
	case 7:
		return "position out of limits"
	case 10:
		return "controller was stopped by command"
	case 15:
		return "invalid axis identifier"
	default:
		return "see controller manual"
	}
}

// Binding is a session with a PI controller speaking the GCS command set.
// Axes are 1-based. Move, Reference and Halt return as soon as the
// controller accepted the command.
type Binding interface {
	Connect() error
	Connected() bool
	Close() error

	// Move starts an absolute move (MOV).
	Move(axis int, position float64) error
	// Position reads the current position (POS?).
	Position(axis int) (float64, error)
	// Reference starts a reference move to the reference switch (FRF).
	Reference(axis int) error
	// IsReferenced reports whether the axis has been referenced (FRF?).
	IsReferenced(axis int) (bool, error)
	// OnTarget reports whether the axis reached its target (ONT?).
	OnTarget(axis int) (bool, error)
	// Halt stops the axis (HLT).
	Halt(axis int) error
	// Limits returns the soft travel limits (TMN?, TMX?).
	Limits(axis int) (min float64, max float64, err error)
	Velocity(axis int) (float64, error)
	SetVelocity(axis int, velocity float64) error
}
