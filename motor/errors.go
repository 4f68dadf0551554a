package motor

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange indicates a commanded position outside the device's physical range.
	ErrOutOfRange = errors.New("motor: position out of range")

	// ErrInvalidAxis indicates an axis index outside [1, NAxes()].
	ErrInvalidAxis = errors.New("motor: invalid axis")

	// ErrUnsupported indicates an operation the device or axis cannot perform.
	ErrUnsupported = errors.New("motor: operation not supported")

	// ErrSerialTimeout indicates that quiescence polling never observed a stable,
	// non-empty reply within its iteration bound.
	ErrSerialTimeout = errors.New("motor: serial timeout")

	// ErrCommunication indicates a low-level transport failure. The transport
	// has been torn down and the next call reconnects.
	ErrCommunication = errors.New("motor: communication error")

	// ErrNotCommanded indicates that no position has been commanded on the axis yet.
	ErrNotCommanded = errors.New("motor: no commanded position")

	// ErrMalformedReply indicates an instrument reply that could not be parsed.
	ErrMalformedReply = errors.New("motor: malformed reply")
)

// RangeError describes a rejected MoveTo target.
type RangeError struct {
	Axis   int
	Target float64
	Min    float64
	Max    float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("motor: axis %d target %g outside [%g, %g]", e.Axis, e.Target, e.Min, e.Max)
}

// Unwrap returns ErrOutOfRange.
func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// Unsupported returns an error wrapping ErrUnsupported naming the device and operation.
func Unsupported(device string, op string) error {
	return fmt.Errorf("%w: %s does not support %s", ErrUnsupported, device, op)
}

// MalformedReply returns an error wrapping ErrMalformedReply quoting the reply.
func MalformedReply(device string, reply string) error {
	return fmt.Errorf("%w from %s: %q", ErrMalformedReply, device, reply)
}

// IsRejection reports whether err is a deterministic rejection raised before
// any I/O (range, axis or capability).
func IsRejection(err error) bool {
	return errors.Is(err, ErrOutOfRange) || errors.Is(err, ErrInvalidAxis) || errors.Is(err, ErrUnsupported)
}
