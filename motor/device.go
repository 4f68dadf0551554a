package motor

import "fmt"

// MotorType is the kinematic type of an axis.
type MotorType uint8

const (
	// Linear axes move along a line (stages, picomotors, tunable filters).
	Linear MotorType = iota
	// Rotary axes rotate (filter wheels).
	Rotary
)

// String returns string representation of the motor type.
func (t MotorType) String() string {
	switch t {
	case Linear:
		return "linear"
	case Rotary:
		return "rotary"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t MotorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *MotorType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "linear":
		*t = Linear
	case "rotary":
		*t = Rotary
	default:
		return fmt.Errorf("motor: unknown motor type %q", text)
	}

	return nil
}

// Device is the capability set of a motorized instrument.
//
// All methods except Name and NAxes take a 1-based axis index. Methods that
// reach the hardware may block up to the transport's documented timeout.
// Implementations are not required to be goroutine safe; the controller
// serializes access.
type Device interface {
	// Name returns the immutable device identity.
	Name() string
	// NAxes returns the number of controllable axes.
	NAxes() int

	// Position reads the current position in device units.
	Position(axis int) (float64, error)
	// MoveTo commands an absolute move. The target is checked against the
	// physical range before any I/O. Whether the call waits for the motion
	// to complete is documented per implementation.
	MoveTo(axis int, target float64) error
	// Home drives the axis to its reference position.
	Home(axis int) error
	// Stop halts the axis as soon as possible.
	Stop(axis int) error
	// Deinitialize releases the axis for shutdown.
	Deinitialize(axis int) error

	// StepsPerSIUnit returns the conversion factor between device units and SI units.
	StepsPerSIUnit(axis int) (float64, error)
	// WasHomed reports whether the axis has a valid reference.
	WasHomed(axis int) (bool, error)
	// Type returns the kinematic type of the axis.
	Type(axis int) (MotorType, error)
	// IsMoving reports whether the axis is in motion.
	IsMoving(axis int) (bool, error)
	// LastCommandedPosition returns the target of the last successful MoveTo.
	LastCommandedPosition(axis int) (float64, error)
}

// Linker is implemented by devices that own a transport handle.
type Linker interface {
	// Connected reports whether the transport handle is live.
	Connected() bool
	// Close tears down the transport handle. The device reconnects lazily if
	// used again.
	Close() error
}

// Extension is a device-specific operation outside the Device capability
// set, such as an acceleration or velocity setpoint. Extensions are only
// reachable through the controller's diagnostic channel.
type Extension struct {
	Name string
	// Mutating extensions change axis state; the controller invalidates its
	// status cache after calling them.
	Mutating bool
	Call     func(args []float64) (any, error)
}

// Extender is implemented by devices exposing extensions.
type Extender interface {
	Extensions() []Extension
}
