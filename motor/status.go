package motor

import (
	"errors"
	"fmt"
)

// AxisStatus is the published state of one axis.
//
// Pointer fields are nil when the device cannot report the property or, for
// LastCommandedPosition, when no move has been commanded yet.
type AxisStatus struct {
	Name                  string    `json:"name"`
	Axis                  int       `json:"axis"`
	Position              float64   `json:"position"`
	StepsPerSIUnit        *float64  `json:"steps_per_si_unit"`
	WasHomed              *bool     `json:"was_homed"`
	Type                  MotorType `json:"type"`
	IsMoving              *bool     `json:"is_moving"`
	LastCommandedPosition *float64  `json:"last_commanded_position"`
}

// Snapshot is the ordered per-axis status of a device.
type Snapshot struct {
	Device string       `json:"device"`
	Step   uint64       `json:"step"`
	Axes   []AxisStatus `json:"axes"`
}

// Collect queries the full property set of every axis of dev.
//
// Unsupported properties and a missing commanded position are reported as
// nil fields. Any other failure aborts the collection.
func Collect(dev Device) (Snapshot, error) {
	snap := Snapshot{
		Device: dev.Name(),
		Axes:   make([]AxisStatus, 0, dev.NAxes()),
	}

	for axis := 1; axis <= dev.NAxes(); axis++ {
		st, err := collectAxis(dev, axis)
		if err != nil {
			return Snapshot{}, fmt.Errorf("collect axis %d of %s: %w", axis, dev.Name(), err)
		}
		snap.Axes = append(snap.Axes, st)
	}

	return snap, nil
}

func collectAxis(dev Device, axis int) (AxisStatus, error) {
	st := AxisStatus{Name: dev.Name(), Axis: axis}

	var err error
	if st.Position, err = dev.Position(axis); err != nil {
		return st, err
	}
	if st.Type, err = dev.Type(axis); err != nil {
		return st, err
	}
	steps, err := dev.StepsPerSIUnit(axis)
	if st.StepsPerSIUnit, err = optional(steps, err); err != nil {
		return st, err
	}
	homed, err := dev.WasHomed(axis)
	if st.WasHomed, err = optional(homed, err); err != nil {
		return st, err
	}
	moving, err := dev.IsMoving(axis)
	if st.IsMoving, err = optional(moving, err); err != nil {
		return st, err
	}
	last, err := dev.LastCommandedPosition(axis)
	if st.LastCommandedPosition, err = optional(last, err); err != nil {
		return st, err
	}

	return st, nil
}

func optional[T any](v T, err error) (*T, error) {
	if err == nil {
		return &v, nil
	}
	if errors.Is(err, ErrUnsupported) || errors.Is(err, ErrNotCommanded) {
		return nil, nil
	}

	return nil, err
}

// Flatten returns the snapshot as flat key/value pairs, each key prefixed
// with prefix and the axis index, e.g. "motor1.AXIS2.POSITION".
func (s Snapshot) Flatten(prefix string) map[string]any {
	out := map[string]any{
		prefix + ".NAME": s.Device,
		prefix + ".STEP": s.Step,
	}

	for _, st := range s.Axes {
		p := fmt.Sprintf("%s.AXIS%d.", prefix, st.Axis)
		out[p+"POSITION"] = st.Position
		out[p+"TYPE"] = st.Type.String()
		out[p+"STEPS_PER_SI_UNIT"] = deref(st.StepsPerSIUnit)
		out[p+"WAS_HOMED"] = deref(st.WasHomed)
		out[p+"IS_MOVING"] = deref(st.IsMoving)
		out[p+"LAST_COMMANDED_POSITION"] = deref(st.LastCommandedPosition)
	}

	return out
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}

	return *p
}
