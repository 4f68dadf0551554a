package motor

import (
	"fmt"
	"math"
)

// ValidateAxis checks that axis lies in [1, naxes].
func ValidateAxis(naxes int, axis int) error {
	if axis < 1 || axis > naxes {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidAxis, axis, naxes)
	}

	return nil
}

// Range is the closed physical range [Min, Max] of an axis.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Check returns a *RangeError if target is NaN or outside the range.
func (r Range) Check(axis int, target float64) error {
	if math.IsNaN(target) || target < r.Min || target > r.Max {
		return &RangeError{Axis: axis, Target: target, Min: r.Min, Max: r.Max}
	}

	return nil
}

// Valid reports whether the range is well formed.
func (r Range) Valid() bool {
	return !math.IsNaN(r.Min) && !math.IsNaN(r.Max) && r.Min <= r.Max
}
