// Package gcs drives PI (Physik Instrumente) point-to-point controllers
// speaking the GCS command set.
//
// MoveTo and Home return as soon as the controller accepted the command;
// IsMoving reports the on-target state. Positions are in millimeters.
// When no range is configured for an axis, the controller's soft limits
// are read on first use.
package gcs

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
)

// StepsPerSIUnit is the number of device units (mm) per meter.
const StepsPerSIUnit = 1000.0

// Controller is a GCS controller. It implements motor.Device, motor.Linker
// and motor.Extender.
type Controller struct {
	name      string
	naxes     int
	binding   Binding
	ranges    []*motor.Range
	commanded *motor.Commanded
	logger    logger.Logger
}

var (
	_ motor.Device   = (*Controller)(nil)
	_ motor.Linker   = (*Controller)(nil)
	_ motor.Extender = (*Controller)(nil)
)

// Option is a functional option for configuring a Controller.
type Option interface {
	apply(*Controller) error
}

type optFunc func(*Controller) error

func (f optFunc) apply(c *Controller) error { return f(c) }

// WithRange sets the travel range of the 1-based axis instead of reading
// the controller limits.
func WithRange(axis int, r motor.Range) Option {
	return optFunc(func(c *Controller) error {
		if err := motor.ValidateAxis(c.naxes, axis); err != nil {
			return err
		}
		if !r.Valid() {
			return fmt.Errorf("gcs: invalid range [%g, %g]", r.Min, r.Max)
		}
		c.ranges[axis-1] = &r

		return nil
	})
}

// New creates a controller with naxes axes on binding.
func New(name string, naxes int, binding Binding, opts ...Option) (*Controller, error) {
	if binding == nil {
		return nil, errors.New("gcs: binding is nil")
	}
	if naxes < 1 {
		return nil, fmt.Errorf("gcs: invalid number of axes %d", naxes)
	}

	c := &Controller{
		name:      name,
		naxes:     naxes,
		binding:   binding,
		ranges:    make([]*motor.Range, naxes),
		commanded: motor.NewCommanded(naxes),
		logger:    logger.Of("gcs").With("name", name),
	}
	for _, opt := range opts {
		if err := opt.apply(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Controller) Name() string { return c.name }

func (c *Controller) NAxes() int { return c.naxes }

func (c *Controller) Connected() bool { return c.binding.Connected() }

func (c *Controller) Close() error { return c.binding.Close() }

func (c *Controller) connect() error {
	if c.binding.Connected() {
		return nil
	}

	c.logger.Info("connecting to GCS controller")
	if err := c.binding.Connect(); err != nil {
		return fmt.Errorf("%w: %s: %w", motor.ErrCommunication, c.name, err)
	}

	return nil
}

// call runs fn on a connected binding. Failures other than controller
// errors close the binding so the next call reconnects.
func (c *Controller) call(op string, fn func() error) error {
	if err := c.connect(); err != nil {
		return err
	}

	err := fn()
	if err == nil || errors.Is(err, ErrController) {
		return err
	}

	c.logger.Warn("GCS call failed, closing connection", "op", op, "error", err)
	_ = c.binding.Close()

	if errors.Is(err, motor.ErrCommunication) {
		return err
	}

	return fmt.Errorf("%w: %s on %s: %w", motor.ErrCommunication, op, c.name, err)
}

// Range returns the travel range of the axis, reading the controller
// limits when none is configured.
func (c *Controller) Range(axis int) (motor.Range, error) {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return motor.Range{}, err
	}
	if r := c.ranges[axis-1]; r != nil {
		return *r, nil
	}

	var r motor.Range
	err := c.call("limits", func() (err error) {
		r.Min, r.Max, err = c.binding.Limits(axis)
		return err
	})
	if err != nil {
		return motor.Range{}, err
	}
	c.ranges[axis-1] = &r
	c.logger.Debug("read travel limits", "axis", axis, "min", r.Min, "max", r.Max)

	return r, nil
}

func (c *Controller) Position(axis int) (float64, error) {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return 0, err
	}

	var pos float64
	err := c.call("position", func() (err error) {
		pos, err = c.binding.Position(axis)
		return err
	})

	return pos, err
}

// MoveTo starts an absolute move and returns without waiting for it.
func (c *Controller) MoveTo(axis int, target float64) error {
	r, err := c.Range(axis)
	if err != nil {
		return err
	}
	if err := r.Check(axis, target); err != nil {
		return err
	}

	if err := c.call("move_to", func() error { return c.binding.Move(axis, target) }); err != nil {
		return err
	}
	c.commanded.Record(axis, target)

	return nil
}

// Home starts a reference move and returns without waiting for it.
func (c *Controller) Home(axis int) error {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return err
	}

	return c.call("home", func() error { return c.binding.Reference(axis) })
}

func (c *Controller) Stop(axis int) error {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return err
	}

	return c.call("stop", func() error { return c.binding.Halt(axis) })
}

func (c *Controller) Deinitialize(axis int) error {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return err
	}

	return motor.Unsupported(c.name, "deinitialize")
}

func (c *Controller) StepsPerSIUnit(axis int) (float64, error) {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return 0, err
	}

	return StepsPerSIUnit, nil
}

func (c *Controller) WasHomed(axis int) (bool, error) {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return false, err
	}

	var ok bool
	err := c.call("was_homed", func() (err error) {
		ok, err = c.binding.IsReferenced(axis)
		return err
	})

	return ok, err
}

func (c *Controller) Type(axis int) (motor.MotorType, error) {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return 0, err
	}

	return motor.Linear, nil
}

func (c *Controller) IsMoving(axis int) (bool, error) {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return false, err
	}

	var onTarget bool
	err := c.call("is_moving", func() (err error) {
		onTarget, err = c.binding.OnTarget(axis)
		return err
	})

	return !onTarget, err
}

func (c *Controller) LastCommandedPosition(axis int) (float64, error) {
	if err := motor.ValidateAxis(c.naxes, axis); err != nil {
		return 0, err
	}

	return c.commanded.Last(axis)
}

// Extensions returns the velocity setpoint of an axis: "velocity" takes the
// axis, "set_velocity" the axis and the velocity in mm/s.
func (c *Controller) Extensions() []motor.Extension {
	return []motor.Extension{
		{Name: "velocity", Call: func(args []float64) (any, error) {
			if len(args) != 1 {
				return nil, errors.New("gcs: velocity takes the axis as only argument")
			}
			axis := int(args[0])
			if err := motor.ValidateAxis(c.naxes, axis); err != nil {
				return nil, err
			}

			var v float64
			err := c.call("velocity", func() (err error) {
				v, err = c.binding.Velocity(axis)
				return err
			})

			return v, err
		}},
		{Name: "set_velocity", Mutating: true, Call: func(args []float64) (any, error) {
			if len(args) != 2 {
				return nil, errors.New("gcs: set_velocity takes axis and velocity")
			}
			axis := int(args[0])
			if err := motor.ValidateAxis(c.naxes, axis); err != nil {
				return nil, err
			}

			return nil, c.call("set_velocity", func() error { return c.binding.SetVelocity(axis, args[1]) })
		}},
	}
}
