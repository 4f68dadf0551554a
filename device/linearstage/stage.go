// Package linearstage drives Thorlabs LTS long travel stages through the
// vendor motion control SDK.
//
// The SDK is reached through a Binding; SimBinding simulates a stage for
// tests and dry runs. The stage has one linear axis measured in
// millimeters, range [0, 150] by default. Home and MoveTo block until the
// motion completes, bounded by the configured timeout (60 s by default).
package linearstage

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-motor/internal/link"
	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
)

const (
	// StepsPerSIUnit is the number of device units (mm) per meter.
	StepsPerSIUnit = 1000.0

	DefaultTimeout         = 60 * time.Second
	DefaultPollingInterval = 250 * time.Millisecond
)

// DefaultRange is the travel of an LTS150 stage in millimeters.
var DefaultRange = motor.Range{Min: 0, Max: 150}

// Option is a functional option for configuring a Stage.
type Option interface {
	apply(*Stage) error
}

type optFunc func(*Stage) error

func (f optFunc) apply(s *Stage) error { return f(s) }

// WithRange sets the travel range in millimeters.
func WithRange(r motor.Range) Option {
	return optFunc(func(s *Stage) error {
		if !r.Valid() {
			return fmt.Errorf("linearstage: invalid range [%g, %g]", r.Min, r.Max)
		}
		s.rng = r

		return nil
	})
}

// WithTimeout sets the timeout of blocking motions.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(s *Stage) error {
		if d <= 0 {
			return fmt.Errorf("linearstage: invalid timeout %v", d)
		}
		s.timeout = d

		return nil
	})
}

// WithPollingInterval sets the SDK status polling interval.
func WithPollingInterval(d time.Duration) Option {
	return optFunc(func(s *Stage) error {
		if d <= 0 {
			return fmt.Errorf("linearstage: invalid polling interval %v", d)
		}
		s.pollingInterval = d

		return nil
	})
}

// Stage is an LTS stage. It implements motor.Device, motor.Linker and
// motor.Extender.
type Stage struct {
	name            string
	serialNo        string
	binding         Binding
	stateMgr        *link.StateMgr
	rng             motor.Range
	timeout         time.Duration
	pollingInterval time.Duration
	commanded       *motor.Commanded
	metrics         link.Metrics
	logger          logger.Logger
}

var (
	_ motor.Device   = (*Stage)(nil)
	_ motor.Linker   = (*Stage)(nil)
	_ motor.Extender = (*Stage)(nil)
)

// New creates a stage identified by serialNo. The SDK session is opened
// lazily on first use.
func New(name string, serialNo string, binding Binding, opts ...Option) (*Stage, error) {
	if binding == nil {
		return nil, errors.New("linearstage: binding is nil")
	}
	if serialNo == "" {
		return nil, errors.New("linearstage: serial number required")
	}

	s := &Stage{
		name:            name,
		serialNo:        serialNo,
		binding:         binding,
		rng:             DefaultRange,
		timeout:         DefaultTimeout,
		pollingInterval: DefaultPollingInterval,
		commanded:       motor.NewCommanded(1),
		logger:          logger.Of("linearstage").With("name", name, "serial", serialNo),
	}
	for _, opt := range opts {
		if err := opt.apply(s); err != nil {
			return nil, err
		}
	}
	s.stateMgr = link.NewStateMgr(s.logger, func(prev link.State, cur link.State) {
		s.logger.Info("stage session state changed", "prevState", prev, "newState", cur)
	})

	return s, nil
}

// Metrics returns the session metrics.
func (s *Stage) Metrics() *link.Metrics { return &s.metrics }

func (s *Stage) Connected() bool { return s.stateMgr.IsConnected() }

// Connect opens the SDK session, starts status polling and enables the stage.
func (s *Stage) Connect() error {
	if s.stateMgr.IsConnected() {
		return nil
	}

	s.logger.Info("connecting to stage")

	err := s.binding.Connect(s.serialNo)
	if err == nil {
		err = s.binding.StartPolling(s.pollingInterval)
	}
	if err == nil {
		err = s.binding.Enable()
	}
	if err != nil {
		s.metrics.IOErrorCount.Add(1)
		s.teardown()

		return fmt.Errorf("%w: connect stage %s: %w", motor.ErrCommunication, s.serialNo, err)
	}

	if err := s.stateMgr.ToConnected(); err != nil {
		return err
	}
	s.metrics.ConnectCount.Add(1)

	return nil
}

// Close stops polling and closes the SDK session.
func (s *Stage) Close() error {
	if !s.stateMgr.IsConnected() {
		return nil
	}

	err := s.teardown()
	s.stateMgr.ToDisconnected()
	s.metrics.DisconnectCount.Add(1)

	return err
}

func (s *Stage) teardown() error {
	s.binding.StopPolling()
	return s.binding.Disconnect()
}

// call runs fn on a connected session. An SDK failure closes the session.
func (s *Stage) call(op string, fn func() error) error {
	if err := s.Connect(); err != nil {
		return err
	}

	s.metrics.QueryCount.Add(1)

	if err := fn(); err != nil {
		s.metrics.IOErrorCount.Add(1)
		s.logger.Warn("stage call failed, closing session", "op", op, "error", err)
		_ = s.Close()

		return fmt.Errorf("%w: %s on stage %s: %w", motor.ErrCommunication, op, s.serialNo, err)
	}

	return nil
}

func (s *Stage) Name() string { return s.name }

func (s *Stage) NAxes() int { return 1 }

// Range returns the travel range.
func (s *Stage) Range() motor.Range { return s.rng }

// Position returns the stage position in millimeters.
func (s *Stage) Position(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	var pos float64
	err := s.call("position", func() (err error) {
		pos, err = s.binding.Position()
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("current position", "mm", pos)

	return pos, nil
}

// MoveTo moves to target millimeters and blocks until the motion completes.
func (s *Stage) MoveTo(axis int, target float64) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}
	if err := s.rng.Check(axis, target); err != nil {
		return err
	}

	err := s.call("move_to", func() error {
		return s.binding.MoveTo(target, s.timeout)
	})
	if err != nil {
		return err
	}
	s.commanded.Record(axis, target)

	return nil
}

// Home drives the stage to its zero position and blocks until done.
func (s *Stage) Home(axis int) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}

	return s.call("home", func() error {
		return s.binding.Home(s.timeout)
	})
}

// Stop halts the stage and returns immediately.
func (s *Stage) Stop(axis int) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}

	return s.call("stop", s.binding.Stop)
}

// Deinitialize stops polling and closes the SDK session.
func (s *Stage) Deinitialize(axis int) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}

	return s.Close()
}

func (s *Stage) StepsPerSIUnit(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return StepsPerSIUnit, nil
}

func (s *Stage) WasHomed(axis int) (bool, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return false, err
	}

	return true, nil
}

func (s *Stage) Type(axis int) (motor.MotorType, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return motor.Linear, nil
}

func (s *Stage) IsMoving(axis int) (bool, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return false, err
	}

	var moving bool
	err := s.call("is_moving", func() (err error) {
		moving, err = s.binding.IsMoving()
		return err
	})

	return moving, err
}

func (s *Stage) LastCommandedPosition(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return s.commanded.Last(axis)
}

// Extensions returns the SDK operations outside the motor capability set.
func (s *Stage) Extensions() []motor.Extension {
	return []motor.Extension{
		{Name: "identify", Call: func([]float64) (any, error) {
			return nil, s.call("identify", s.binding.Identify)
		}},
		{Name: "enable", Mutating: true, Call: func([]float64) (any, error) {
			return nil, s.call("enable", s.binding.Enable)
		}},
		{Name: "disable", Mutating: true, Call: func([]float64) (any, error) {
			return nil, s.call("disable", s.binding.Disable)
		}},
		{Name: "velocity_params", Call: func([]float64) (any, error) {
			var p VelocityParams
			err := s.call("velocity_params", func() (err error) {
				p, err = s.binding.VelocityParams()
				return err
			})

			return p, err
		}},
		{Name: "set_acceleration", Mutating: true, Call: func(args []float64) (any, error) {
			if len(args) != 1 {
				return nil, errors.New("linearstage: set_acceleration takes one argument")
			}
			if args[0] <= 0 {
				return nil, fmt.Errorf("%w: set_acceleration %g must be positive", motor.ErrOutOfRange, args[0])
			}

			return nil, s.updateVelocity(func(p *VelocityParams) { p.Acceleration = args[0] })
		}},
		{Name: "set_max_velocity", Mutating: true, Call: func(args []float64) (any, error) {
			if len(args) != 1 {
				return nil, errors.New("linearstage: set_max_velocity takes one argument")
			}
			if args[0] <= 0 {
				return nil, fmt.Errorf("%w: set_max_velocity %g must be positive", motor.ErrOutOfRange, args[0])
			}

			return nil, s.updateVelocity(func(p *VelocityParams) { p.MaxVelocity = args[0] })
		}},
	}
}

func (s *Stage) updateVelocity(update func(p *VelocityParams)) error {
	return s.call("set_velocity_params", func() error {
		p, err := s.binding.VelocityParams()
		if err != nil {
			return err
		}
		update(&p)

		return s.binding.SetVelocityParams(p)
	})
}
