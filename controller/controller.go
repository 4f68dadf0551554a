// Package controller drives one motor device from a periodic step loop.
//
// Each Step handles the queued remote requests in arrival order and then
// publishes the device status. The status is cached and rebuilt only after
// an operation that may have changed it. A diagnostic channel running on
// its own goroutine shares the cache and the device with the step loop.
//
// Lock order is statusMu then deviceMu; the device lock is never held while
// acquiring the status lock.
package controller

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/rpc"
)

// RequestChannel delivers remote requests to the step loop.
type RequestChannel interface {
	// Drain handles every queued request in arrival order without waiting
	// for new ones, and returns how many were handled.
	Drain(handle func(rpc.Request) rpc.Reply) int
}

// Publisher broadcasts the device status.
type Publisher interface {
	PublishStatus(snap motor.Snapshot) error
}

// Stepper is driven by a Runner.
type Stepper interface {
	Step() error
	IsTerminated() bool
}

// Terminator shuts down what it drives.
type Terminator interface {
	Terminate()
}

// ServerInfoer reports the identity of the hosting server.
type ServerInfoer interface {
	ServerInfo() ServerInfo
}

// Snapshotter returns a flat key/value view of its state.
type Snapshotter interface {
	Snapshot(prefix string) map[string]any
}

// MotorController owns one device and serves it to remote clients.
type MotorController struct {
	dev       motor.Device
	requests  RequestChannel
	publisher Publisher
	cfg       *Config
	logger    logger.Logger

	opState     AtomicOpState
	stepCounter atomic.Uint64
	rate        *RateKeeper
	metrics     Metrics

	statusMu sync.Mutex
	status   *motor.Snapshot

	deviceMu sync.Mutex
}

var (
	_ Stepper      = (*MotorController)(nil)
	_ Terminator   = (*MotorController)(nil)
	_ ServerInfoer = (*MotorController)(nil)
	_ Snapshotter  = (*MotorController)(nil)
)

// New creates a controller for dev. A nil cfg uses the defaults.
func New(dev motor.Device, requests RequestChannel, publisher Publisher, cfg *Config) (*MotorController, error) {
	if dev == nil {
		return nil, errors.New("controller: device is nil")
	}
	if requests == nil {
		return nil, errors.New("controller: request channel is nil")
	}
	if publisher == nil {
		return nil, errors.New("controller: publisher is nil")
	}
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	return &MotorController{
		dev:       dev,
		requests:  requests,
		publisher: publisher,
		cfg:       cfg,
		logger:    cfg.logger,
		rate:      NewRateKeeper(cfg.rateWindow),
	}, nil
}

// Step handles the queued requests, publishes the status and advances the
// step counter.
func (c *MotorController) Step() error {
	if !c.opState.IsRunning() {
		return ErrTerminated
	}

	c.requests.Drain(c.handle)

	if c.opState.IsRunning() {
		c.publishStatus()
	}

	if c.rate.Inc() {
		c.logger.Info("stepping", "rate_hz", c.rate.Rate())
	}
	c.stepCounter.Add(1)
	c.metrics.StepCount.Add(1)

	return nil
}

// StepCounter returns the number of completed steps.
func (c *MotorController) StepCounter() uint64 { return c.stepCounter.Load() }

// ServerInfo returns the identity of the hosting server.
func (c *MotorController) ServerInfo() ServerInfo { return c.cfg.serverInfo }

// Metrics returns the controller metrics.
func (c *MotorController) Metrics() *Metrics { return &c.metrics }

// State returns the lifecycle state.
func (c *MotorController) State() OpState { return c.opState.Get() }

// IsTerminated reports whether Terminate completed.
func (c *MotorController) IsTerminated() bool { return c.opState.IsTerminated() }

// Terminate stops and deinitializes every axis, then closes the device
// transport. Failures are logged and do not abort the shutdown. Only the
// first call has an effect.
func (c *MotorController) Terminate() {
	if !c.opState.ToTerminating() {
		return
	}
	c.logger.Info("got request to terminate", "device", c.dev.Name())

	c.deviceMu.Lock()
	for axis := 1; axis <= c.dev.NAxes(); axis++ {
		if err := c.dev.Stop(axis); err != nil {
			c.logTermination(&TerminationError{Axis: axis, Op: "stop", Err: err})
		}
		if err := c.dev.Deinitialize(axis); err != nil {
			c.logTermination(&TerminationError{Axis: axis, Op: "deinitialize", Err: err})
		}
	}
	if l, ok := c.dev.(motor.Linker); ok {
		if err := l.Close(); err != nil {
			c.logger.Warn("could not close device transport", "error", err)
		}
	}
	c.deviceMu.Unlock()

	c.invalidateStatus()
	c.opState.ToTerminated()
	c.logger.Info("terminated", "device", c.dev.Name())
}

func (c *MotorController) logTermination(err *TerminationError) {
	c.logger.Warn("could not stop & deinitialize motor", "axis", err.Axis, "op", err.Op, "error", err)
}

func (c *MotorController) checkRunning() error {
	if !c.opState.IsRunning() {
		return ErrTerminated
	}

	return nil
}

// withDevice runs fn with exclusive access to the device.
func (c *MotorController) withDevice(fn func(dev motor.Device) error) error {
	if err := c.checkRunning(); err != nil {
		return err
	}

	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	return fn(c.dev)
}

// mutate runs a device operation that may change the status and
// invalidates the status cache on success.
func (c *MotorController) mutate(op string, fn func(dev motor.Device) error, keysAndValues ...any) error {
	c.logger.Info("entering "+op, keysAndValues...)

	if err := c.withDevice(fn); err != nil {
		c.logger.Warn(op+" failed", append(keysAndValues, "error", err)...)
		return err
	}
	c.invalidateStatus()
	c.logger.Info(op+" executed", keysAndValues...)

	return nil
}

// Name returns the device name.
func (c *MotorController) Name() string { return c.dev.Name() }

// NAxes returns the number of device axes.
func (c *MotorController) NAxes() int { return c.dev.NAxes() }

// Position reads the current position of the axis.
func (c *MotorController) Position(axis int) (float64, error) {
	var pos float64
	err := c.withDevice(func(dev motor.Device) (err error) {
		pos, err = dev.Position(axis)
		return err
	})

	return pos, err
}

// MoveTo moves the axis to position.
func (c *MotorController) MoveTo(axis int, position float64) error {
	return c.mutate("move_to", func(dev motor.Device) error {
		return dev.MoveTo(axis, position)
	}, "axis", axis, "position", position)
}

// MoveBy moves the axis by delta from its current position.
func (c *MotorController) MoveBy(axis int, delta float64) error {
	return c.mutate("move_by", func(dev motor.Device) error {
		pos, err := dev.Position(axis)
		if err != nil {
			return err
		}

		return dev.MoveTo(axis, pos+delta)
	}, "axis", axis, "delta", delta)
}

// Home homes the axis.
func (c *MotorController) Home(axis int) error {
	return c.mutate("home", func(dev motor.Device) error {
		return dev.Home(axis)
	}, "axis", axis)
}

// Stop stops the axis.
func (c *MotorController) Stop(axis int) error {
	return c.mutate("stop", func(dev motor.Device) error {
		return dev.Stop(axis)
	}, "axis", axis)
}

// Status returns the cached status, rebuilding it if it was invalidated.
func (c *MotorController) Status() (motor.Snapshot, error) {
	if err := c.checkRunning(); err != nil {
		return motor.Snapshot{}, err
	}

	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	if c.status == nil {
		c.deviceMu.Lock()
		snap, err := motor.Collect(c.dev)
		c.deviceMu.Unlock()

		if err != nil {
			c.metrics.StatusErrCount.Add(1)
			return motor.Snapshot{}, err
		}
		c.status = &snap
	}

	snap := *c.status
	snap.Step = c.stepCounter.Load()

	return snap, nil
}

func (c *MotorController) invalidateStatus() {
	c.statusMu.Lock()
	c.status = nil
	c.statusMu.Unlock()
}

func (c *MotorController) publishStatus() {
	snap, err := c.Status()
	if err != nil {
		c.logger.Warn("could not build motor status", "error", err)
		return
	}

	c.metrics.PublishCount.Add(1)
	if err := c.publisher.PublishStatus(snap); err != nil {
		c.metrics.PublishErrCount.Add(1)
		c.logger.Warn("could not publish motor status", "error", err)
	}
}

// Snapshot returns the current status as flat key/value pairs under prefix.
// A status that cannot be built is reported under "<prefix>.ERROR".
func (c *MotorController) Snapshot(prefix string) map[string]any {
	snap, err := c.Status()
	if err != nil {
		return map[string]any{prefix + ".ERROR": err.Error()}
	}

	return snap.Flatten(prefix)
}
