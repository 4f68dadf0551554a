package controller

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/arloliu/go-motor/internal/link"
	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
	"github.com/stretchr/testify/mock"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	os.Exit(m.Run())
}

func newMockLogger() *logger.MockLogger {
	l := logger.NewMockLogger()
	l.On("Debug", mock.Anything, mock.Anything).Return()
	l.On("Info", mock.Anything, mock.Anything).Return()
	l.On("Warn", mock.Anything, mock.Anything).Return()
	l.On("Error", mock.Anything, mock.Anything).Return()

	return l
}

// fakeDevice is a goroutine safe in-memory device whose axes range over
// [0, 10]. Home is unsupported on every axis, Deinitialize on axis 2.
type fakeDevice struct {
	mu        sync.Mutex
	naxes     int
	positions []float64
	commanded *motor.Commanded
	failNext  error
	calls     map[string]int
	closed    bool
	speed     float64
	metrics   link.Metrics
}

var (
	_ motor.Device   = (*fakeDevice)(nil)
	_ motor.Linker   = (*fakeDevice)(nil)
	_ motor.Extender = (*fakeDevice)(nil)
)

func newFakeDevice(naxes int) *fakeDevice {
	return &fakeDevice{
		naxes:     naxes,
		positions: make([]float64, naxes),
		commanded: motor.NewCommanded(naxes),
		calls:     map[string]int{},
	}
}

func (d *fakeDevice) FailNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failNext = err
}

func (d *fakeDevice) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls[op]
}

func (d *fakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}

// enter records the call and validates the axis. Callers hold mu.
func (d *fakeDevice) enter(op string, axis int) error {
	d.calls[op]++

	if err := motor.ValidateAxis(d.naxes, axis); err != nil {
		return err
	}
	if err := d.failNext; err != nil {
		d.failNext = nil
		return err
	}

	return nil
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) NAxes() int { return d.naxes }

func (d *fakeDevice) Position(axis int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter("position", axis); err != nil {
		return 0, err
	}
	d.metrics.QueryCount.Add(1)

	return d.positions[axis-1], nil
}

func (d *fakeDevice) MoveTo(axis int, target float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter("move_to", axis); err != nil {
		return err
	}
	if err := (motor.Range{Min: 0, Max: 10}).Check(axis, target); err != nil {
		return err
	}
	d.positions[axis-1] = target
	d.commanded.Record(axis, target)

	return nil
}

func (d *fakeDevice) Home(axis int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter("home", axis); err != nil {
		return err
	}

	return motor.Unsupported("fake", "home")
}

func (d *fakeDevice) Stop(axis int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.enter("stop", axis)
}

func (d *fakeDevice) Deinitialize(axis int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter("deinitialize", axis); err != nil {
		return err
	}
	if axis == 2 {
		return motor.Unsupported("fake", "deinitialize")
	}

	return nil
}

func (d *fakeDevice) StepsPerSIUnit(axis int) (float64, error) {
	return 1000, motor.ValidateAxis(d.naxes, axis)
}

func (d *fakeDevice) WasHomed(axis int) (bool, error) {
	if err := motor.ValidateAxis(d.naxes, axis); err != nil {
		return false, err
	}

	return false, motor.Unsupported("fake", "was_homed")
}

func (d *fakeDevice) Type(axis int) (motor.MotorType, error) {
	return motor.Linear, motor.ValidateAxis(d.naxes, axis)
}

func (d *fakeDevice) IsMoving(axis int) (bool, error) {
	return false, motor.ValidateAxis(d.naxes, axis)
}

func (d *fakeDevice) LastCommandedPosition(axis int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := motor.ValidateAxis(d.naxes, axis); err != nil {
		return 0, err
	}

	return d.commanded.Last(axis)
}

func (d *fakeDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return !d.closed
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls["close"]++
	d.closed = true

	return nil
}

func (d *fakeDevice) Metrics() *link.Metrics { return &d.metrics }

func (d *fakeDevice) Extensions() []motor.Extension {
	return []motor.Extension{
		{Name: "speed", Call: func([]float64) (any, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.speed, nil
		}},
		{Name: "set_speed", Mutating: true, Call: func(args []float64) (any, error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			if len(args) != 1 {
				return nil, errors.New("set_speed takes one argument")
			}
			d.speed = args[0]
			return nil, nil
		}},
	}
}

// recordingPublisher keeps every published snapshot.
type recordingPublisher struct {
	mu    sync.Mutex
	snaps []motor.Snapshot
	err   error
}

func (p *recordingPublisher) PublishStatus(snap motor.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.snaps = append(p.snaps, snap)

	return nil
}

func (p *recordingPublisher) Snapshots() []motor.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]motor.Snapshot(nil), p.snaps...)
}

func (p *recordingPublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.err = err
}
