// Package device builds motor devices from their configuration.
package device

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arloliu/go-motor/config"
	"github.com/arloliu/go-motor/device/filterwheel"
	"github.com/arloliu/go-motor/device/gcs"
	"github.com/arloliu/go-motor/device/linearstage"
	"github.com/arloliu/go-motor/device/picomotor"
	"github.com/arloliu/go-motor/device/tunablefilter"
	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/serialline"
)

// Travel of every axis of the simulated GCS controller, in millimeters.
const (
	simTravelMin = 0.0
	simTravelMax = 25.0
)

type options struct {
	opener       serialline.Opener
	dial         picomotor.DialFunc
	stageBinding linearstage.Binding
	gcsBinding   gcs.Binding
}

// Option is a functional option for New.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

// WithSerialOpener opens serial ports with opener instead of the configured driver.
func WithSerialOpener(opener serialline.Opener) Option {
	return optFunc(func(o *options) error {
		if opener == nil {
			return errors.New("device: serial opener is nil")
		}
		o.opener = opener

		return nil
	})
}

// WithDialer connects TCP devices with dial.
func WithDialer(dial picomotor.DialFunc) Option {
	return optFunc(func(o *options) error {
		if dial == nil {
			return errors.New("device: dialer is nil")
		}
		o.dial = dial

		return nil
	})
}

// WithStageBinding drives linear stages through b instead of the simulator.
func WithStageBinding(b linearstage.Binding) Option {
	return optFunc(func(o *options) error {
		if b == nil {
			return errors.New("device: stage binding is nil")
		}
		o.stageBinding = b

		return nil
	})
}

// WithGCSBinding drives GCS controllers through b regardless of the configured binding.
func WithGCSBinding(b gcs.Binding) Option {
	return optFunc(func(o *options) error {
		if b == nil {
			return errors.New("device: gcs binding is nil")
		}
		o.gcsBinding = b

		return nil
	})
}

// New creates the device described by cfg. The device is not connected; it
// connects on first use.
func New(cfg config.DeviceConfig, opts ...Option) (motor.Device, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	var (
		dev motor.Device
		err error
	)

	switch cfg.Type {
	case config.TypeFilterWheel:
		dev, err = newFilterWheel(cfg, o)
	case config.TypeTunableFilter:
		dev, err = newTunableFilter(cfg, o)
	case config.TypePicomotor:
		dev, err = newPicomotor(cfg, o)
	case config.TypeLinearStage:
		dev, err = newLinearStage(cfg, o)
	case config.TypeGCS:
		dev, err = newGCS(cfg, o)
	default:
		return nil, fmt.Errorf("device: unknown type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("device: %s %q: %w", cfg.Type, cfg.Name, err)
	}

	return dev, nil
}

func newFilterWheel(cfg config.DeviceConfig, o *options) (motor.Device, error) {
	if len(cfg.Ranges) > 0 {
		return nil, errors.New("ranges are fixed by the slot count")
	}

	lineCfg, err := serialConfig(cfg.Serial, o)
	if err != nil {
		return nil, err
	}

	slots := cfg.Slots
	if slots == 0 {
		slots = filterwheel.Slots6
	}

	return filterwheel.New(cfg.Name, slots, lineCfg)
}

func newTunableFilter(cfg config.DeviceConfig, o *options) (motor.Device, error) {
	if len(cfg.Ranges) > 0 {
		return nil, errors.New("ranges are set by MIN_WL and MAX_WL of the command file")
	}

	var lineOpts []serialline.Option
	if o.opener != nil {
		lineOpts = append(lineOpts, serialline.WithOpener(o.opener))
	}

	return tunablefilter.NewFromFile(cfg.Name, cfg.CommandFile, lineOpts...)
}

func newPicomotor(cfg config.DeviceConfig, o *options) (motor.Device, error) {
	var opts []picomotor.Option
	if cfg.Timeout > 0 {
		opts = append(opts, picomotor.WithTimeout(cfg.Timeout))
	}
	if cfg.MoveTimeout > 0 {
		opts = append(opts, picomotor.WithMoveTimeout(cfg.MoveTimeout))
	}
	if cfg.PollInterval > 0 {
		opts = append(opts, picomotor.WithPollInterval(cfg.PollInterval))
	}
	if cfg.Block != nil {
		opts = append(opts, picomotor.WithBlocking(*cfg.Block))
	}
	for _, axis := range sortedAxes(cfg.Ranges) {
		opts = append(opts, picomotor.WithRange(axis, cfg.Ranges[axis]))
	}
	if o.dial != nil {
		opts = append(opts, picomotor.WithDialer(o.dial))
	}

	picoCfg, err := picomotor.NewConfig(cfg.Address, opts...)
	if err != nil {
		return nil, err
	}

	return picomotor.New(cfg.Name, picoCfg)
}

func newLinearStage(cfg config.DeviceConfig, o *options) (motor.Device, error) {
	var opts []linearstage.Option
	for axis, r := range cfg.Ranges {
		if axis != 1 {
			return nil, fmt.Errorf("%w: %d not in [1, 1]", motor.ErrInvalidAxis, axis)
		}
		opts = append(opts, linearstage.WithRange(r))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, linearstage.WithTimeout(cfg.Timeout))
	}
	if cfg.PollInterval > 0 {
		opts = append(opts, linearstage.WithPollingInterval(cfg.PollInterval))
	}

	binding := o.stageBinding
	if binding == nil {
		binding = linearstage.NewSimBinding()
	}

	return linearstage.New(cfg.Name, cfg.SerialNumber, binding, opts...)
}

func newGCS(cfg config.DeviceConfig, o *options) (motor.Device, error) {
	naxes := cfg.NAxes
	if naxes == 0 {
		naxes = 1
	}

	binding := o.gcsBinding
	if binding == nil {
		switch cfg.Binding {
		case config.BindingSim:
			binding = gcs.NewSimBinding(naxes, simTravelMin, simTravelMax)
		case "", config.BindingSerial:
			lineCfg, err := serialConfig(cfg.Serial, o)
			if err != nil {
				return nil, err
			}
			if binding, err = gcs.NewSerialBinding(lineCfg); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown binding %q", cfg.Binding)
		}
	}

	var opts []gcs.Option
	for _, axis := range sortedAxes(cfg.Ranges) {
		opts = append(opts, gcs.WithRange(axis, cfg.Ranges[axis]))
	}

	return gcs.New(cfg.Name, naxes, binding, opts...)
}

// serialConfig converts serial settings to a line configuration. Zero
// values keep the line defaults.
func serialConfig(sc config.SerialConfig, o *options) (*serialline.Config, error) {
	var opts []serialline.Option

	if sc.BaudRate > 0 {
		opts = append(opts, serialline.WithBaudRate(sc.BaudRate))
	}
	if sc.DataBits > 0 {
		opts = append(opts, serialline.WithDataBits(sc.DataBits))
	}

	parity, err := serialline.ParseParity(sc.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := serialline.ParseStopBits(sc.StopBits)
	if err != nil {
		return nil, err
	}
	opts = append(opts, serialline.WithParity(parity), serialline.WithStopBits(stopBits))

	if sc.PollInterval > 0 {
		opts = append(opts, serialline.WithPollInterval(sc.PollInterval))
	}
	if sc.MaxIterations > 0 {
		opts = append(opts, serialline.WithMaxIterations(sc.MaxIterations))
	}

	if o.opener != nil {
		opts = append(opts, serialline.WithOpener(o.opener))
	} else {
		opts = append(opts, serialline.WithDriver(sc.Driver))
	}

	return serialline.NewConfig(sc.Device, opts...)
}

func sortedAxes(ranges map[int]motor.Range) []int {
	axes := make([]int, 0, len(ranges))
	for axis := range ranges {
		axes = append(axes, axis)
	}
	sort.Ints(axes)

	return axes
}
