package picomotor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
)

const (
	// DefaultPort is the telnet port of the 8742 controller.
	DefaultPort = 23
	// DefaultTimeout bounds one TCP round trip.
	DefaultTimeout = 2 * time.Second
	// DefaultMoveTimeout bounds the wait for a blocking move.
	DefaultMoveTimeout = 60 * time.Second
	// DefaultPollInterval is the interval between two motion done queries.
	DefaultPollInterval = 50 * time.Millisecond
)

// DialFunc connects to address.
type DialFunc func(ctx context.Context, network string, address string) (net.Conn, error)

// Config holds the configuration of a picomotor controller connection.
type Config struct {
	address      string
	timeout      time.Duration
	moveTimeout  time.Duration
	pollInterval time.Duration
	block        bool
	ranges       [NumAxes]motor.Range
	dial         DialFunc
	logger       logger.Logger
}

// NewConfig creates a configuration for the controller at address
// ("host" or "host:port"). Moves block by default and every axis accepts
// the full 32-bit step range.
func NewConfig(address string, opts ...Option) (*Config, error) {
	if address == "" {
		return nil, errors.New("picomotor: address required")
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, fmt.Sprint(DefaultPort))
	}

	cfg := &Config{
		address:      address,
		timeout:      DefaultTimeout,
		moveTimeout:  DefaultMoveTimeout,
		pollInterval: DefaultPollInterval,
		block:        true,
		logger:       logger.GetLogger(),
	}
	for i := range cfg.ranges {
		cfg.ranges[i] = motor.Range{Min: math.MinInt32, Max: math.MaxInt32}
	}
	dialer := &net.Dialer{}
	cfg.dial = dialer.DialContext

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Address returns the "host:port" of the controller.
func (cfg *Config) Address() string { return cfg.address }

// Timeout returns the round trip timeout.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// MoveTimeout returns the maximum wait for a blocking move.
func (cfg *Config) MoveTimeout() time.Duration { return cfg.moveTimeout }

// Blocking reports whether MoveTo waits for the motion to complete.
func (cfg *Config) Blocking() bool { return cfg.block }

// Range returns the step range of the 1-based axis.
func (cfg *Config) Range(axis int) motor.Range { return cfg.ranges[axis-1] }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithTimeout sets the round trip timeout, connection included.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("picomotor: invalid timeout %v", d)
		}
		cfg.timeout = d

		return nil
	})
}

// WithMoveTimeout sets the maximum wait for a blocking move.
func WithMoveTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("picomotor: invalid move timeout %v", d)
		}
		cfg.moveTimeout = d

		return nil
	})
}

// WithPollInterval sets the interval between two motion done queries.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("picomotor: negative poll interval %v", d)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithBlocking sets whether MoveTo waits for the motion to complete.
func WithBlocking(block bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.block = block
		return nil
	})
}

// WithRange limits the step range of the 1-based axis.
func WithRange(axis int, r motor.Range) Option {
	return optFunc(func(cfg *Config) error {
		if err := motor.ValidateAxis(NumAxes, axis); err != nil {
			return err
		}
		if !r.Valid() {
			return fmt.Errorf("picomotor: invalid range [%g, %g]", r.Min, r.Max)
		}
		cfg.ranges[axis-1] = r

		return nil
	})
}

// WithDialer replaces the function used to open the TCP connection.
func WithDialer(dial DialFunc) Option {
	return optFunc(func(cfg *Config) error {
		if dial == nil {
			return errors.New("picomotor: dialer is nil")
		}
		cfg.dial = dial

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("picomotor: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
