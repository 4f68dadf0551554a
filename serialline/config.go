package serialline

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-motor/logger"
)

// Default quiescence polling parameters.
const (
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultMaxIterations = 10000

	DefaultBaudRate = 115200
	DefaultDataBits = 8
)

// Config holds the configuration of a serial line.
type Config struct {
	device   string
	baudRate int
	dataBits int
	parity   Parity
	stopBits StopBits

	pollInterval  time.Duration
	maxIterations int

	opener Opener
	logger logger.Logger
}

// NewConfig creates a serial line configuration for the given device path
// (e.g. "/dev/ttyUSB0", "COM3"). Defaults are 115200 8N1 with the
// platform's default opener.
func NewConfig(device string, opts ...Option) (*Config, error) {
	if device == "" {
		return nil, errors.New("serialline: device path required")
	}

	cfg := &Config{
		device:        device,
		baudRate:      DefaultBaudRate,
		dataBits:      DefaultDataBits,
		parity:        ParityNone,
		stopBits:      Stop1,
		pollInterval:  DefaultPollInterval,
		maxIterations: DefaultMaxIterations,
		opener:        DefaultOpener(),
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Device returns the device path.
func (cfg *Config) Device() string { return cfg.device }

// BaudRate returns the baud rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// DataBits returns the number of data bits.
func (cfg *Config) DataBits() int { return cfg.dataBits }

// Parity returns the parity mode.
func (cfg *Config) Parity() Parity { return cfg.parity }

// StopBits returns the number of stop bits.
func (cfg *Config) StopBits() StopBits { return cfg.stopBits }

// PollInterval returns the interval between two input buffer samples.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// MaxIterations returns the maximum number of input buffer samples.
func (cfg *Config) MaxIterations() int { return cfg.maxIterations }

// Timeout returns the upper bound of one exchange: poll interval × max iterations.
func (cfg *Config) Timeout() time.Duration {
	return cfg.pollInterval * time.Duration(cfg.maxIterations)
}

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the baud rate.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if baud <= 0 {
			return fmt.Errorf("serialline: invalid baud rate %d", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithDataBits sets the number of data bits, 5 to 8.
func WithDataBits(bits int) Option {
	return optFunc(func(cfg *Config) error {
		if bits < 5 || bits > 8 {
			return fmt.Errorf("serialline: data bits %d out of range [5, 8]", bits)
		}
		cfg.dataBits = bits

		return nil
	})
}

// WithParity sets the parity mode.
func WithParity(p Parity) Option {
	return optFunc(func(cfg *Config) error {
		switch p {
		case ParityNone, ParityOdd, ParityEven, ParityMark, ParitySpace:
			cfg.parity = p
			return nil
		}

		return fmt.Errorf("serialline: invalid parity %q", rune(p))
	})
}

// WithStopBits sets the number of stop bits.
func WithStopBits(sb StopBits) Option {
	return optFunc(func(cfg *Config) error {
		switch sb {
		case Stop1, Stop1Half, Stop2:
			cfg.stopBits = sb
			return nil
		}

		return fmt.Errorf("serialline: invalid stop bits %d", sb)
	})
}

// WithPollInterval sets the interval between two input buffer samples.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("serialline: negative poll interval %v", d)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithMaxIterations sets the maximum number of input buffer samples per exchange.
func WithMaxIterations(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 2 {
			return fmt.Errorf("serialline: max iterations %d must be at least 2", n)
		}
		cfg.maxIterations = n

		return nil
	})
}

// WithOpener sets the function used to open the port.
func WithOpener(opener Opener) Option {
	return optFunc(func(cfg *Config) error {
		if opener == nil {
			return errors.New("serialline: opener is nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithDriver selects the opener by name: "termios" or "tarm". An empty name
// keeps the platform default.
func WithDriver(driver string) Option {
	return optFunc(func(cfg *Config) error {
		opener, err := openerFor(driver)
		if err != nil {
			return err
		}
		cfg.opener = opener

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("serialline: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
