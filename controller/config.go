package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-motor/logger"
)

// DefaultRateWindow is the default interval between two step rate reports.
const DefaultRateWindow = 10 * time.Second

// ServerInfo identifies the server hosting a controller.
type ServerInfo struct {
	Name  string `json:"name"`
	Host  string `json:"host"`
	Ports []int  `json:"ports"`
}

// Config holds the configuration of a MotorController.
type Config struct {
	serverInfo ServerInfo
	rateWindow time.Duration
	logger     logger.Logger
}

// NewConfig creates a controller configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		rateWindow: DefaultRateWindow,
		logger:     logger.Of("controller"),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ServerInfo returns the server identity.
func (cfg *Config) ServerInfo() ServerInfo { return cfg.serverInfo }

// RateWindow returns the step rate report interval.
func (cfg *Config) RateWindow() time.Duration { return cfg.rateWindow }

// Option is a functional option for configuring a controller.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithServerInfo sets the server identity reported by server_info.
func WithServerInfo(info ServerInfo) Option {
	return optFunc(func(cfg *Config) error {
		cfg.serverInfo = info
		return nil
	})
}

// WithRateWindow sets the interval between two step rate reports.
func WithRateWindow(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("controller: invalid rate window %v", d)
		}
		cfg.rateWindow = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("controller: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
