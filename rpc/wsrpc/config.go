package wsrpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-motor/logger"
)

// Default connection settings.
const (
	DefaultReadLimit      = 512 * 1024
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultSendQueueSize  = 64
	DefaultRequestTimeout = 90 * time.Second
)

// Config holds the configuration of a Server.
type Config struct {
	addr           string
	readLimit      int64
	writeTimeout   time.Duration
	pingInterval   time.Duration
	sendQueueSize  int
	requestTimeout time.Duration
	logger         logger.Logger
}

// NewConfig creates a server configuration listening on addr ("host:port";
// port 0 picks a free port).
func NewConfig(addr string, opts ...Option) (*Config, error) {
	if addr == "" {
		return nil, errors.New("wsrpc: listen address required")
	}

	cfg := &Config{
		addr:           addr,
		readLimit:      DefaultReadLimit,
		writeTimeout:   DefaultWriteTimeout,
		pingInterval:   DefaultPingInterval,
		sendQueueSize:  DefaultSendQueueSize,
		requestTimeout: DefaultRequestTimeout,
		logger:         logger.Of("wsrpc"),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Addr returns the configured listen address.
func (cfg *Config) Addr() string { return cfg.addr }

// RequestTimeout returns how long a client waits for the reply to a request.
func (cfg *Config) RequestTimeout() time.Duration { return cfg.requestTimeout }

// Option is a functional option for configuring a Server.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithReadLimit sets the maximum size of an incoming message in bytes.
func WithReadLimit(n int64) Option {
	return optFunc(func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("wsrpc: invalid read limit %d", n)
		}
		cfg.readLimit = n

		return nil
	})
}

// WithWriteTimeout sets the deadline of a single websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("wsrpc: invalid write timeout %v", d)
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithPingInterval sets the keepalive ping interval. Clients not answering
// within two intervals are dropped.
func WithPingInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("wsrpc: invalid ping interval %v", d)
		}
		cfg.pingInterval = d

		return nil
	})
}

// WithSendQueueSize sets the number of outgoing messages buffered per
// client. Messages to a client with a full queue are dropped.
func WithSendQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("wsrpc: invalid send queue size %d", n)
		}
		cfg.sendQueueSize = n

		return nil
	})
}

// WithRequestTimeout sets how long the server waits for the step loop to
// answer a request. It should exceed the longest blocking device move.
func WithRequestTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("wsrpc: invalid request timeout %v", d)
		}
		cfg.requestTimeout = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("wsrpc: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
