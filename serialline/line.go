package serialline

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/go-motor/internal/link"
	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
)

// ExchangeFunc writes a command and returns the reply.
type ExchangeFunc func(cmd []byte) ([]byte, error)

// ConnectHook runs right after the port is opened and before the line is
// marked connected, typically to identify the instrument. exchange talks to
// the freshly opened port without the reconnect guard.
type ConnectHook func(exchange ExchangeFunc) error

// Line is a guarded serial command/response channel.
//
// It is NOT goroutine-safe.
type Line struct {
	cfg       *Config
	logger    logger.Logger
	onConnect ConnectHook
	port      Port
	stateMgr  *link.StateMgr
	metrics   LineMetrics
}

// NewLine creates a disconnected Line. onConnect may be nil.
func NewLine(cfg *Config, onConnect ConnectHook) (*Line, error) {
	if cfg == nil {
		return nil, errors.New("serialline: config is nil")
	}

	l := &Line{
		cfg:       cfg,
		logger:    cfg.logger.With("port", cfg.device),
		onConnect: onConnect,
	}
	l.stateMgr = link.NewStateMgr(l.logger, func(prev link.State, cur link.State) {
		l.logger.Info("serial line state changed", "prevState", prev, "newState", cur)
	})

	return l, nil
}

// Config returns the line configuration.
func (l *Line) Config() *Config { return l.cfg }

// Metrics returns the line metrics.
func (l *Line) Metrics() *LineMetrics { return &l.metrics }

// State returns the link state.
func (l *Line) State() link.State { return l.stateMgr.State() }

// Connected reports whether the port is open.
func (l *Line) Connected() bool { return l.stateMgr.IsConnected() }

// Connect opens the port if it is not open yet.
func (l *Line) Connect() error {
	if l.stateMgr.IsConnected() {
		return nil
	}

	l.logger.Info("connecting serial line", "baud", l.cfg.baudRate)

	port, err := l.cfg.opener(l.cfg)
	if err != nil {
		l.metrics.IOErrorCount.Add(1)
		return fmt.Errorf("%w: open %s: %w", motor.ErrCommunication, l.cfg.device, err)
	}

	if l.onConnect != nil {
		if err := l.onConnect(func(cmd []byte) ([]byte, error) { return l.exchange(port, cmd) }); err != nil {
			_ = port.Close()
			l.countFailure(err)

			return fmt.Errorf("%w: handshake on %s: %w", motor.ErrCommunication, l.cfg.device, err)
		}
	}

	l.port = port
	if err := l.stateMgr.ToConnected(); err != nil {
		return err
	}
	l.metrics.ConnectCount.Add(1)

	return nil
}

// Close closes the port. The next Query or Send reconnects.
func (l *Line) Close() error {
	if l.port == nil {
		return nil
	}

	err := l.port.Close()
	l.port = nil
	l.stateMgr.ToDisconnected()
	l.metrics.DisconnectCount.Add(1)

	return err
}

// Query writes cmd and returns the reply detected by quiescence polling.
//
// On failure the port is torn down and the returned error wraps
// motor.ErrCommunication (and motor.ErrSerialTimeout for polling timeouts).
func (l *Line) Query(cmd []byte) ([]byte, error) {
	if err := l.Connect(); err != nil {
		return nil, err
	}

	l.metrics.QueryCount.Add(1)

	resp, err := l.exchange(l.port, cmd)
	if err != nil {
		return nil, l.fail(err)
	}

	return resp, nil
}

// QueryString is Query for ASCII commands.
func (l *Line) QueryString(cmd string) (string, error) {
	resp, err := l.Query([]byte(cmd))

	return string(resp), err
}

// Send writes cmd without waiting for a reply, for commands the instrument
// does not acknowledge.
func (l *Line) Send(cmd []byte) error {
	if err := l.Connect(); err != nil {
		return err
	}

	if err := writeAll(l.port, cmd); err != nil {
		return l.fail(err)
	}

	return nil
}

func (l *Line) exchange(port Port, cmd []byte) ([]byte, error) {
	l.logger.Debug("serial write", "cmd", string(cmd))

	if err := writeAll(port, cmd); err != nil {
		return nil, err
	}

	n, err := PollQuiescence(port, l.cfg.pollInterval, l.cfg.maxIterations)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(port, buf); err != nil {
		return nil, err
	}

	l.logger.Debug("serial read", "resp", string(buf))

	return buf, nil
}

// fail tears the port down and converts err to a communication error.
func (l *Line) fail(err error) error {
	l.countFailure(err)
	l.logger.Warn("serial exchange failed, dropping connection", "error", err)

	if cerr := l.Close(); cerr != nil {
		l.logger.Debug("close after failure", "error", cerr)
	}

	return fmt.Errorf("%w: %s: %w", motor.ErrCommunication, l.cfg.device, err)
}

func (l *Line) countFailure(err error) {
	var timeoutErr *SerialTimeoutError
	if errors.As(err, &timeoutErr) {
		l.metrics.TimeoutCount.Add(1)
	} else {
		l.metrics.IOErrorCount.Add(1)
	}
}

func writeAll(w io.Writer, data []byte) error {
	for written := 0; written < len(data); {
		n, err := w.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}

	return nil
}
