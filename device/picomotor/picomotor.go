// Package picomotor drives NewFocus 8742 picomotor controllers over their
// TCP line protocol.
//
// Commands are "<axis><opcode><args>\r\n". Replies end with "\r\n" and are
// read into a bounded buffer. The controller greets new telnet clients with
// IAC negotiation bytes (value 255); a reply starting with them is stripped
// and read again.
//
// Picomotors are open loop: positions are step counts relative to the power
// on position, and MoveTo issues a relative move of the difference between
// the target and the current position. When blocking is enabled MoveTo polls
// the motion done status until the move completes or the move timeout
// elapses.
package picomotor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-motor/internal/link"
	"github.com/arloliu/go-motor/internal/pool"
	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
)

const (
	// NumAxes is the number of motor channels of one controller.
	NumAxes = 4
	// StepsPerSIUnit assumes 20 nm per step.
	StepsPerSIUnit = 1.0 / 20e-9

	replyBufSize = 256
	iac          = 255
)

// ErrMoveTimeout is returned by a blocking MoveTo when the motion did not
// complete within the move timeout. The connection is kept.
var ErrMoveTimeout = errors.New("picomotor: motion not done before move timeout")

// Metrics contains the connection counters.
type Metrics = link.Metrics

// Picomotor is a NewFocus 8742 controller. It implements motor.Device,
// motor.Linker and motor.Extender.
//
// It is NOT goroutine-safe.
type Picomotor struct {
	name      string
	cfg       *Config
	conn      net.Conn
	stateMgr  *link.StateMgr
	commanded *motor.Commanded
	metrics   Metrics
	id        string
	logger    logger.Logger
}

var (
	_ motor.Device   = (*Picomotor)(nil)
	_ motor.Linker   = (*Picomotor)(nil)
	_ motor.Extender = (*Picomotor)(nil)
)

// New creates a disconnected picomotor controller.
func New(name string, cfg *Config) (*Picomotor, error) {
	if cfg == nil {
		return nil, errors.New("picomotor: config is nil")
	}

	p := &Picomotor{
		name:      name,
		cfg:       cfg,
		commanded: motor.NewCommanded(NumAxes),
		logger:    cfg.logger.With("component", "picomotor", "name", name, "addr", cfg.address),
	}
	p.stateMgr = link.NewStateMgr(p.logger, func(prev link.State, cur link.State) {
		p.logger.Info("picomotor link state changed", "prevState", prev, "newState", cur)
	})

	return p, nil
}

// Metrics returns the connection metrics.
func (p *Picomotor) Metrics() *Metrics { return &p.metrics }

// State returns the link state.
func (p *Picomotor) State() link.State { return p.stateMgr.State() }

// ID returns the identification string read at the last connection.
func (p *Picomotor) ID() string { return p.id }

func (p *Picomotor) Connected() bool { return p.stateMgr.IsConnected() }

// Connect opens the TCP connection if it is not open yet and reads the
// controller identification.
func (p *Picomotor) Connect() error {
	if p.stateMgr.IsConnected() {
		return nil
	}

	p.logger.Info("connecting to picomotor controller")

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.timeout)
	defer cancel()

	conn, err := p.cfg.dial(ctx, "tcp", p.cfg.address)
	if err != nil {
		p.countFailure(err)
		return fmt.Errorf("%w: dial %s: %w", motor.ErrCommunication, p.cfg.address, err)
	}

	id, err := p.exchange(conn, "*IDN?", true)
	if err != nil {
		_ = conn.Close()
		p.countFailure(err)

		return fmt.Errorf("%w: identify %s: %w", motor.ErrCommunication, p.cfg.address, err)
	}

	p.conn = conn
	p.id = id
	if err := p.stateMgr.ToConnected(); err != nil {
		return err
	}
	p.metrics.ConnectCount.Add(1)
	p.logger.Info("picomotor controller connected", "id", id)

	return nil
}

// Close closes the connection. The next command reconnects.
func (p *Picomotor) Close() error {
	if p.conn == nil {
		return nil
	}

	err := p.conn.Close()
	p.conn = nil
	p.stateMgr.ToDisconnected()
	p.metrics.DisconnectCount.Add(1)

	return err
}

// query sends a command and returns its reply.
func (p *Picomotor) query(cmd string) (string, error) {
	return p.guarded(cmd, true)
}

// send sends a command that has no reply.
func (p *Picomotor) send(cmd string) error {
	_, err := p.guarded(cmd, false)
	return err
}

func (p *Picomotor) guarded(cmd string, wantReply bool) (string, error) {
	if err := p.Connect(); err != nil {
		return "", err
	}

	p.metrics.QueryCount.Add(1)

	reply, err := p.exchange(p.conn, cmd, wantReply)
	if err != nil {
		p.countFailure(err)
		p.logger.Warn("picomotor exchange failed, dropping connection", "cmd", cmd, "error", err)
		_ = p.Close()

		return "", fmt.Errorf("%w: %s: %w", motor.ErrCommunication, p.cfg.address, err)
	}

	return reply, nil
}

func (p *Picomotor) exchange(conn net.Conn, cmd string, wantReply bool) (string, error) {
	if err := conn.SetDeadline(time.Now().Add(p.cfg.timeout)); err != nil {
		return "", err
	}

	p.logger.Debug("picomotor write", "cmd", cmd)
	if _, err := conn.Write([]byte(cmd + "\r\n")); err != nil {
		return "", err
	}

	if !wantReply {
		return "", nil
	}

	reply, err := readReply(conn)
	if err != nil {
		return "", err
	}
	p.logger.Debug("picomotor read", "reply", reply)

	return reply, nil
}

// readReply reads one "\r\n" terminated reply of at most replyBufSize bytes.
// Leading telnet negotiation bytes are discarded; if nothing else arrived
// with them the read is repeated.
func readReply(conn net.Conn) (string, error) {
	buf := make([]byte, 0, replyBufSize)
	chunk := make([]byte, replyBufSize)

	for {
		n, err := conn.Read(chunk[:replyBufSize-len(buf)])
		if n > 0 {
			data := chunk[:n]
			if len(buf) == 0 && data[0] == iac {
				data = stripIAC(data)
			}
			buf = append(buf, data...)

			if i := bytes.IndexByte(buf, '\n'); i >= 0 {
				return strings.TrimSpace(string(buf[:i])), nil
			}
		}
		if err != nil {
			return "", err
		}
		if len(buf) == replyBufSize {
			return "", fmt.Errorf("picomotor: reply exceeds %d bytes", replyBufSize)
		}
	}
}

// stripIAC drops telnet "IAC <verb> <option>" sequences from the start of data.
func stripIAC(data []byte) []byte {
	for len(data) > 0 && data[0] == iac {
		if len(data) < 3 {
			return nil
		}
		data = data[3:]
	}

	return data
}

func (p *Picomotor) countFailure(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		p.metrics.TimeoutCount.Add(1)
	} else {
		p.metrics.IOErrorCount.Add(1)
	}
}

func axisCmd(axis int, opcode string, args ...int) string {
	cmd := strconv.Itoa(axis) + opcode
	for _, a := range args {
		cmd += strconv.Itoa(a)
	}

	return cmd
}

func (p *Picomotor) queryInt(axis int, opcode string) (int, error) {
	reply, err := p.query(axisCmd(axis, opcode))
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(reply)
	if err != nil {
		return 0, motor.MalformedReply(p.name, reply)
	}

	return v, nil
}

func (p *Picomotor) Name() string { return p.name }

func (p *Picomotor) NAxes() int { return NumAxes }

// Position returns the step count of the axis.
func (p *Picomotor) Position(axis int) (float64, error) {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return 0, err
	}

	pos, err := p.queryInt(axis, "TP?")
	if err != nil {
		return 0, err
	}

	return float64(pos), nil
}

// MoveTo moves the axis to the absolute step count target by a relative
// move. With blocking enabled it returns once the motion is done.
func (p *Picomotor) MoveTo(axis int, target float64) error {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return err
	}
	if err := p.cfg.Range(axis).Check(axis, target); err != nil {
		return err
	}

	cur, err := p.Position(axis)
	if err != nil {
		return err
	}

	delta := int(math.Round(target - cur))
	if delta != 0 {
		if err := p.send(axisCmd(axis, "PR", delta)); err != nil {
			return err
		}
	}
	p.commanded.Record(axis, target)

	if !p.cfg.block || delta == 0 {
		return nil
	}

	return p.waitMotionDone(axis)
}

func (p *Picomotor) waitMotionDone(axis int) error {
	deadline := time.Now().Add(p.cfg.moveTimeout)
	for {
		moving, err := p.IsMoving(axis)
		if err != nil {
			return err
		}
		if !moving {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: axis %d after %v", ErrMoveTimeout, axis, p.cfg.moveTimeout)
		}
		pool.Sleep(p.cfg.pollInterval)
	}
}

// Home is not supported: picomotors have no reference switch.
func (p *Picomotor) Home(axis int) error {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return err
	}

	return motor.Unsupported(p.name, "home")
}

// Stop halts the motion of the axis.
func (p *Picomotor) Stop(axis int) error {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return err
	}

	return p.send(axisCmd(axis, "ST"))
}

func (p *Picomotor) Deinitialize(axis int) error {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return err
	}

	return motor.Unsupported(p.name, "deinitialize")
}

func (p *Picomotor) StepsPerSIUnit(axis int) (float64, error) {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return 0, err
	}

	return StepsPerSIUnit, nil
}

// WasHomed always reports true: the power on position is the reference.
func (p *Picomotor) WasHomed(axis int) (bool, error) {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return false, err
	}

	return true, nil
}

func (p *Picomotor) Type(axis int) (motor.MotorType, error) {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return 0, err
	}

	return motor.Linear, nil
}

// IsMoving queries the motion done status of the axis.
func (p *Picomotor) IsMoving(axis int) (bool, error) {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return false, err
	}

	done, err := p.queryInt(axis, "MD?")
	if err != nil {
		return false, err
	}

	return done == 0, nil
}

func (p *Picomotor) LastCommandedPosition(axis int) (float64, error) {
	if err := motor.ValidateAxis(NumAxes, axis); err != nil {
		return 0, err
	}

	return p.commanded.Last(axis)
}

// Extensions returns the acceleration and velocity setpoints of the
// controller. Every call takes the 1-based axis as first argument; setters
// take the value in steps/s² or steps/s as second argument.
func (p *Picomotor) Extensions() []motor.Extension {
	return []motor.Extension{
		{Name: "id", Call: func([]float64) (any, error) { return p.id, nil }},
		{Name: "acceleration", Call: p.getter("AC?")},
		{Name: "set_acceleration", Mutating: true, Call: p.setter("AC", 1, 200000)},
		{Name: "velocity", Call: p.getter("VA?")},
		{Name: "set_velocity", Mutating: true, Call: p.setter("VA", 1, 2000)},
	}
}

func (p *Picomotor) getter(opcode string) func([]float64) (any, error) {
	return func(args []float64) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("picomotor: %s takes the axis as only argument", opcode)
		}
		axis := int(args[0])
		if err := motor.ValidateAxis(NumAxes, axis); err != nil {
			return nil, err
		}

		return p.queryInt(axis, opcode)
	}
}

func (p *Picomotor) setter(opcode string, lo int, hi int) func([]float64) (any, error) {
	return func(args []float64) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("picomotor: %s takes axis and value", opcode)
		}
		axis := int(args[0])
		if err := motor.ValidateAxis(NumAxes, axis); err != nil {
			return nil, err
		}
		value := int(args[1])
		if value < lo || value > hi {
			return nil, fmt.Errorf("%w: %s value %d not in [%d, %d]", motor.ErrOutOfRange, opcode, value, lo, hi)
		}

		return nil, p.send(axisCmd(axis, opcode, value))
	}
}
