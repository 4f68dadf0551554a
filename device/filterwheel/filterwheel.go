// Package filterwheel drives Thorlabs FW102C/FW212C filter wheels over their
// serial ASCII protocol.
//
// The wheel has a single rotary axis whose positions are the slots 1..N
// (N = 6 or 12). Every command is echoed by the instrument and followed by
// a "> " prompt; replies are detected by quiescence polling, so MoveTo
// blocks until the wheel acknowledged the new slot.
package filterwheel

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/serialline"
)

const (
	cmdID       = "*idn?\r"
	cmdPosition = "pos?\r"
	cmdMoveTo   = "pos=%d\r"
	cmdSpeed    = "speed?\r"
	cmdSetSpeed = "speed=%d\r"
)

// Supported slot counts.
const (
	Slots6  = 6
	Slots12 = 12
)

// FilterWheel is a FW102C filter wheel. It implements motor.Device,
// motor.Linker and motor.Extender.
type FilterWheel struct {
	name      string
	slots     int
	line      *serialline.Line
	commanded *motor.Commanded
	id        string
	logger    logger.Logger
}

var (
	_ motor.Device   = (*FilterWheel)(nil)
	_ motor.Linker   = (*FilterWheel)(nil)
	_ motor.Extender = (*FilterWheel)(nil)
)

// New creates a filter wheel with the given number of slots on the serial
// line described by lineCfg. The port is opened lazily on first use.
func New(name string, slots int, lineCfg *serialline.Config) (*FilterWheel, error) {
	if slots != Slots6 && slots != Slots12 {
		return nil, fmt.Errorf("filterwheel: unsupported slot count %d", slots)
	}

	fw := &FilterWheel{
		name:      name,
		slots:     slots,
		commanded: motor.NewCommanded(1),
		logger:    logger.Of("filterwheel").With("name", name),
	}

	line, err := serialline.NewLine(lineCfg, fw.handshake)
	if err != nil {
		return nil, err
	}
	fw.line = line

	return fw, nil
}

// handshake identifies the wheel right after the port is opened.
func (fw *FilterWheel) handshake(exchange serialline.ExchangeFunc) error {
	resp, err := exchange([]byte(cmdID))
	if err != nil {
		return err
	}

	fw.id = payload(cmdID, string(resp))
	fw.logger.Info("filter wheel connected", "id", fw.id)

	return nil
}

// ID returns the identification string read at the last connection.
func (fw *FilterWheel) ID() string { return fw.id }

// Range returns the slot range.
func (fw *FilterWheel) Range() motor.Range {
	return motor.Range{Min: 1, Max: float64(fw.slots)}
}

// Metrics returns the serial line metrics.
func (fw *FilterWheel) Metrics() *serialline.LineMetrics { return fw.line.Metrics() }

func (fw *FilterWheel) Name() string { return fw.name }

func (fw *FilterWheel) NAxes() int { return 1 }

// Position returns the current slot.
func (fw *FilterWheel) Position(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	resp, err := fw.line.QueryString(cmdPosition)
	if err != nil {
		return 0, err
	}

	// "pos?\r3\r> "
	fields := strings.Fields(resp)
	if len(fields) < 2 {
		return 0, motor.MalformedReply(fw.name, resp)
	}

	pos, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, motor.MalformedReply(fw.name, resp)
	}
	fw.logger.Debug("current slot", "slot", pos)

	return pos, nil
}

// MoveTo rotates the wheel to slot target, blocking until the instrument
// acknowledged the command.
func (fw *FilterWheel) MoveTo(axis int, target float64) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}
	if err := fw.Range().Check(axis, target); err != nil {
		return err
	}
	if target != math.Trunc(target) {
		return fmt.Errorf("%w: slot %g is not an integer", motor.ErrOutOfRange, target)
	}

	if _, err := fw.line.QueryString(fmt.Sprintf(cmdMoveTo, int(target))); err != nil {
		return err
	}
	fw.commanded.Record(axis, target)

	return nil
}

func (fw *FilterWheel) Home(axis int) error {
	return fw.unsupported(axis, "home")
}

func (fw *FilterWheel) Stop(axis int) error {
	return fw.unsupported(axis, "stop")
}

func (fw *FilterWheel) Deinitialize(axis int) error {
	return fw.unsupported(axis, "deinitialize")
}

func (fw *FilterWheel) StepsPerSIUnit(axis int) (float64, error) {
	return 0, fw.unsupported(axis, "steps_per_si_unit")
}

func (fw *FilterWheel) WasHomed(axis int) (bool, error) {
	return false, fw.unsupported(axis, "was_homed")
}

func (fw *FilterWheel) Type(axis int) (motor.MotorType, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return motor.Rotary, nil
}

func (fw *FilterWheel) IsMoving(axis int) (bool, error) {
	return false, fw.unsupported(axis, "is_moving")
}

func (fw *FilterWheel) LastCommandedPosition(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return fw.commanded.Last(axis)
}

// History returns the commanded slot history.
func (fw *FilterWheel) History() []float64 {
	return fw.commanded.History(1).Positions()
}

func (fw *FilterWheel) Connected() bool { return fw.line.Connected() }

func (fw *FilterWheel) Close() error { return fw.line.Close() }

// Extensions returns the wheel specific operations:
//
//   - id: re-reads the identification string.
//   - speed: with no argument reads the speed mode, with one argument
//     sets it (0 = slow, 1 = high).
func (fw *FilterWheel) Extensions() []motor.Extension {
	return []motor.Extension{
		{Name: "id", Call: func([]float64) (any, error) {
			resp, err := fw.line.QueryString(cmdID)
			if err != nil {
				return nil, err
			}
			fw.id = payload(cmdID, resp)

			return fw.id, nil
		}},
		{Name: "speed", Call: fw.speed},
	}
}

func (fw *FilterWheel) speed(args []float64) (any, error) {
	switch len(args) {
	case 0:
		resp, err := fw.line.QueryString(cmdSpeed)
		if err != nil {
			return nil, err
		}
		mode, err := strconv.Atoi(payload(cmdSpeed, resp))
		if err != nil {
			return nil, motor.MalformedReply(fw.name, resp)
		}

		return mode, nil
	case 1:
		if args[0] != 0 && args[0] != 1 {
			return nil, fmt.Errorf("filterwheel: speed mode must be 0 or 1, got %g", args[0])
		}
		_, err := fw.line.QueryString(fmt.Sprintf(cmdSetSpeed, int(args[0])))

		return nil, err
	default:
		return nil, fmt.Errorf("filterwheel: speed takes at most one argument, got %d", len(args))
	}
}

func (fw *FilterWheel) unsupported(axis int, op string) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}

	return motor.Unsupported(fw.name, op)
}

// payload strips the command echo and the trailing prompt from a reply.
func payload(cmd string, resp string) string {
	resp = strings.TrimPrefix(resp, cmd)
	resp = strings.TrimSpace(resp)
	resp = strings.TrimSuffix(resp, ">")

	return strings.TrimSpace(resp)
}
