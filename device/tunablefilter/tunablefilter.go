// Package tunablefilter drives serial tunable filters (liquid crystal or
// acousto-optic) whose protocol is described by a YAML command file.
//
// The filter has one linear axis, the wavelength in nanometers. Its position
// is absolute, so it never needs homing. MoveTo blocks until the instrument
// acknowledged the new wavelength.
package tunablefilter

import (
	"strconv"
	"strings"

	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/serialline"
)

// StepsPerSIUnit is the number of device units per meter: one step is one nanometer.
const StepsPerSIUnit = 1e9

// TunableFilter implements motor.Device, motor.Linker and motor.Extender.
type TunableFilter struct {
	name      string
	cmds      *CommandFile
	line      *serialline.Line
	commanded *motor.Commanded
	status    string
	logger    logger.Logger
}

var (
	_ motor.Device   = (*TunableFilter)(nil)
	_ motor.Linker   = (*TunableFilter)(nil)
	_ motor.Extender = (*TunableFilter)(nil)
)

// New creates a tunable filter on the port named by cmds. opts are applied
// after the serial settings of the command file.
func New(name string, cmds *CommandFile, opts ...serialline.Option) (*TunableFilter, error) {
	lineOpts, err := cmds.LineOptions()
	if err != nil {
		return nil, err
	}

	cfg, err := serialline.NewConfig(cmds.Port, append(lineOpts, opts...)...)
	if err != nil {
		return nil, err
	}

	tf := &TunableFilter{
		name:      name,
		cmds:      cmds,
		commanded: motor.NewCommanded(1),
		logger:    logger.Of("tunablefilter").With("name", name),
	}

	tf.line, err = serialline.NewLine(cfg, tf.handshake)
	if err != nil {
		return nil, err
	}

	return tf, nil
}

// NewFromFile loads the command file at path and creates the filter.
func NewFromFile(name string, path string, opts ...serialline.Option) (*TunableFilter, error) {
	cmds, err := LoadCommandFile(path)
	if err != nil {
		return nil, err
	}

	return New(name, cmds, opts...)
}

func (tf *TunableFilter) handshake(exchange serialline.ExchangeFunc) error {
	if tf.cmds.ReadStatus == "" {
		return nil
	}

	resp, err := exchange([]byte(tf.cmds.ReadStatus))
	if err != nil {
		return err
	}
	tf.status = strings.TrimSpace(string(resp))
	tf.logger.Info("tunable filter connected", "status", tf.status)

	return nil
}

// Metrics returns the serial line metrics.
func (tf *TunableFilter) Metrics() *serialline.LineMetrics { return tf.line.Metrics() }

func (tf *TunableFilter) Name() string { return tf.name }

func (tf *TunableFilter) NAxes() int { return 1 }

// Position returns the current wavelength, the third token of the READ_WL reply.
func (tf *TunableFilter) Position(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	resp, err := tf.line.QueryString(tf.cmds.ReadWL)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(resp)
	if len(fields) < 3 {
		return 0, motor.MalformedReply(tf.name, resp)
	}

	wl, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, motor.MalformedReply(tf.name, resp)
	}
	tf.logger.Debug("current wavelength", "nm", wl)

	return wl, nil
}

// MoveTo tunes the filter to wavelength target in nanometers.
func (tf *TunableFilter) MoveTo(axis int, target float64) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}
	if err := tf.cmds.Range().Check(axis, target); err != nil {
		return err
	}

	cmd, err := tf.cmds.RenderWriteWL(target)
	if err != nil {
		return err
	}

	if _, err := tf.line.QueryString(cmd); err != nil {
		return err
	}
	tf.commanded.Record(axis, target)

	return nil
}

// Home is not supported: the wavelength is absolute.
func (tf *TunableFilter) Home(axis int) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}

	return motor.Unsupported(tf.name, "home")
}

// Stop sends the ESCAPE command, aborting a pending tuning. It is
// unsupported when the command file defines no ESCAPE command.
func (tf *TunableFilter) Stop(axis int) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}
	if tf.cmds.Escape == "" {
		return motor.Unsupported(tf.name, "stop")
	}

	_, err := tf.line.QueryString(tf.cmds.Escape)

	return err
}

// Deinitialize releases the serial port.
func (tf *TunableFilter) Deinitialize(axis int) error {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return err
	}

	return tf.line.Close()
}

func (tf *TunableFilter) StepsPerSIUnit(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return StepsPerSIUnit, nil
}

func (tf *TunableFilter) WasHomed(axis int) (bool, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return false, err
	}

	return true, nil
}

func (tf *TunableFilter) Type(axis int) (motor.MotorType, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return motor.Linear, nil
}

// IsMoving always reports false: MoveTo returns once the filter is tuned.
func (tf *TunableFilter) IsMoving(axis int) (bool, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return false, err
	}

	return false, nil
}

func (tf *TunableFilter) LastCommandedPosition(axis int) (float64, error) {
	if err := motor.ValidateAxis(1, axis); err != nil {
		return 0, err
	}

	return tf.commanded.Last(axis)
}

func (tf *TunableFilter) Connected() bool { return tf.line.Connected() }

func (tf *TunableFilter) Close() error { return tf.line.Close() }

// Extensions returns the raw protocol commands defined by the command file:
// reset, status, busy and cancel. Each returns the trimmed reply.
func (tf *TunableFilter) Extensions() []motor.Extension {
	var exts []motor.Extension

	add := func(name string, cmd string, mutating bool) {
		if cmd == "" {
			return
		}
		exts = append(exts, motor.Extension{
			Name:     name,
			Mutating: mutating,
			Call: func([]float64) (any, error) {
				resp, err := tf.line.QueryString(cmd)
				if err != nil {
					return nil, err
				}

				return strings.TrimSpace(resp), nil
			},
		})
	}

	add("reset", tf.cmds.Reset, true)
	add("status", tf.cmds.ReadStatus, false)
	add("busy", tf.cmds.BusyCheck, false)
	add("cancel", tf.cmds.Escape, true)

	return exts
}
