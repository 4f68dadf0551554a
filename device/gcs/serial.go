package gcs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/serialline"
)

// SerialBinding speaks ASCII GCS over a serial line. Commands without a
// reply are followed by an error register query.
type SerialBinding struct {
	line *serialline.Line
	id   string
}

var _ Binding = (*SerialBinding)(nil)

// NewSerialBinding creates a binding on the serial line described by cfg.
func NewSerialBinding(cfg *serialline.Config) (*SerialBinding, error) {
	b := &SerialBinding{}

	line, err := serialline.NewLine(cfg, func(exchange serialline.ExchangeFunc) error {
		resp, err := exchange([]byte("*IDN?\n"))
		if err != nil {
			return err
		}
		b.id = strings.TrimSpace(string(resp))

		return nil
	})
	if err != nil {
		return nil, err
	}
	b.line = line

	return b, nil
}

// ID returns the identification read at the last connection.
func (b *SerialBinding) ID() string { return b.id }

// Metrics returns the serial line metrics.
func (b *SerialBinding) Metrics() *serialline.LineMetrics { return b.line.Metrics() }

func (b *SerialBinding) Connect() error { return b.line.Connect() }

func (b *SerialBinding) Connected() bool { return b.line.Connected() }

func (b *SerialBinding) Close() error { return b.line.Close() }

// command sends a command without reply and checks the error register.
func (b *SerialBinding) command(format string, args ...any) error {
	cmd := fmt.Sprintf(format, args...)
	if err := b.line.Send([]byte(cmd + "\n")); err != nil {
		return err
	}

	resp, err := b.line.QueryString("ERR?\n")
	if err != nil {
		return err
	}

	code, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return motor.MalformedReply("gcs", resp)
	}
	if code != 0 {
		return &ControllerError{Cmd: cmd, Code: code}
	}

	return nil
}

// queryAxis sends "<cmd> <axis>" and returns the value of the "<axis>=<value>" reply.
func (b *SerialBinding) queryAxis(cmd string, axis int) (string, error) {
	resp, err := b.line.QueryString(fmt.Sprintf("%s %d\n", cmd, axis))
	if err != nil {
		return "", err
	}

	key, value, ok := strings.Cut(strings.TrimSpace(resp), "=")
	if !ok || strings.TrimSpace(key) != strconv.Itoa(axis) {
		return "", motor.MalformedReply("gcs", resp)
	}

	return strings.TrimSpace(value), nil
}

func (b *SerialBinding) queryFloat(cmd string, axis int) (float64, error) {
	value, err := b.queryAxis(cmd, axis)
	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, motor.MalformedReply("gcs", value)
	}

	return f, nil
}

func (b *SerialBinding) queryBool(cmd string, axis int) (bool, error) {
	value, err := b.queryAxis(cmd, axis)
	if err != nil {
		return false, err
	}

	switch value {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}

	return false, motor.MalformedReply("gcs", value)
}

func (b *SerialBinding) Move(axis int, position float64) error {
	return b.command("MOV %d %s", axis, strconv.FormatFloat(position, 'f', -1, 64))
}

func (b *SerialBinding) Position(axis int) (float64, error) {
	return b.queryFloat("POS?", axis)
}

func (b *SerialBinding) Reference(axis int) error {
	return b.command("FRF %d", axis)
}

func (b *SerialBinding) IsReferenced(axis int) (bool, error) {
	return b.queryBool("FRF?", axis)
}

func (b *SerialBinding) OnTarget(axis int) (bool, error) {
	return b.queryBool("ONT?", axis)
}

func (b *SerialBinding) Halt(axis int) error {
	err := b.command("HLT %d", axis)

	// the controller flags a halted motion with error 10
	var ce *ControllerError
	if errors.As(err, &ce) && ce.Code == 10 {
		return nil
	}

	return err
}

func (b *SerialBinding) Limits(axis int) (float64, float64, error) {
	lo, err := b.queryFloat("TMN?", axis)
	if err != nil {
		return 0, 0, err
	}
	hi, err := b.queryFloat("TMX?", axis)
	if err != nil {
		return 0, 0, err
	}

	return lo, hi, nil
}

func (b *SerialBinding) Velocity(axis int) (float64, error) {
	return b.queryFloat("VEL?", axis)
}

func (b *SerialBinding) SetVelocity(axis int, velocity float64) error {
	return b.command("VEL %d %s", axis, strconv.FormatFloat(velocity, 'f', -1, 64))
}
