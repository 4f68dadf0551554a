package serialline

import (
	"fmt"
	"io"
	"runtime"
)

// Port is an open serial port able to report how many bytes are waiting to
// be read.
type Port interface {
	io.ReadWriteCloser

	// InWaiting returns the number of bytes available in the input buffer.
	InWaiting() (int, error)
}

// Opener opens a Port described by cfg.
type Opener func(cfg *Config) (Port, error)

// Parity is the parity mode of a serial port.
type Parity byte

const (
	ParityNone  Parity = 'N'
	ParityOdd   Parity = 'O'
	ParityEven  Parity = 'E'
	ParityMark  Parity = 'M'
	ParitySpace Parity = 'S'
)

// ParseParity converts a parity name ("N", "none", "E", "even", ...) to a Parity.
func ParseParity(s string) (Parity, error) {
	switch s {
	case "", "N", "n", "none", "NONE":
		return ParityNone, nil
	case "O", "o", "odd", "ODD":
		return ParityOdd, nil
	case "E", "e", "even", "EVEN":
		return ParityEven, nil
	case "M", "m", "mark", "MARK":
		return ParityMark, nil
	case "S", "s", "space", "SPACE":
		return ParitySpace, nil
	}

	return ParityNone, fmt.Errorf("serialline: invalid parity %q", s)
}

// StopBits is the number of stop bits of a serial port.
type StopBits byte

const (
	Stop1     StopBits = 1
	Stop1Half StopBits = 15
	Stop2     StopBits = 2
)

// ParseStopBits converts a stop bit count (1, 1.5 or 2; 0 means 1) to StopBits.
func ParseStopBits(n float64) (StopBits, error) {
	switch n {
	case 0, 1:
		return Stop1, nil
	case 1.5:
		return Stop1Half, nil
	case 2:
		return Stop2, nil
	}

	return Stop1, fmt.Errorf("serialline: invalid stop bits %g", n)
}

// Driver names accepted by WithDriver.
const (
	DriverTermios = "termios"
	DriverTarm    = "tarm"
)

// DefaultOpener returns the preferred opener for the running platform:
// termios on linux, the tarm/serial pump elsewhere.
func DefaultOpener() Opener {
	if runtime.GOOS == "linux" {
		return OpenTermios
	}

	return OpenPump
}

func openerFor(driver string) (Opener, error) {
	switch driver {
	case "":
		return DefaultOpener(), nil
	case DriverTermios:
		return OpenTermios, nil
	case DriverTarm:
		return OpenPump, nil
	}

	return nil, fmt.Errorf("serialline: unknown driver %q", driver)
}
