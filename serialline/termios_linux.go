//go:build linux

package serialline

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

var dataBitsFlags = map[int]uint32{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}

// termiosPort is a raw tty opened through termios ioctls.
type termiosPort struct {
	fd int
}

// OpenTermios opens cfg's device as a raw tty and reports waiting bytes
// through the TIOCINQ ioctl.
func OpenTermios(cfg *Config) (Port, error) {
	speed, ok := baudRates[cfg.baudRate]
	if !ok {
		return nil, fmt.Errorf("serialline: unsupported baud rate %d", cfg.baudRate)
	}
	if cfg.parity == ParityMark || cfg.parity == ParitySpace {
		return nil, fmt.Errorf("serialline: parity %q not supported by termios driver", rune(cfg.parity))
	}
	if cfg.stopBits == Stop1Half {
		return nil, fmt.Errorf("serialline: 1.5 stop bits not supported by termios driver")
	}

	fd, err := unix.Open(cfg.device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serialline: open %s: %w", cfg.device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serialline: get termios: %w", err)
	}

	// raw mode, no input/output processing
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CBAUD
	termios.Cflag |= dataBitsFlags[cfg.dataBits] | unix.CREAD | unix.CLOCAL | speed
	switch cfg.parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	}
	if cfg.stopBits == Stop2 {
		termios.Cflag |= unix.CSTOPB
	}
	termios.Ispeed = speed
	termios.Ospeed = speed

	// reads return what is available; bytes are only read after polling
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 1

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serialline: set termios: %w", err)
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serialline: set blocking: %w", err)
	}

	// discard stale input from a previous session
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)

	return &termiosPort{fd: fd}, nil
}

func (p *termiosPort) Read(b []byte) (int, error) {
	n, err := unix.Read(p.fd, b)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	return n, nil
}

func (p *termiosPort) Write(b []byte) (int, error) {
	n, err := unix.Write(p.fd, b)
	if n < 0 {
		n = 0
	}

	return n, err
}

func (p *termiosPort) InWaiting() (int, error) {
	return unix.IoctlGetInt(p.fd, unix.TIOCINQ)
}

func (p *termiosPort) Close() error {
	return unix.Close(p.fd)
}
