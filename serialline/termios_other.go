//go:build !linux

package serialline

import (
	"errors"
)

// OpenTermios is only available on linux; use the tarm driver elsewhere.
func OpenTermios(cfg *Config) (Port, error) {
	return nil, errors.New("serialline: termios driver is only supported on linux")
}
