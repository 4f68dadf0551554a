package serialline

import (
	"fmt"
	"time"

	"github.com/arloliu/go-motor/internal/pool"
	"github.com/arloliu/go-motor/motor"
)

// SerialTimeoutError reports that quiescence polling never observed a
// stable, non-empty input buffer.
type SerialTimeoutError struct {
	// Iterations is the number of input buffer samples taken.
	Iterations int
}

func (e *SerialTimeoutError) Error() string {
	return fmt.Sprintf("serialline: missing response after %d iterations", e.Iterations)
}

// Unwrap returns motor.ErrSerialTimeout.
func (e *SerialTimeoutError) Unwrap() error { return motor.ErrSerialTimeout }

// PollQuiescence samples port.InWaiting every interval until two consecutive
// samples report the same non-zero count, and returns that count.
//
// It fails with *SerialTimeoutError after maxIterations samples, or with the
// port's error if sampling fails.
func PollQuiescence(port Port, interval time.Duration, maxIterations int) (int, error) {
	prev := 0
	for it := 1; ; it++ {
		n, err := port.InWaiting()
		if err != nil {
			return 0, err
		}

		if n > 0 && n == prev {
			return n, nil
		}

		if it >= maxIterations {
			return 0, &SerialTimeoutError{Iterations: it}
		}

		prev = n
		pool.Sleep(interval)
	}
}
