package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-motor/logger"
)

// Runner drives a Stepper at a fixed interval.
type Runner struct {
	logger logger.Logger
}

// NewRunner creates a runner logging to l.
func NewRunner(l logger.Logger) *Runner {
	return &Runner{logger: l}
}

// Run calls s.Step every interval until s is terminated or ctx is done.
// When ctx ends first and s is also a Terminator, s is terminated before
// Run returns ctx.Err(). Step errors other than ErrTerminated are logged
// and do not stop the loop.
func (r *Runner) Run(ctx context.Context, s Stepper, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("controller: invalid step interval %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("runner started", "interval", interval)

	for !s.IsTerminated() {
		if err := s.Step(); err != nil {
			if errors.Is(err, ErrTerminated) {
				break
			}
			r.logger.Error("step failed", "error", err)
		}

		select {
		case <-ctx.Done():
			if t, ok := s.(Terminator); ok {
				t.Terminate()
			}
			r.logger.Info("runner stopped", "reason", ctx.Err())

			return ctx.Err()
		case <-ticker.C:
		}
	}

	r.logger.Info("runner stopped", "reason", "terminated")

	return nil
}
