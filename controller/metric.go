package controller

import "sync/atomic"

// Metrics counts controller activity.
type Metrics struct {
	StepCount       atomic.Uint64
	RequestCount    atomic.Uint64
	RequestErrCount atomic.Uint64
	PublishCount    atomic.Uint64
	PublishErrCount atomic.Uint64
	StatusErrCount  atomic.Uint64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"step":          m.StepCount.Load(),
		"request":       m.RequestCount.Load(),
		"request_error": m.RequestErrCount.Load(),
		"publish":       m.PublishCount.Load(),
		"publish_error": m.PublishErrCount.Load(),
		"status_error":  m.StatusErrCount.Load(),
	}
}
