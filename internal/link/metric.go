package link

import "sync/atomic"

// Metrics contains atomic counters of a transport handle.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ConnectCount indicates the number of successful connections.
	ConnectCount atomic.Uint64
	// DisconnectCount indicates the number of handle teardowns.
	DisconnectCount atomic.Uint64
	// QueryCount indicates the number of command/response exchanges.
	QueryCount atomic.Uint64
	// TimeoutCount indicates the number of exchanges that timed out.
	TimeoutCount atomic.Uint64
	// IOErrorCount indicates the number of transport I/O errors.
	IOErrorCount atomic.Uint64
}

// Snapshot returns the counters as a name/value map.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"connect":    m.ConnectCount.Load(),
		"disconnect": m.DisconnectCount.Load(),
		"query":      m.QueryCount.Load(),
		"timeout":    m.TimeoutCount.Load(),
		"io_error":   m.IOErrorCount.Load(),
	}
}
