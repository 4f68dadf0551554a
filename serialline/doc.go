// Package serialline implements the command/response transport shared by
// every serial-attached instrument.
//
// # Quiescence polling
//
// Low-cost lab instruments rarely frame their replies unambiguously, so a
// reply is detected by silence rather than by length or terminator:
//
//  1. The command bytes are written.
//  2. The number of bytes waiting in the input buffer is sampled every poll
//     interval (default 10ms).
//  3. The reply is complete when two consecutive samples report the same
//     non-zero count.
//  4. If that never happens within the iteration bound (default 10000), the
//     exchange fails with a *SerialTimeoutError carrying the iteration count.
//  5. Otherwise exactly the waiting bytes are read and returned.
//
// # Reconnect policy
//
// A Line opens its port lazily on first use. When an exchange fails with an
// I/O error or a serial timeout, the port is closed and the line returns to
// the Disconnected state; the error is returned to the caller (wrapping
// motor.ErrCommunication) and the next call reconnects. Failed exchanges are
// never retried inline.
//
// A Line is NOT goroutine-safe. The owning device must serialize calls.
package serialline
