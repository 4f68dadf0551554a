// Package motor defines the capability set shared by every motorized
// instrument served by go-motor.
//
// A Device hides a hardware family (serial ASCII filter wheels, tunable
// filters, TCP picomotors, vendor SDK stages and controllers) behind one
// narrow interface so that the controller never special-cases hardware.
//
// # Axes
//
// Axes are 1-based: valid indexes are [1, NAxes()]. Every implementation
// calls ValidateAxis before touching its transport.
//
// # Errors
//
// Operations fail with errors wrapping one of the sentinels below, tested
// with errors.Is:
//
//   - ErrOutOfRange: commanded position outside the physical range (*RangeError)
//   - ErrInvalidAxis: axis index outside [1, NAxes()]
//   - ErrUnsupported: the device or axis lacks the capability
//   - ErrSerialTimeout: quiescence polling never saw a stable reply
//   - ErrCommunication: transport failure; the device reconnects on the next call
//   - ErrNotCommanded: no MoveTo has been issued on the axis yet
//
// ErrOutOfRange, ErrInvalidAxis and ErrUnsupported are deterministic
// rejections raised before any I/O.
package motor
