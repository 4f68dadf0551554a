package controller

import (
	"fmt"
	"sort"

	"github.com/arloliu/go-motor/internal/link"
	"github.com/arloliu/go-motor/motor"
)

// ExtensionInfo describes a device extension.
type ExtensionInfo struct {
	Name     string `json:"name"`
	Mutating bool   `json:"mutating"`
}

// Diagnostics is the diagnostic channel of a controller. Its methods may be
// called from any goroutine concurrently with Step.
type Diagnostics struct {
	c *MotorController
}

// Diagnostics returns the diagnostic channel of the controller.
func (c *MotorController) Diagnostics() *Diagnostics {
	return &Diagnostics{c: c}
}

// Status returns the device status. With fresh set the cache is rebuilt
// first.
func (d *Diagnostics) Status(fresh bool) (motor.Snapshot, error) {
	if fresh {
		d.c.invalidateStatus()
	}

	return d.c.Status()
}

// Invalidate drops the cached status.
func (d *Diagnostics) Invalidate() { d.c.invalidateStatus() }

// StepCounter returns the number of completed steps.
func (d *Diagnostics) StepCounter() uint64 { return d.c.StepCounter() }

// State returns the controller lifecycle state.
func (d *Diagnostics) State() string { return d.c.State().String() }

// Snapshot returns the flattened status under prefix.
func (d *Diagnostics) Snapshot(prefix string) map[string]any { return d.c.Snapshot(prefix) }

// Metrics returns the controller counters and, when the device exposes
// them, its transport counters prefixed with "device.".
func (d *Diagnostics) Metrics() map[string]uint64 {
	out := d.c.metrics.Snapshot()

	if m, ok := d.c.dev.(interface{ Metrics() *link.Metrics }); ok {
		for k, v := range m.Metrics().Snapshot() {
			out["device."+k] = v
		}
	}

	return out
}

// Extensions lists the device extensions by name.
func (d *Diagnostics) Extensions() []ExtensionInfo {
	ext, ok := d.c.dev.(motor.Extender)
	if !ok {
		return nil
	}

	infos := make([]ExtensionInfo, 0)
	for _, e := range ext.Extensions() {
		infos = append(infos, ExtensionInfo{Name: e.Name, Mutating: e.Mutating})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// Exec runs the named device extension with exclusive device access. The
// status cache is invalidated after a mutating extension, even when it
// failed.
func (d *Diagnostics) Exec(name string, args []float64) (any, error) {
	ext, ok := d.c.dev.(motor.Extender)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtension, name)
	}

	var found *motor.Extension
	for _, e := range ext.Extensions() {
		if e.Name == name {
			found = &e
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtension, name)
	}

	d.c.logger.Info("executing extension", "name", name, "args", args)

	var result any
	err := d.c.withDevice(func(motor.Device) (err error) {
		result, err = found.Call(args)
		return err
	})
	if found.Mutating {
		d.c.invalidateStatus()
	}

	return result, err
}
