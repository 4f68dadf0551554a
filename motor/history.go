package motor

import "github.com/arloliu/go-motor/internal/util"

// History records commanded positions of one axis in order.
//
// The zero value is an empty history ready for use.
type History struct {
	positions []float64
}

// Append records a commanded position.
func (h *History) Append(pos float64) {
	h.positions = append(h.positions, pos)
}

// Last returns the most recent commanded position, or ErrNotCommanded.
func (h *History) Last() (float64, error) {
	if len(h.positions) == 0 {
		return 0, ErrNotCommanded
	}

	return h.positions[len(h.positions)-1], nil
}

// Len returns the number of recorded positions.
func (h *History) Len() int { return len(h.positions) }

// Positions returns a copy of the recorded positions.
func (h *History) Positions() []float64 {
	return util.CloneSlice(h.positions, 0)
}

// Commanded tracks the last commanded position of every axis of a device.
type Commanded struct {
	axes []History
}

// NewCommanded creates a tracker for naxes axes.
func NewCommanded(naxes int) *Commanded {
	return &Commanded{axes: make([]History, naxes)}
}

// Record appends pos to the history of the 1-based axis.
func (c *Commanded) Record(axis int, pos float64) {
	c.axes[axis-1].Append(pos)
}

// Last returns the last commanded position of the 1-based axis.
func (c *Commanded) Last(axis int) (float64, error) {
	return c.axes[axis-1].Last()
}

// History returns the history of the 1-based axis.
func (c *Commanded) History(axis int) *History {
	return &c.axes[axis-1]
}
