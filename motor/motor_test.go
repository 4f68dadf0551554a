package motor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	naxes     int
	positions []float64
	commanded *Commanded
	posErr    error
}

func newFakeDevice(naxes int) *fakeDevice {
	return &fakeDevice{naxes: naxes, positions: make([]float64, naxes), commanded: NewCommanded(naxes)}
}

func (d *fakeDevice) Name() string { return "fake" }
func (d *fakeDevice) NAxes() int   { return d.naxes }

func (d *fakeDevice) Position(axis int) (float64, error) {
	if d.posErr != nil {
		return 0, d.posErr
	}
	return d.positions[axis-1], nil
}

func (d *fakeDevice) MoveTo(axis int, target float64) error {
	d.positions[axis-1] = target
	d.commanded.Record(axis, target)
	return nil
}

func (d *fakeDevice) Home(int) error         { return Unsupported("fake", "home") }
func (d *fakeDevice) Stop(int) error         { return nil }
func (d *fakeDevice) Deinitialize(int) error { return nil }

func (d *fakeDevice) StepsPerSIUnit(int) (float64, error) { return 1000, nil }
func (d *fakeDevice) WasHomed(int) (bool, error)          { return false, Unsupported("fake", "was_homed") }
func (d *fakeDevice) Type(axis int) (MotorType, error) {
	if axis == 2 {
		return Rotary, nil
	}
	return Linear, nil
}
func (d *fakeDevice) IsMoving(int) (bool, error) { return false, nil }
func (d *fakeDevice) LastCommandedPosition(axis int) (float64, error) {
	return d.commanded.Last(axis)
}

func TestValidateAxis(t *testing.T) {
	require.NoError(t, ValidateAxis(4, 1))
	require.NoError(t, ValidateAxis(4, 4))

	for _, axis := range []int{0, -1, 5} {
		err := ValidateAxis(4, axis)
		assert.ErrorIs(t, err, ErrInvalidAxis, "axis %d", axis)
		assert.True(t, IsRejection(err))
	}
}

func TestRange_Check(t *testing.T) {
	r := Range{Min: 0, Max: 150}
	require.True(t, r.Valid())

	for _, target := range []float64{0, 75.5, 150} {
		assert.NoError(t, r.Check(1, target), "target %g", target)
	}

	for _, target := range []float64{-0.001, 150.0001, 200, math.NaN(), math.Inf(1)} {
		err := r.Check(1, target)

		var rangeErr *RangeError
		require.ErrorAs(t, err, &rangeErr, "target %g", target)
		assert.Equal(t, 1, rangeErr.Axis)
		assert.Equal(t, 0.0, rangeErr.Min)
		assert.Equal(t, 150.0, rangeErr.Max)
		assert.ErrorIs(t, err, ErrOutOfRange)
	}

	assert.Equal(t, "motor: axis 2 target 200 outside [0, 150]", Range{Max: 150}.Check(2, 200).Error())
	assert.False(t, Range{Min: 2, Max: 1}.Valid())
	assert.False(t, Range{Min: math.NaN(), Max: 1}.Valid())
}

func TestErrors(t *testing.T) {
	err := Unsupported("FW102C", "home")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, err.Error(), "FW102C does not support home")
	assert.True(t, IsRejection(err))

	assert.False(t, IsRejection(ErrCommunication))
	assert.False(t, IsRejection(errors.New("boom")))
}

func TestHistory(t *testing.T) {
	var h History

	_, err := h.Last()
	require.ErrorIs(t, err, ErrNotCommanded)
	assert.Zero(t, h.Len())

	h.Append(3)
	h.Append(5)
	h.Append(4)

	last, err := h.Last()
	require.NoError(t, err)
	assert.Equal(t, 4.0, last)
	assert.Equal(t, 3, h.Len())

	positions := h.Positions()
	assert.Equal(t, []float64{3, 5, 4}, positions)
	positions[0] = 99
	assert.Equal(t, []float64{3, 5, 4}, h.Positions(), "Positions must return a copy")
}

func TestCommanded(t *testing.T) {
	c := NewCommanded(2)
	c.Record(2, 1.5)

	_, err := c.Last(1)
	require.ErrorIs(t, err, ErrNotCommanded)

	last, err := c.Last(2)
	require.NoError(t, err)
	assert.Equal(t, 1.5, last)
	assert.Equal(t, 1, c.History(2).Len())
}

func TestCollect(t *testing.T) {
	dev := newFakeDevice(2)
	require.NoError(t, dev.MoveTo(1, 42))

	snap, err := Collect(dev)
	require.NoError(t, err)
	require.Len(t, snap.Axes, 2)
	assert.Equal(t, "fake", snap.Device)

	ax1 := snap.Axes[0]
	assert.Equal(t, 1, ax1.Axis)
	assert.Equal(t, 42.0, ax1.Position)
	assert.Equal(t, Linear, ax1.Type)
	require.NotNil(t, ax1.StepsPerSIUnit)
	assert.Equal(t, 1000.0, *ax1.StepsPerSIUnit)
	assert.Nil(t, ax1.WasHomed, "unsupported property must be absent")
	require.NotNil(t, ax1.IsMoving)
	assert.False(t, *ax1.IsMoving)
	require.NotNil(t, ax1.LastCommandedPosition)
	assert.Equal(t, 42.0, *ax1.LastCommandedPosition)

	ax2 := snap.Axes[1]
	assert.Equal(t, Rotary, ax2.Type)
	assert.Nil(t, ax2.LastCommandedPosition)

	t.Run("hard failure aborts", func(t *testing.T) {
		dev.posErr = ErrCommunication
		_, err := Collect(dev)
		require.ErrorIs(t, err, ErrCommunication)
	})
}

func TestSnapshot_Flatten(t *testing.T) {
	dev := newFakeDevice(2)
	require.NoError(t, dev.MoveTo(2, 7))

	snap, err := Collect(dev)
	require.NoError(t, err)
	snap.Step = 12

	flat := snap.Flatten("stage")
	assert.Equal(t, "fake", flat["stage.NAME"])
	assert.Equal(t, uint64(12), flat["stage.STEP"])
	assert.Equal(t, 0.0, flat["stage.AXIS1.POSITION"])
	assert.Equal(t, "linear", flat["stage.AXIS1.TYPE"])
	assert.Equal(t, "rotary", flat["stage.AXIS2.TYPE"])
	assert.Equal(t, 7.0, flat["stage.AXIS2.LAST_COMMANDED_POSITION"])
	assert.Equal(t, 1000.0, flat["stage.AXIS2.STEPS_PER_SI_UNIT"])

	v, ok := flat["stage.AXIS1.WAS_HOMED"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestMotorType_MarshalText(t *testing.T) {
	b, err := Rotary.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "rotary", string(b))
	assert.Equal(t, "unknown", MotorType(9).String())

	var mt MotorType
	require.NoError(t, mt.UnmarshalText([]byte("rotary")))
	assert.Equal(t, Rotary, mt)
	require.NoError(t, mt.UnmarshalText([]byte("linear")))
	assert.Equal(t, Linear, mt)
	require.Error(t, mt.UnmarshalText([]byte("helical")))
}
