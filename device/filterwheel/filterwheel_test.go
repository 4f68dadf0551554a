package filterwheel

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/serialline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "THORLABS FW102C/FW212C Filter Wheel version 1.07"

// wheelSim answers like a FW102C: every command is echoed and followed by a prompt.
type wheelSim struct {
	mu    sync.Mutex
	pos   int
	speed int
}

func (s *wheelSim) respond(cmd []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := string(cmd)
	var out string
	switch {
	case c == cmdID:
		out = testID + "\r"
	case c == cmdPosition:
		out = strconv.Itoa(s.pos) + "\r"
	case c == cmdSpeed:
		out = strconv.Itoa(s.speed) + "\r"
	case strings.HasPrefix(c, "pos="):
		s.pos, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(c, "pos=")))
	case strings.HasPrefix(c, "speed="):
		s.speed, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(c, "speed=")))
	default:
		out = "Command error CMD_NOT_DEFINED\r"
	}

	return []byte(c + out + "> ")
}

func newTestWheel(t *testing.T) (*FilterWheel, *serialline.MockOpener, *wheelSim) {
	t.Helper()

	sim := &wheelSim{pos: 1}
	opener := serialline.NewMockOpener(sim.respond)
	cfg, err := serialline.NewConfig("/dev/ttyFW0",
		serialline.WithOpener(opener.Open),
		serialline.WithPollInterval(0),
		serialline.WithMaxIterations(10),
	)
	require.NoError(t, err)

	fw, err := New("wheel", Slots6, cfg)
	require.NoError(t, err)

	return fw, opener, sim
}

func TestNew_SlotCount(t *testing.T) {
	cfg, err := serialline.NewConfig("/dev/ttyFW0")
	require.NoError(t, err)

	_, err = New("wheel", 8, cfg)
	assert.Error(t, err)

	fw, err := New("wheel", Slots12, cfg)
	require.NoError(t, err)
	assert.Equal(t, motor.Range{Min: 1, Max: 12}, fw.Range())
}

func TestFilterWheel_HandshakeAndPosition(t *testing.T) {
	fw, opener, _ := newTestWheel(t)
	assert.False(t, fw.Connected())

	pos, err := fw.Position(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos)
	assert.True(t, fw.Connected())
	assert.Equal(t, testID, fw.ID())
	assert.Equal(t, []string{cmdID, cmdPosition}, opener.Last().Written())
}

func TestFilterWheel_MoveTo(t *testing.T) {
	fw, opener, sim := newTestWheel(t)

	require.NoError(t, fw.MoveTo(1, 3))
	assert.Equal(t, 3, sim.pos)
	assert.Contains(t, opener.Last().Written(), "pos=3\r")

	last, err := fw.LastCommandedPosition(1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, last)

	pos, err := fw.Position(1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, pos)

	require.NoError(t, fw.MoveTo(1, 6))
	assert.Equal(t, []float64{3, 6}, fw.History())
}

func TestFilterWheel_Rejections(t *testing.T) {
	fw, opener, _ := newTestWheel(t)

	tests := []struct {
		name   string
		call   func() error
		target error
	}{
		{"slot 0", func() error { return fw.MoveTo(1, 0) }, motor.ErrOutOfRange},
		{"slot 7", func() error { return fw.MoveTo(1, 7) }, motor.ErrOutOfRange},
		{"fractional slot", func() error { return fw.MoveTo(1, 2.5) }, motor.ErrOutOfRange},
		{"axis 2", func() error { return fw.MoveTo(2, 3) }, motor.ErrInvalidAxis},
		{"home", func() error { return fw.Home(1) }, motor.ErrUnsupported},
		{"stop", func() error { return fw.Stop(1) }, motor.ErrUnsupported},
		{"deinitialize", func() error { return fw.Deinitialize(1) }, motor.ErrUnsupported},
		{"steps per SI unit", func() error { _, err := fw.StepsPerSIUnit(1); return err }, motor.ErrUnsupported},
		{"is moving", func() error { _, err := fw.IsMoving(1); return err }, motor.ErrUnsupported},
		{"was homed", func() error { _, err := fw.WasHomed(1); return err }, motor.ErrUnsupported},
		{"no move yet", func() error { _, err := fw.LastCommandedPosition(1); return err }, motor.ErrNotCommanded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.target)
		})
	}

	assert.Equal(t, 0, opener.Opens(), "rejections must not touch the port")

	typ, err := fw.Type(1)
	require.NoError(t, err)
	assert.Equal(t, motor.Rotary, typ)
}

func TestFilterWheel_TimeoutThenReconnect(t *testing.T) {
	fw, opener, sim := newTestWheel(t)

	require.NoError(t, fw.MoveTo(1, 2))

	opener.SetResponder(func([]byte) []byte { return nil })
	err := fw.MoveTo(1, 4)
	require.ErrorIs(t, err, motor.ErrCommunication)
	require.ErrorIs(t, err, motor.ErrSerialTimeout)
	assert.False(t, fw.Connected())

	last, err := fw.LastCommandedPosition(1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, last, "failed move must not be recorded")

	opener.SetResponder(sim.respond)
	require.NoError(t, fw.MoveTo(1, 4))
	assert.Equal(t, 2, opener.Opens())
	assert.Equal(t, uint64(1), fw.Metrics().TimeoutCount.Load())
}

func TestFilterWheel_MalformedReply(t *testing.T) {
	fw, opener, _ := newTestWheel(t)
	require.NoError(t, fw.Close())

	opener.SetResponder(func(cmd []byte) []byte {
		if string(cmd) == cmdPosition {
			return []byte("garbage")
		}
		return []byte(fmt.Sprintf("%s> ", cmd))
	})

	_, err := fw.Position(1)
	assert.ErrorIs(t, err, motor.ErrMalformedReply)
}

func TestFilterWheel_Extensions(t *testing.T) {
	fw, _, sim := newTestWheel(t)

	ext := map[string]motor.Extension{}
	for _, e := range fw.Extensions() {
		ext[e.Name] = e
	}
	require.Contains(t, ext, "id")
	require.Contains(t, ext, "speed")

	id, err := ext["id"].Call(nil)
	require.NoError(t, err)
	assert.Equal(t, testID, id)

	_, err = ext["speed"].Call([]float64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, sim.speed)

	mode, err := ext["speed"].Call(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, mode)

	_, err = ext["speed"].Call([]float64{2})
	assert.Error(t, err)
}
