package tunablefilter

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/serialline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// filterSim echoes every command; "W ?" reports the wavelength.
type filterSim struct {
	wl     float64
	resets int
}

func (s *filterSim) respond(cmd []byte) []byte {
	c := string(cmd)
	switch {
	case c == "W ?\r":
		return []byte(fmt.Sprintf("%s%.3f\r", c, s.wl))
	case strings.HasPrefix(c, "W "):
		s.wl, _ = strconv.ParseFloat(strings.TrimSpace(c[2:]), 64)
		return cmd
	case c == "S ?\r":
		return []byte(c + "READY\r")
	case c == "R 1\r":
		s.resets++
		return cmd
	case c == "@\r":
		return []byte("@0\r")
	default:
		return cmd
	}
}

func newTestFilter(t *testing.T) (*TunableFilter, *serialline.MockOpener, *filterSim) {
	t.Helper()

	cmds, err := LoadCommandFile("testdata/varispec.yaml")
	require.NoError(t, err)

	sim := &filterSim{wl: 550}
	opener := serialline.NewMockOpener(sim.respond)

	tf, err := New("lctf", cmds,
		serialline.WithOpener(opener.Open),
		serialline.WithPollInterval(0),
		serialline.WithMaxIterations(10),
	)
	require.NoError(t, err)

	return tf, opener, sim
}

func TestLoadCommandFile(t *testing.T) {
	cmds, err := LoadCommandFile("testdata/varispec.yaml")
	require.NoError(t, err)

	assert.Equal(t, "W ?\r", cmds.ReadWL)
	assert.Equal(t, "\x1b", cmds.Escape)
	assert.Equal(t, "/dev/ttyVS0", cmds.Port)
	assert.Equal(t, 9600, cmds.Speed)
	assert.Equal(t, motor.Range{Min: 420, Max: 730}, cmds.Range())

	opts, err := cmds.LineOptions()
	require.NoError(t, err)
	cfg, err := serialline.NewConfig(cmds.Port, opts...)
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.BaudRate())
	assert.Equal(t, serialline.Stop1, cfg.StopBits())

	_, err = LoadCommandFile("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParseCommandFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing READ_WL": `WRITE_WL: "W %f"`,
		"no verb":         "WRITE_WL: \"W\"\nREAD_WL: \"W ?\"",
		"two verbs":       "WRITE_WL: \"W %f %f\"\nREAD_WL: \"W ?\"",
		"bad verb":        "WRITE_WL: \"W %s\"\nREAD_WL: \"W ?\"",
		"inverted range":  "WRITE_WL: \"W %f\"\nREAD_WL: \"W ?\"\nMIN_WL: 700\nMAX_WL: 500",
		"broken template": "WRITE_WL: \"W {{ wl|nosuchfilter }}\"\nREAD_WL: \"W ?\"",
		"not yaml":        "::",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCommandFile([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestRenderWriteWL(t *testing.T) {
	tests := []struct {
		tmpl string
		wl   float64
		want string
	}{
		{"W %5.3f\r", 550.25, "W 550.250\r"},
		{"WL=%d\r", 600.6, "WL=601\r"},
		{"WL=%i\r", 600.2, "WL=600\r"},
		{"SW {{ wl|floatformat:1 }}\r", 512.34, "SW 512.3\r"},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			cmds, err := ParseCommandFile([]byte(fmt.Sprintf("WRITE_WL: %q\nREAD_WL: \"W ?\"", tt.tmpl)))
			require.NoError(t, err)

			got, err := cmds.RenderWriteWL(tt.wl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTunableFilter_MoveAndRead(t *testing.T) {
	tf, opener, sim := newTestFilter(t)

	pos, err := tf.Position(1)
	require.NoError(t, err)
	assert.Equal(t, 550.0, pos)
	assert.Equal(t, []string{"S ?\r", "W ?\r"}, opener.Last().Written(), "status handshake first")

	require.NoError(t, tf.MoveTo(1, 633))
	assert.Equal(t, 633.0, sim.wl)

	pos, err = tf.Position(1)
	require.NoError(t, err)
	assert.Equal(t, 633.0, pos)

	last, err := tf.LastCommandedPosition(1)
	require.NoError(t, err)
	assert.Equal(t, 633.0, last)
}

func TestTunableFilter_Properties(t *testing.T) {
	tf, opener, _ := newTestFilter(t)

	steps, err := tf.StepsPerSIUnit(1)
	require.NoError(t, err)
	assert.Equal(t, 1e9, steps)

	homed, err := tf.WasHomed(1)
	require.NoError(t, err)
	assert.True(t, homed)

	typ, err := tf.Type(1)
	require.NoError(t, err)
	assert.Equal(t, motor.Linear, typ)

	moving, err := tf.IsMoving(1)
	require.NoError(t, err)
	assert.False(t, moving)

	assert.ErrorIs(t, tf.Home(1), motor.ErrUnsupported)
	assert.ErrorIs(t, tf.MoveTo(1, 800), motor.ErrOutOfRange)
	assert.ErrorIs(t, tf.MoveTo(1, 419.9), motor.ErrOutOfRange)
	assert.ErrorIs(t, tf.MoveTo(2, 500), motor.ErrInvalidAxis)
	assert.Equal(t, 0, opener.Opens())
}

func TestTunableFilter_StopAndDeinitialize(t *testing.T) {
	tf, opener, _ := newTestFilter(t)

	require.NoError(t, tf.Stop(1))
	assert.Contains(t, opener.Last().Written(), "\x1b")

	require.NoError(t, tf.Deinitialize(1))
	assert.False(t, tf.Connected())

	t.Run("no escape command", func(t *testing.T) {
		cmds, err := ParseCommandFile([]byte("WRITE_WL: \"W %f\"\nREAD_WL: \"W ?\"\nPORT: /dev/ttyVS1"))
		require.NoError(t, err)

		tf, err := New("plain", cmds)
		require.NoError(t, err)
		assert.ErrorIs(t, tf.Stop(1), motor.ErrUnsupported)
	})
}

func TestTunableFilter_Extensions(t *testing.T) {
	tf, _, sim := newTestFilter(t)

	ext := map[string]motor.Extension{}
	for _, e := range tf.Extensions() {
		ext[e.Name] = e
	}
	require.Len(t, ext, 4)
	assert.True(t, ext["reset"].Mutating)
	assert.False(t, ext["status"].Mutating)

	_, err := ext["reset"].Call(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sim.resets)

	busy, err := ext["busy"].Call(nil)
	require.NoError(t, err)
	assert.Equal(t, "@0", busy)
}

func TestTunableFilter_SilentInstrument(t *testing.T) {
	tf, opener, sim := newTestFilter(t)
	require.NoError(t, tf.MoveTo(1, 500))

	opener.SetResponder(func([]byte) []byte { return nil })
	_, err := tf.Position(1)
	require.ErrorIs(t, err, motor.ErrSerialTimeout)
	assert.False(t, tf.Connected())

	opener.SetResponder(sim.respond)
	pos, err := tf.Position(1)
	require.NoError(t, err)
	assert.Equal(t, 500.0, pos)
}
