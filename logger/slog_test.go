package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, InfoLevel, false)

	l.Debug("hidden", "axis", 1)
	l.Info("connected", "port", "/dev/ttyUSB0")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "connected", rec["msg"])
	assert.Equal(t, "/dev/ttyUSB0", rec["port"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_WithAndLevel(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, WarnLevel, false)
	assert.Equal(t, WarnLevel, l.Level())

	child := l.With("component", "FilterWheel")
	child.Info("dropped")
	child.Warn("stop not supported", "axis", 1)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"component":"FilterWheel"`)

	// child shares the level with its parent
	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name))
		})
	}
}
