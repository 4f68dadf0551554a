package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestStateMgr_Transitions(t *testing.T) {
	var changes [][2]State
	mgr := NewStateMgr(nil, func(prev State, cur State) {
		changes = append(changes, [2]State{prev, cur})
	})

	assert.Equal(t, Disconnected, mgr.State())
	assert.False(t, mgr.IsConnected())

	require.NoError(t, mgr.ToConnected())
	assert.True(t, mgr.IsConnected())

	// reconnect must pass through Disconnected
	assert.ErrorIs(t, mgr.ToConnected(), ErrInvalidTransition)

	mgr.ToDisconnected()
	mgr.ToDisconnected() // no-op
	assert.False(t, mgr.IsConnected())

	require.NoError(t, mgr.ToConnected())

	assert.Equal(t, [][2]State{
		{Disconnected, Connected},
		{Connected, Disconnected},
		{Disconnected, Connected},
	}, changes)
}

func TestMetrics_Snapshot(t *testing.T) {
	var m Metrics
	m.ConnectCount.Add(2)
	m.TimeoutCount.Add(1)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap["connect"])
	assert.Equal(t, uint64(1), snap["timeout"])
	assert.Equal(t, uint64(0), snap["io_error"])
	assert.Len(t, snap, 5)
}
