package serialline

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeRWC struct {
	r       *io.PipeReader
	written []byte
}

func (p *pipeRWC) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeRWC) Write(b []byte) (int, error) { p.written = append(p.written, b...); return len(b), nil }
func (p *pipeRWC) Close() error                { return p.r.Close() }

func TestPumpPort(t *testing.T) {
	r, w := io.Pipe()
	rwc := &pipeRWC{r: r}
	port := newPumpPort(rwc)

	n, err := port.InWaiting()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = port.Write([]byte("pos?\r"))
	require.NoError(t, err)
	assert.Equal(t, "pos?\r", string(rwc.written))

	go func() { _, _ = w.Write([]byte("pos?\r3\r> ")) }()

	require.Eventually(t, func() bool {
		n, _ := port.InWaiting()
		return n == 10
	}, time.Second, time.Millisecond)

	buf := make([]byte, 10)
	_, err = io.ReadFull(port, buf)
	require.NoError(t, err)
	assert.Equal(t, "pos?\r3\r> ", string(buf))

	n, err = port.InWaiting()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, port.Close())
	_, err = port.Read(buf)
	assert.Error(t, err)
}

func TestPumpPort_ReadErrorSurfacesInWaiting(t *testing.T) {
	r, w := io.Pipe()
	port := newPumpPort(&pipeRWC{r: r})

	_ = w.CloseWithError(io.ErrUnexpectedEOF)

	require.Eventually(t, func() bool {
		_, err := port.InWaiting()
		return err != nil
	}, time.Second, time.Millisecond)

	_ = port.Close()
}
