package serialline

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const (
	pumpReadTimeout = 100 * time.Millisecond
	pumpChunkSize   = 256
)

// pumpPort emulates an input buffer count on top of a port that only offers
// blocking reads: a goroutine drains the port into a buffer and InWaiting
// reports the buffered length.
type pumpPort struct {
	rwc io.ReadWriteCloser

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	err    error
	closed bool
	done   chan struct{}
}

// OpenPump opens cfg's device with github.com/tarm/serial.
func OpenPump(cfg *Config) (Port, error) {
	sc := &serial.Config{
		Name:        cfg.device,
		Baud:        cfg.baudRate,
		ReadTimeout: pumpReadTimeout,
		Size:        byte(cfg.dataBits),
		Parity:      serial.Parity(cfg.parity),
		StopBits:    serial.StopBits(cfg.stopBits),
	}

	p, err := serial.OpenPort(sc)
	if err != nil {
		return nil, err
	}

	return newPumpPort(p), nil
}

func newPumpPort(rwc io.ReadWriteCloser) *pumpPort {
	p := &pumpPort{rwc: rwc, done: make(chan struct{})}
	p.cond = sync.NewCond(&p.mu)

	go p.pump()

	return p
}

func (p *pumpPort) pump() {
	defer close(p.done)

	chunk := make([]byte, pumpChunkSize)
	for {
		n, err := p.rwc.Read(chunk)

		p.mu.Lock()
		if n > 0 {
			p.buf = append(p.buf, chunk[:n]...)
			p.cond.Broadcast()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		// read timeouts surface as io.EOF with no data
		if err != nil && !errors.Is(err, io.EOF) {
			p.err = err
			p.cond.Broadcast()
			p.mu.Unlock()

			return
		}
		p.mu.Unlock()
	}
}

func (p *pumpPort) InWaiting() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) == 0 && p.err != nil {
		return 0, p.err
	}

	return len(p.buf), nil
}

// Read blocks until buffered bytes are available or the pump stops.
func (p *pumpPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		if p.closed {
			return 0, io.ErrClosedPipe
		}
		p.cond.Wait()
	}

	n := copy(b, p.buf)
	p.buf = p.buf[n:]

	return n, nil
}

func (p *pumpPort) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

func (p *pumpPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	err := p.rwc.Close()
	<-p.done

	return err
}
