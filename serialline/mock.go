package serialline

import (
	"io"
	"sync"

	"github.com/arloliu/go-motor/internal/util"
)

// Responder produces the reply of a simulated instrument to one command.
// A nil reply simulates a silent instrument.
type Responder func(cmd []byte) []byte

// MockPort is an in-memory Port driven by a Responder, used to test
// instrument drivers without hardware.
type MockPort struct {
	mu        sync.Mutex
	responder Responder
	pending   []byte
	written   [][]byte
	closed    bool
	writeErr  error
}

var _ Port = (*MockPort)(nil)

// NewMockPort creates a MockPort answering with responder.
func NewMockPort(responder Responder) *MockPort {
	return &MockPort{responder: responder}
}

// FailNextWrite makes the next Write fail with err.
func (p *MockPort) FailNextWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns a copy of every command written so far.
func (p *MockPort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.written))
	for _, w := range p.written {
		out = append(out, string(w))
	}

	return out
}

// IsClosed reports whether Close was called.
func (p *MockPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if err := p.writeErr; err != nil {
		p.writeErr = nil
		return 0, err
	}

	p.written = append(p.written, util.CloneSlice(b, 0))
	if p.responder != nil {
		p.pending = append(p.pending, p.responder(b)...)
	}

	return len(b), nil
}

func (p *MockPort) InWaiting() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}

	return len(p.pending), nil
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]

	return n, nil
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	return nil
}

// MockOpener hands out a fresh MockPort on every open and counts openings.
type MockOpener struct {
	mu        sync.Mutex
	responder Responder
	openErr   error
	ports     []*MockPort
}

// NewMockOpener creates a MockOpener whose ports answer with responder.
func NewMockOpener(responder Responder) *MockOpener {
	return &MockOpener{responder: responder}
}

// Open implements Opener.
func (o *MockOpener) Open(_ *Config) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.openErr != nil {
		return nil, o.openErr
	}

	p := NewMockPort(o.responder)
	o.ports = append(o.ports, p)

	return p, nil
}

// SetOpenError makes subsequent opens fail with err; nil restores them.
func (o *MockOpener) SetOpenError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// SetResponder replaces the responder used by ports opened afterwards and
// by the current port.
func (o *MockOpener) SetResponder(r Responder) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.responder = r
	if n := len(o.ports); n > 0 {
		last := o.ports[n-1]
		last.mu.Lock()
		last.responder = r
		last.mu.Unlock()
	}
}

// Opens returns the number of successful openings.
func (o *MockOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ports)
}

// Last returns the most recently opened port, or nil.
func (o *MockOpener) Last() *MockPort {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.ports) == 0 {
		return nil
	}

	return o.ports[len(o.ports)-1]
}
