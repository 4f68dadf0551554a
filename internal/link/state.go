// Package link tracks the connection state of a device transport handle.
//
// A handle is either Disconnected or Connected. Reconnection always passes
// through Disconnected: the transition Connected -> Connected is rejected.
package link

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-motor/logger"
)

// ErrInvalidTransition is returned when a transition is not allowed from the current state.
var ErrInvalidTransition = errors.New("link: invalid state transition")

// State represents the connection state of a transport handle.
type State uint32

const (
	// Disconnected indicates that no transport handle is open.
	Disconnected State = iota
	// Connected indicates that the transport handle is open and usable.
	Connected
)

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ChangeHandler is invoked synchronously after every state change.
type ChangeHandler func(prev State, cur State)

// StateMgr manages the link state of one transport handle.
//
// State reads are lock free; transitions are serialized.
type StateMgr struct {
	mu       sync.Mutex
	state    atomic.Uint32
	logger   logger.Logger
	handlers []ChangeHandler
}

// NewStateMgr creates a StateMgr in the Disconnected state.
func NewStateMgr(l logger.Logger, handlers ...ChangeHandler) *StateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &StateMgr{logger: l}
	mgr.state.Store(uint32(Disconnected))
	mgr.AddHandler(handlers...)

	return mgr
}

// AddHandler registers change handlers.
func (m *StateMgr) AddHandler(handlers ...ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
}

// State returns the current state.
func (m *StateMgr) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether the state is Connected.
func (m *StateMgr) IsConnected() bool {
	return m.State() == Connected
}

// ToConnected transitions Disconnected -> Connected.
//
// It returns ErrInvalidTransition if the handle is already connected.
func (m *StateMgr) ToConnected() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	if cur != Disconnected {
		return ErrInvalidTransition
	}

	m.state.Store(uint32(Connected))
	m.invokeHandlers(cur, Connected)

	return nil
}

// ToDisconnected transitions any state to Disconnected. It is a no-op when
// already disconnected.
func (m *StateMgr) ToDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	if cur == Disconnected {
		m.logger.Debug("already disconnected, no need to transition")
		return
	}

	m.state.Store(uint32(Disconnected))
	m.invokeHandlers(cur, Disconnected)
}

func (m *StateMgr) invokeHandlers(prev State, cur State) {
	for _, h := range m.handlers {
		h(prev, cur)
	}
}
