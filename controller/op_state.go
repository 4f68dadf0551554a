package controller

import "sync/atomic"

// OpState is the lifecycle state of a MotorController.
type OpState uint32

const (
	RunningState OpState = iota
	TerminatingState
	TerminatedState
)

func (s OpState) String() string {
	switch s {
	case RunningState:
		return "Running"
	case TerminatingState:
		return "Terminating"
	case TerminatedState:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// AtomicOpState holds an OpState. Transitions only move forward.
type AtomicOpState struct {
	state atomic.Uint32
}

func (st *AtomicOpState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *AtomicOpState) Get() OpState {
	return OpState(st.state.Load())
}

func (st *AtomicOpState) IsRunning() bool {
	return st.Get() == RunningState
}

func (st *AtomicOpState) IsTerminated() bool {
	return st.Get() == TerminatedState
}

// ToTerminating reports whether the caller won the transition from Running.
func (st *AtomicOpState) ToTerminating() bool {
	return st.state.CompareAndSwap(uint32(RunningState), uint32(TerminatingState))
}

func (st *AtomicOpState) ToTerminated() {
	st.state.Store(uint32(TerminatedState))
}
