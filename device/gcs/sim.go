package gcs

import (
	"errors"
	"sync"
)

type simAxis struct {
	position   float64
	target     float64
	referenced bool
	velocity   float64
	min, max   float64
}

// SimBinding is an in-memory Binding. Moves complete on the next OnTarget
// query. Like real controllers it refuses moves on unreferenced axes.
// It is safe for concurrent use.
type SimBinding struct {
	mu        sync.Mutex
	connected bool
	axes      []simAxis
	failNext  error
	connects  int
	commands  []string
}

var _ Binding = (*SimBinding)(nil)

// NewSimBinding creates a simulated controller with naxes axes of travel
// [lo, hi].
func NewSimBinding(naxes int, lo float64, hi float64) *SimBinding {
	s := &SimBinding{axes: make([]simAxis, naxes)}
	for i := range s.axes {
		s.axes[i] = simAxis{velocity: 1, min: lo, max: hi}
	}

	return s
}

// FailNext makes the next call fail with err.
func (s *SimBinding) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = err
}

// Connects returns the number of successful connections.
func (s *SimBinding) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connects
}

// Commands returns the motion commands received, e.g. "MOV 1".
func (s *SimBinding) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

// axis checks the session and returns the 1-based axis. Callers hold mu.
func (s *SimBinding) axis(n int, cmd string) (*simAxis, error) {
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	if !s.connected {
		return nil, errors.New("gcs: not connected")
	}
	if n < 1 || n > len(s.axes) {
		return nil, &ControllerError{Cmd: cmd, Code: 15}
	}

	return &s.axes[n-1], nil
}

func (s *SimBinding) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.connected = true
	s.connects++

	return nil
}

func (s *SimBinding) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

func (s *SimBinding) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false

	return nil
}

func (s *SimBinding) Move(n int, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "MOV")
	if err != nil {
		return err
	}
	if !ax.referenced {
		return &ControllerError{Cmd: "MOV", Code: 5}
	}
	if position < ax.min || position > ax.max {
		return &ControllerError{Cmd: "MOV", Code: 7}
	}
	ax.target = position
	s.commands = append(s.commands, "MOV")

	return nil
}

func (s *SimBinding) Position(n int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "POS?")
	if err != nil {
		return 0, err
	}

	return ax.position, nil
}

func (s *SimBinding) Reference(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "FRF")
	if err != nil {
		return err
	}
	ax.referenced = true
	ax.position, ax.target = 0, 0
	s.commands = append(s.commands, "FRF")

	return nil
}

func (s *SimBinding) IsReferenced(n int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "FRF?")
	if err != nil {
		return false, err
	}

	return ax.referenced, nil
}

func (s *SimBinding) OnTarget(n int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "ONT?")
	if err != nil {
		return false, err
	}

	if ax.position != ax.target {
		ax.position = ax.target
		return false, nil
	}

	return true, nil
}

func (s *SimBinding) Halt(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "HLT")
	if err != nil {
		return err
	}
	ax.target = ax.position
	s.commands = append(s.commands, "HLT")

	return nil
}

func (s *SimBinding) Limits(n int) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "TMN?")
	if err != nil {
		return 0, 0, err
	}

	return ax.min, ax.max, nil
}

func (s *SimBinding) Velocity(n int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "VEL?")
	if err != nil {
		return 0, err
	}

	return ax.velocity, nil
}

func (s *SimBinding) SetVelocity(n int, velocity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.axis(n, "VEL")
	if err != nil {
		return err
	}
	if velocity <= 0 {
		return &ControllerError{Cmd: "VEL", Code: 1}
	}
	ax.velocity = velocity

	return nil
}
