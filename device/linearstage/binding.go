package linearstage

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// VelocityParams are the trapezoidal motion parameters of a stage, in mm/s
// and mm/s².
type VelocityParams struct {
	MinVelocity  float64 `json:"min_velocity"`
	MaxVelocity  float64 `json:"max_velocity"`
	Acceleration float64 `json:"acceleration"`
}

// Binding is a session with the vendor motion control SDK for one stage.
//
// Home and MoveTo block until the motion completes or timeout elapses.
type Binding interface {
	// Connect opens the session with the stage identified by serialNo and
	// loads its motor configuration.
	Connect(serialNo string) error
	// Disconnect closes the session.
	Disconnect() error
	// StartPolling starts the SDK status polling at the given interval.
	StartPolling(interval time.Duration) error
	// StopPolling stops the SDK status polling.
	StopPolling()
	Enable() error
	Disable() error
	// Identify blinks the enable LED of the stage.
	Identify() error

	Home(timeout time.Duration) error
	MoveTo(position float64, timeout time.Duration) error
	// Stop halts the motion and returns immediately.
	Stop() error
	Position() (float64, error)
	IsMoving() (bool, error)

	VelocityParams() (VelocityParams, error)
	SetVelocityParams(p VelocityParams) error
}

// ErrNotEnabled is returned by SimBinding for motion commands on a disabled stage.
var ErrNotEnabled = errors.New("linearstage: device not enabled")

// ErrNoSession is returned by SimBinding when no session is open.
var ErrNoSession = errors.New("linearstage: no session")

// SimBinding is an in-memory Binding simulating a stage that moves
// instantly. It is safe for concurrent use.
type SimBinding struct {
	mu       sync.Mutex
	serialNo string
	session  bool
	polling  bool
	enabled  bool
	position float64
	velocity VelocityParams
	failNext error
	connects int
	identify int
}

var _ Binding = (*SimBinding)(nil)

// NewSimBinding creates a simulated stage at position 0.
func NewSimBinding() *SimBinding {
	return &SimBinding{velocity: VelocityParams{MinVelocity: 0, MaxVelocity: 50, Acceleration: 50}}
}

// FailNext makes the next SDK call fail with err.
func (s *SimBinding) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = err
}

// Connects returns the number of sessions opened.
func (s *SimBinding) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connects
}

// Identifies returns the number of Identify calls.
func (s *SimBinding) Identifies() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.identify
}

// Enabled reports whether the stage is enabled.
func (s *SimBinding) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enabled
}

// InSession reports whether a session is open.
func (s *SimBinding) InSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session
}

// take returns the injected failure, if any. Callers hold mu.
func (s *SimBinding) take() error {
	err := s.failNext
	s.failNext = nil

	return err
}

func (s *SimBinding) ready(motion bool) error {
	if err := s.take(); err != nil {
		return err
	}
	if !s.session {
		return ErrNoSession
	}
	if motion && !s.enabled {
		return ErrNotEnabled
	}

	return nil
}

func (s *SimBinding) Connect(serialNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.take(); err != nil {
		return err
	}
	if serialNo == "" {
		return errors.New("linearstage: empty serial number")
	}
	s.serialNo = serialNo
	s.session = true
	s.connects++

	return nil
}

func (s *SimBinding) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = false
	s.enabled = false
	s.polling = false

	return nil
}

func (s *SimBinding) StartPolling(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(false); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("linearstage: invalid polling interval %v", interval)
	}
	s.polling = true

	return nil
}

func (s *SimBinding) StopPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polling = false
}

func (s *SimBinding) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(false); err != nil {
		return err
	}
	s.enabled = true

	return nil
}

func (s *SimBinding) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(false); err != nil {
		return err
	}
	s.enabled = false

	return nil
}

func (s *SimBinding) Identify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(false); err != nil {
		return err
	}
	s.identify++

	return nil
}

func (s *SimBinding) Home(time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(true); err != nil {
		return err
	}
	s.position = 0

	return nil
}

func (s *SimBinding) MoveTo(position float64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(true); err != nil {
		return err
	}
	s.position = position

	return nil
}

func (s *SimBinding) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ready(false)
}

func (s *SimBinding) Position() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(false); err != nil {
		return 0, err
	}

	return s.position, nil
}

func (s *SimBinding) IsMoving() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return false, s.ready(false)
}

func (s *SimBinding) VelocityParams() (VelocityParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(false); err != nil {
		return VelocityParams{}, err
	}

	return s.velocity, nil
}

func (s *SimBinding) SetVelocityParams(p VelocityParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(false); err != nil {
		return err
	}
	if p.MaxVelocity <= 0 || p.Acceleration <= 0 || p.MinVelocity < 0 || p.MinVelocity > p.MaxVelocity {
		return fmt.Errorf("linearstage: invalid velocity parameters %+v", p)
	}
	s.velocity = p

	return nil
}
