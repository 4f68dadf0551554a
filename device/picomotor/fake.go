package picomotor

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/go-motor/internal/task"
	"github.com/arloliu/go-motor/logger"
)

// FakeID is the identification string of FakeServer.
const FakeID = "New_Focus 8742 v2.2 08/01/13 13991"

// telnet "IAC WILL ECHO, IAC WILL SUPPRESS-GO-AHEAD", sent on connect like
// the real controller.
var greeting = []byte{iac, 251, 1, iac, 251, 3}

// FakeServer simulates an 8742 controller over TCP for tests and bench
// setups without hardware. Moves complete instantly unless SetMotionPolls
// is used.
type FakeServer struct {
	ln     net.Listener
	tasks  *task.Manager
	logger logger.Logger

	mu          sync.Mutex
	conns       map[net.Conn]struct{}
	positions   [NumAxes + 1]int
	accel       [NumAxes + 1]int
	velocity    [NumAxes + 1]int
	pending     [NumAxes + 1]int
	motionPolls int
	commands    []string
}

// NewFakeServer listens on address ("127.0.0.1:0" picks a free port) and
// serves clients until Close.
func NewFakeServer(address string) (*FakeServer, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	s := &FakeServer{
		ln:     ln,
		logger: logger.Of("fake8742").With("addr", ln.Addr().String()),
		conns:  make(map[net.Conn]struct{}),
	}
	for axis := 1; axis <= NumAxes; axis++ {
		s.accel[axis] = 100000
		s.velocity[axis] = 2000
	}
	s.tasks = task.NewManager(context.Background(), s.logger)

	if err := s.tasks.Start("accept", s.accept, nil); err != nil {
		_ = ln.Close()
		return nil, err
	}

	return s, nil
}

// Addr returns the listening address.
func (s *FakeServer) Addr() string { return s.ln.Addr().String() }

// Position returns the step count of the 1-based axis.
func (s *FakeServer) Position(axis int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.positions[axis]
}

// SetMotionPolls makes every following relative move report "not done" to
// the next n motion done queries.
func (s *FakeServer) SetMotionPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.motionPolls = n
}

// Commands returns every command received so far.
func (s *FakeServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

// DropConnections closes every client connection, as a controller reboot would.
func (s *FakeServer) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

// Close stops the server and waits for its goroutines.
func (s *FakeServer) Close() error {
	s.tasks.Stop()
	err := s.ln.Close()
	s.DropConnections()
	s.tasks.Wait()

	return err
}

func (s *FakeServer) accept() bool {
	conn, err := s.ln.Accept()
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("accept failed", "error", err)
		}
		return false
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("client connected", "peer", conn.RemoteAddr().String())

	if _, err := conn.Write(greeting); err != nil {
		s.forget(conn)
		return true
	}

	reader := bufio.NewReader(conn)
	err = s.tasks.Start("client", func() bool {
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}

		reply, ok := s.handle(strings.TrimRight(line, "\r\n"))
		if ok {
			if _, err := conn.Write([]byte(reply + "\r\n")); err != nil {
				return false
			}
		}

		return true
	}, func() { s.forget(conn) })
	if err != nil {
		s.forget(conn)
		return false
	}

	return true
}

func (s *FakeServer) forget(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = conn.Close()
	delete(s.conns, conn)
}

// handle executes one command and returns the reply, if the command has one.
func (s *FakeServer) handle(cmd string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, cmd)

	if cmd == "*IDN?" {
		return FakeID, true
	}

	if len(cmd) < 2 {
		return cmd, true
	}
	axis, err := strconv.Atoi(cmd[:1])
	if err != nil || axis < 1 || axis > NumAxes {
		return cmd, true
	}
	op := cmd[1:]

	switch {
	case op == "TP?":
		return strconv.Itoa(s.positions[axis]), true
	case op == "MD?":
		if s.pending[axis] > 0 {
			s.pending[axis]--
			return "0", true
		}
		return "1", true
	case op == "AC?":
		return strconv.Itoa(s.accel[axis]), true
	case op == "VA?":
		return strconv.Itoa(s.velocity[axis]), true
	case op == "ST":
		s.pending[axis] = 0
		return "", false
	case strings.HasPrefix(op, "PR"):
		if n, err := strconv.Atoi(op[2:]); err == nil {
			s.positions[axis] += n
			s.pending[axis] = s.motionPolls
		}
		return "", false
	case strings.HasPrefix(op, "PA"):
		if n, err := strconv.Atoi(op[2:]); err == nil {
			s.positions[axis] = n
			s.pending[axis] = s.motionPolls
		}
		return "", false
	case strings.HasPrefix(op, "AC"):
		if n, err := strconv.Atoi(op[2:]); err == nil {
			s.accel[axis] = n
		}
		return "", false
	case strings.HasPrefix(op, "VA"):
		if n, err := strconv.Atoi(op[2:]); err == nil {
			s.velocity[axis] = n
		}
		return "", false
	}

	// unknown commands are echoed
	return cmd, true
}
