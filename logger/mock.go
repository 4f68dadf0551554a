package logger

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockLogger records log calls through testify/mock so tests can assert on
// warnings and errors, e.g.
//
//	l := logger.NewMockLogger()
//	l.On("Warn", mock.Anything, mock.Anything).Return()
//	...
//	l.AssertCalled(t, "Warn", "could not publish motor status", mock.Anything)
//
// With returns the mock itself, so component loggers derived from it are
// recorded in the same place. Level and SetLevel are not recorded.
type MockLogger struct {
	mock.Mock

	mu    sync.Mutex
	level LogLevel
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{level: DebugLevel}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

// Fatal is recorded but does not exit.
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level LogLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level = level
}

func (m *MockLogger) Level() LogLevel {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.level
}

func (m *MockLogger) With(...any) Logger {
	return m
}

// Messages returns the messages logged at the given method ("Debug",
// "Info", "Warn", "Error" or "Fatal") in call order.
func (m *MockLogger) Messages(method string) []string {
	msgs := make([]string, 0)
	for _, call := range m.Calls {
		if call.Method == method {
			msgs = append(msgs, call.Arguments.String(0))
		}
	}

	return msgs
}
