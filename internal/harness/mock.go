package harness

import (
	"sync"

	"github.com/google/uuid"
)

func init() {
	Register(KindMock, func() Harness { return NewMock() })
}

// Mock is a scripted harness for tests. ParseOutput passes raw output
// through unchanged, and optional function fields override any method.
type Mock struct {
	mu sync.Mutex

	// Invocations records every BuildCmd call.
	Invocations []Invocation

	BuildCmdFunc    func(inv Invocation) []string
	ParseOutputFunc func(raw []byte, currentSessionID string) Output
	AvailableFunc   func() bool
}

// NewMock returns a Mock with default behavior.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) Kind() Kind { return KindMock }

func (m *Mock) BuildCmd(inv Invocation) []string {
	m.mu.Lock()
	m.Invocations = append(m.Invocations, inv)
	m.mu.Unlock()
	if m.BuildCmdFunc != nil {
		return m.BuildCmdFunc(inv)
	}
	return []string{"true"}
}

func (m *Mock) Stdin(prompt string) []byte { return []byte(prompt) }

// NewSessionID mints an id up front, exercising the explicit-session path.
func (m *Mock) NewSessionID() string { return uuid.NewString() }

func (m *Mock) ParseOutput(raw []byte, currentSessionID string) Output {
	if m.ParseOutputFunc != nil {
		return m.ParseOutputFunc(raw, currentSessionID)
	}
	return Output{Text: string(raw), SessionID: currentSessionID}
}

func (m *Mock) Available() bool {
	if m.AvailableFunc != nil {
		return m.AvailableFunc()
	}
	return true
}

func (m *Mock) ProbeCmd(string) []string { return []string{"true"} }

// InvocationCount returns how many invocations were built.
func (m *Mock) InvocationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Invocations)
}
