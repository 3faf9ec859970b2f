// Package harness defines the contract between the worker engine and the
// agent CLI adapters. The engine never builds command lines or parses
// provider output itself; it hands an adapter an Invocation and consumes
// the parsed result. Adapters register themselves by kind, so the set of
// supported agent CLIs is a configuration enumeration.
package harness

import (
	"fmt"
	"sort"
)

// Kind identifies an agent CLI adapter.
type Kind string

const (
	// KindClaude is the Claude Code CLI adapter.
	KindClaude Kind = "claude"
	// KindCodex is the OpenAI Codex CLI adapter.
	KindCodex Kind = "codex"
	// KindMock is a scripted adapter for testing.
	KindMock Kind = "mock"
)

// Invocation describes one agent run the engine wants performed.
type Invocation struct {
	// WorkDir is the workspace the agent runs in.
	WorkDir string

	// Model selects the provider model.
	Model string

	// Reasoning is an optional reasoning-effort tag. Adapters that have
	// no such concept ignore it.
	Reasoning string

	// SessionID identifies the session to resume, if Resume is set.
	SessionID string

	// Resume continues an existing session instead of starting fresh.
	Resume bool

	// Prompt is the text to deliver. How it is delivered (argv or stdin)
	// is adapter-specific.
	Prompt string

	// Structured requests machine-parseable output when the CLI supports it.
	Structured bool
}

// Output is the adapter's interpretation of raw agent stdout.
type Output struct {
	// Text is the assistant-visible content, with protocol framing removed.
	Text string

	// SessionID is the session identifier extracted from the output,
	// or the current one if the output carried none.
	SessionID string
}

// Harness adapts framework requests into invocations of one agent CLI.
type Harness interface {
	// Kind returns the adapter identifier.
	Kind() Kind

	// BuildCmd constructs the full argv (binary first) for an invocation.
	BuildCmd(inv Invocation) []string

	// Stdin returns the bytes to pipe on stdin, or nil to close it
	// immediately (adapters that take the prompt via argv).
	Stdin(prompt string) []byte

	// NewSessionID mints a fresh session identifier, or "" for adapters
	// whose CLI generates session ids implicitly.
	NewSessionID() string

	// ParseOutput extracts assistant text and the session id from raw stdout.
	ParseOutput(raw []byte, currentSessionID string) Output

	// Available reports whether the adapter's binary is on PATH.
	Available() bool

	// ProbeCmd constructs the argv for the launch-time "say ok" probe.
	ProbeCmd(model string) []string
}

// ErrUnknownKind is returned when an unregistered harness kind is requested.
var ErrUnknownKind = fmt.Errorf("unknown harness kind")

var registry = make(map[Kind]func() Harness)

// Register adds a harness factory for the given kind.
// Adapters call this from their init() functions.
func Register(kind Kind, factory func() Harness) {
	registry[kind] = factory
}

// New creates a Harness for the given kind.
// Returns ErrUnknownKind if the kind is not registered.
func New(kind Kind) (Harness, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return factory(), nil
}

// IsRegistered reports whether the given kind has been registered.
func IsRegistered(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}

// Kinds returns all registered harness kinds, sorted.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
