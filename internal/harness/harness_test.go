package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKnowsBuiltins(t *testing.T) {
	for _, kind := range []Kind{KindClaude, KindCodex, KindMock} {
		assert.True(t, IsRegistered(kind), "kind %s", kind)
		h, err := New(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, h.Kind())
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Kind("gemini"))
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), "gemini")
}

func TestKindsSorted(t *testing.T) {
	kinds := Kinds()
	require.GreaterOrEqual(t, len(kinds), 3)
	for i := 1; i < len(kinds); i++ {
		assert.Less(t, kinds[i-1], kinds[i])
	}
}

func TestClaudeBuildCmd(t *testing.T) {
	tests := []struct {
		name string
		inv  Invocation
		want []string
	}{
		{
			name: "fresh structured",
			inv:  Invocation{Model: "sonnet", Prompt: "do the thing", Structured: true},
			want: []string{
				"claude", "--print", "--output-format", "stream-json", "--verbose",
				"--dangerously-skip-permissions", "--model", "sonnet", "--", "do the thing",
			},
		},
		{
			name: "resume",
			inv:  Invocation{SessionID: "abc-123", Resume: true, Prompt: "Continue working."},
			want: []string{
				"claude", "--print", "--dangerously-skip-permissions",
				"--resume", "abc-123", "--", "Continue working.",
			},
		},
		{
			name: "resume without session falls back to fresh",
			inv:  Invocation{Resume: true, Prompt: "p"},
			want: []string{"claude", "--print", "--dangerously-skip-permissions", "--", "p"},
		},
	}
	c := &Claude{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.BuildCmd(tt.inv))
		})
	}
}

func TestClaudeParseOutput(t *testing.T) {
	raw := []byte(`{"type":"system","subtype":"init","session_id":"sess-42"}
{"type":"assistant","message":{"content":[{"type":"text","text":"CLAIM(auth-01)"}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"}]}}
{"type":"result","result":"working on it"}`)

	out := (&Claude{}).ParseOutput(raw, "")
	assert.Equal(t, "sess-42", out.SessionID)
	assert.Equal(t, "CLAIM(auth-01)\nworking on it", out.Text)
}

func TestClaudeParseOutputPlainText(t *testing.T) {
	out := (&Claude{}).ParseOutput([]byte("just some text\n__DONE__"), "keep-me")
	assert.Equal(t, "keep-me", out.SessionID)
	assert.Equal(t, "just some text\n__DONE__", out.Text)
}

func TestCodexBuildCmd(t *testing.T) {
	c := &Codex{}

	fresh := c.BuildCmd(Invocation{
		WorkDir: "/ws", Model: "gpt-5.2-codex", Reasoning: "high",
		Prompt: "p", Structured: true,
	})
	assert.Equal(t, []string{
		"codex", "exec", "--skip-git-repo-check", "--json",
		"-C", "/ws", "-m", "gpt-5.2-codex",
		"-c", "model_reasoning_effort=high", "-",
	}, fresh)

	resumed := c.BuildCmd(Invocation{SessionID: "t-9", Resume: true, Prompt: "p"})
	assert.Equal(t, []string{
		"codex", "exec", "--skip-git-repo-check", "resume", "t-9", "-",
	}, resumed)

	assert.Equal(t, []byte("p"), c.Stdin("p"))
}

func TestCodexParseOutput(t *testing.T) {
	raw := []byte(`{"type":"thread.started","thread_id":"th-7"}
{"type":"item.completed","item":{"type":"reasoning","text":"ignore"}}
{"type":"item.completed","item":{"type":"agent_message","text":"COMPLETE_AND_READY_FOR_MERGE"}}`)

	out := (&Codex{}).ParseOutput(raw, "old")
	assert.Equal(t, "th-7", out.SessionID)
	assert.Equal(t, "COMPLETE_AND_READY_FOR_MERGE", out.Text)
}

func TestMockRecordsInvocations(t *testing.T) {
	m := NewMock()
	m.BuildCmd(Invocation{Prompt: "a"})
	m.BuildCmd(Invocation{Prompt: "b"})
	assert.Equal(t, 2, m.InvocationCount())
	assert.Equal(t, "a", m.Invocations[0].Prompt)

	sid := m.NewSessionID()
	assert.NotEmpty(t, sid)
	assert.NotEqual(t, sid, m.NewSessionID())
}
