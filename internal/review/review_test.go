package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/oompa/internal/events"
	"github.com/zjrosen/oompa/internal/git"
	"github.com/zjrosen/oompa/internal/harness"
	"github.com/zjrosen/oompa/internal/task"
	"github.com/zjrosen/oompa/internal/workspace"
)

// scriptedRunner returns canned reviewer outputs in order.
type scriptedRunner struct {
	outputs []string
	prompts []string
}

func (r *scriptedRunner) Run(_ context.Context, _ harness.Harness, inv harness.Invocation) (harness.Result, error) {
	r.prompts = append(r.prompts, inv.Prompt)
	i := len(r.prompts) - 1
	out := ""
	if i < len(r.outputs) {
		out = r.outputs[i]
	}
	return harness.Result{Stdout: out}, nil
}

func testWorkspace(diff string) *workspace.Workspace {
	wsGit := &git.Fake{
		DiffFunc: func(string) (string, error) { return diff, nil },
	}
	m := workspace.NewManagerWith("/repo", "main", &git.Fake{},
		func(string) git.Executor { return wsGit })
	ws, _ := m.Acquire(context.Background(), "w0", 1)
	return ws
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		text string
		want events.Verdict
	}{
		{"explicit approved", "looks good\nVERDICT: APPROVED", events.VerdictApproved},
		{"explicit rejected", "VERDICT: REJECTED", events.VerdictRejected},
		{"explicit needs changes", "VERDICT: NEEDS_CHANGES\n", events.VerdictNeedsChanges},
		{"last verdict line wins", "VERDICT: NEEDS_CHANGES\nfixed now\nVERDICT: APPROVED", events.VerdictApproved},
		{"bare approved word", "This is approved, ship it", events.VerdictApproved},
		{"bare rejected word", "rejected: wrong approach", events.VerdictRejected},
		{"both words, approved first", "approved? no, rejected", events.VerdictApproved},
		{"both words, rejected first", "rejected, though parts look approved", events.VerdictRejected},
		{"nothing recognizable", "hmm, needs more thought", events.VerdictNeedsChanges},
		{"empty", "", events.VerdictNeedsChanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.text))
		})
	}
}

func TestTruncateDiff(t *testing.T) {
	short := "line one"
	assert.Equal(t, short, TruncateDiff(short, 100))

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	got := TruncateDiff(string(long), 100)
	assert.Contains(t, got, "(diff truncated)")
	assert.Less(t, len(got), 150)
}

func TestNilLoopApprovesWithoutRounds(t *testing.T) {
	var l *Loop
	verdict, rounds, err := l.Run(context.Background(), testWorkspace(""), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, events.VerdictApproved, verdict)
	assert.Equal(t, 0, rounds)
}

func TestApprovedFirstRound(t *testing.T) {
	runner := &scriptedRunner{outputs: []string{"all good\nVERDICT: APPROVED"}}
	l := NewLoop(harness.NewMock(), runner, nil, Config{})

	verdict, rounds, err := l.Run(context.Background(), testWorkspace("+added"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, events.VerdictApproved, verdict)
	assert.Equal(t, 1, rounds)
}

func TestNeedsChangesInvokesFixerThenApproves(t *testing.T) {
	runner := &scriptedRunner{outputs: []string{
		"missing error handling\nVERDICT: NEEDS_CHANGES",
		"VERDICT: APPROVED",
	}}
	l := NewLoop(harness.NewMock(), runner, nil, Config{})

	var feedback []string
	fix := func(_ context.Context, fb string, round int) error {
		feedback = append(feedback, fb)
		assert.Equal(t, 1, round)
		return nil
	}

	verdict, rounds, err := l.Run(context.Background(), testWorkspace("+x"), nil, fix)
	require.NoError(t, err)
	assert.Equal(t, events.VerdictApproved, verdict)
	assert.Equal(t, 2, rounds)
	require.Len(t, feedback, 1)
	assert.Contains(t, feedback[0], "missing error handling")

	// The second prompt carries the first round's feedback and scopes the
	// reviewer to it.
	require.Len(t, runner.prompts, 2)
	assert.Contains(t, runner.prompts[1], "Round 1 feedback")
	assert.Contains(t, runner.prompts[1], "Do not raise new issues")
	assert.NotContains(t, runner.prompts[0], "Do not raise new issues")
}

func TestExhaustedRoundsYieldNeedsChanges(t *testing.T) {
	runner := &scriptedRunner{outputs: []string{
		"VERDICT: NEEDS_CHANGES", "VERDICT: NEEDS_CHANGES", "VERDICT: NEEDS_CHANGES",
	}}
	l := NewLoop(harness.NewMock(), runner, nil, Config{MaxRounds: 3})

	fixes := 0
	fix := func(context.Context, string, int) error { fixes++; return nil }

	verdict, rounds, err := l.Run(context.Background(), testWorkspace("+x"), nil, fix)
	require.NoError(t, err)
	assert.Equal(t, events.VerdictNeedsChanges, verdict)
	assert.Equal(t, 3, rounds)
	assert.Equal(t, 2, fixes, "no fix attempt after the final round")
}

func TestRejectedStopsImmediately(t *testing.T) {
	runner := &scriptedRunner{outputs: []string{"wrong direction entirely\nVERDICT: REJECTED"}}
	l := NewLoop(harness.NewMock(), runner, nil, Config{})

	verdict, rounds, err := l.Run(context.Background(), testWorkspace("+x"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, events.VerdictRejected, verdict)
	assert.Equal(t, 1, rounds)
}

func TestRecordsReviewEvents(t *testing.T) {
	recorder := events.NewRecorder(t.TempDir(), "a1b2c3d4")
	runner := &scriptedRunner{outputs: []string{"VERDICT: APPROVED"}}
	l := NewLoop(harness.NewMock(), runner, recorder, Config{})

	_, _, err := l.Run(context.Background(), testWorkspace("+x"), nil, nil)
	require.NoError(t, err)

	reviews, err := events.ListReviews(recorder.RunDir())
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "w0", reviews[0].WorkerID)
	assert.Equal(t, 1, reviews[0].Round)
	assert.Equal(t, events.VerdictApproved, reviews[0].Verdict)
}

func TestPromptContainsTasksAndDiff(t *testing.T) {
	runner := &scriptedRunner{outputs: []string{"VERDICT: APPROVED"}}
	l := NewLoop(harness.NewMock(), runner, nil, Config{})

	tasks := []task.Task{{
		ID: "auth-01", Summary: "add login endpoint",
		Acceptance: []string{"returns 401 on bad creds"},
	}}
	_, _, err := l.Run(context.Background(), testWorkspace("+func Login()"), tasks, nil)
	require.NoError(t, err)

	require.Len(t, runner.prompts, 1)
	assert.Contains(t, runner.prompts[0], "auth-01")
	assert.Contains(t, runner.prompts[0], "+func Login()")
	assert.Contains(t, runner.prompts[0], "returns 401 on bad creds")
	assert.Contains(t, runner.prompts[0], "VERDICT:")
}
