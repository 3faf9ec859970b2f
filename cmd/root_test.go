package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/oompa/internal/events"
	"github.com/zjrosen/oompa/internal/task"
)

func TestTaskAddThenList(t *testing.T) {
	tasksRoot = filepath.Join(t.TempDir(), "tasks")
	addSummary = "add login endpoint"
	addAcceptance = []string{"POST /login returns a token"}
	t.Cleanup(func() {
		addSummary = ""
		addAcceptance = nil
	})

	require.NoError(t, runTaskAdd(nil, []string{"auth-01"}))

	store := task.NewStore(tasksRoot)
	got, err := store.Get(task.StatePending, "auth-01")
	require.NoError(t, err)
	assert.Equal(t, "add login endpoint", got.Summary)
	assert.Equal(t, []string{"POST /login returns a token"}, got.Acceptance)

	require.NoError(t, runTaskList(nil, nil))
}

func TestKindNamesIncludesAdapters(t *testing.T) {
	names := kindNames()
	assert.Contains(t, names, "claude")
	assert.Contains(t, names, "codex")
	assert.Contains(t, names, "mock")
}

func TestInitScaffoldsAndRespectsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, runInit(nil, []string{dir}))

	for _, name := range []string{"swarm.yaml", "prompts/planner.md", "prompts/executor.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	custom := filepath.Join(dir, "swarm.yaml")
	require.NoError(t, os.WriteFile(custom, []byte("workers: []\n"), 0o600))
	require.NoError(t, runInit(nil, []string{dir}))
	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "workers: []\n", string(data))
}

func TestRunStateClassification(t *testing.T) {
	runsDir := t.TempDir()
	recorder := events.NewRecorder(runsDir, "abcd1234")
	require.NoError(t, recorder.WriteStarted(events.Started{
		SwarmID:   "abcd1234",
		StartedAt: time.Now().UTC(),
		PID:       1 << 30, // no such process
	}))

	runDir := filepath.Join(runsDir, "abcd1234")
	assert.Equal(t, "crashed", runState(runDir))

	require.NoError(t, recorder.WriteStopped(events.Stopped{
		StoppedAt: time.Now().UTC(),
		Reason:    events.ReasonCompleted,
	}))
	assert.Equal(t, "completed", runState(runDir))
}
