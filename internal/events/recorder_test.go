package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderPaths(t *testing.T) {
	r := NewRecorder("/runs", "a1b2c3d4")
	assert.Equal(t, "/runs/a1b2c3d4/started.yaml", r.StartedPath())
	assert.Equal(t, "/runs/a1b2c3d4/stopped.yaml", r.StoppedPath())
	assert.Equal(t, "/runs/a1b2c3d4/cycles/w0-c3.yaml", r.CyclePath("w0", 3))
	assert.Equal(t, "/runs/a1b2c3d4/reviews/w1-c2-r1.yaml", r.ReviewPath("w1", 2, 1))
}

func TestWriteAndReadStarted(t *testing.T) {
	r := NewRecorder(t.TempDir(), "a1b2c3d4")

	startedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	ev := Started{
		SwarmID:    "a1b2c3d4",
		StartedAt:  startedAt,
		PID:        4242,
		ConfigPath: "swarm.yaml",
		Workers: []WorkerInfo{
			{ID: "w0", Harness: "claude", Model: "sonnet", MaxCycles: 5, CanPlan: true},
		},
		Reviewer: &ReviewerInfo{Harness: "codex", Model: "gpt-5.2-codex", MaxRounds: 3},
	}
	require.NoError(t, r.WriteStarted(ev))

	got, err := ReadStarted(r.RunDir())
	require.NoError(t, err)
	assert.Equal(t, ev.SwarmID, got.SwarmID)
	assert.Equal(t, 4242, got.PID)
	require.Len(t, got.Workers, 1)
	assert.Equal(t, "w0", got.Workers[0].ID)
	require.NotNil(t, got.Reviewer)
	assert.Equal(t, 3, got.Reviewer.MaxRounds)
	assert.True(t, got.StartedAt.Equal(startedAt))
}

func TestEventsAreImmutable(t *testing.T) {
	r := NewRecorder(t.TempDir(), "a1b2c3d4")
	ev := Cycle{WorkerID: "w0", Cycle: 1, Outcome: OutcomeClaimed, At: time.Now()}
	require.NoError(t, r.WriteCycle(ev))

	err := r.WriteCycle(ev)
	require.ErrorIs(t, err, ErrEventExists)
}

func TestNoTmpFileLeftBehind(t *testing.T) {
	r := NewRecorder(t.TempDir(), "a1b2c3d4")
	require.NoError(t, r.WriteStopped(Stopped{StoppedAt: time.Now(), Reason: ReasonCompleted}))

	entries, err := os.ReadDir(r.RunDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()))
	}
}

func TestListCyclesAndReviews(t *testing.T) {
	r := NewRecorder(t.TempDir(), "a1b2c3d4")

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.WriteCycle(Cycle{
			WorkerID: "w0", Cycle: i, Outcome: OutcomeWorking, At: time.Now(),
		}))
	}
	require.NoError(t, r.WriteReview(Review{
		WorkerID: "w0", Cycle: 3, Round: 1, Verdict: VerdictApproved, At: time.Now(),
	}))

	cycles, err := ListCycles(r.RunDir())
	require.NoError(t, err)
	assert.Len(t, cycles, 3)

	reviews, err := ListReviews(r.RunDir())
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, VerdictApproved, reviews[0].Verdict)
}

func TestReadStoppedAbsent(t *testing.T) {
	r := NewRecorder(t.TempDir(), "a1b2c3d4")
	require.NoError(t, r.WriteStarted(Started{SwarmID: "a1b2c3d4", StartedAt: time.Now(), PID: os.Getpid()}))

	_, present, err := ReadStopped(r.RunDir())
	require.NoError(t, err)
	assert.False(t, present)
}

func TestAliveTriplet(t *testing.T) {
	r := NewRecorder(t.TempDir(), "a1b2c3d4")

	// No started event: not alive.
	alive, err := Alive(r.RunDir())
	require.NoError(t, err)
	assert.False(t, alive)

	// Started with our own pid: alive.
	require.NoError(t, r.WriteStarted(Started{SwarmID: "a1b2c3d4", StartedAt: time.Now(), PID: os.Getpid()}))
	alive, err = Alive(r.RunDir())
	require.NoError(t, err)
	assert.True(t, alive)

	// Stopped present: not alive even though the pid still is.
	require.NoError(t, r.WriteStopped(Stopped{StoppedAt: time.Now(), Reason: ReasonCompleted}))
	alive, err = Alive(r.RunDir())
	require.NoError(t, err)
	assert.False(t, alive)
}
