package merge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/oompa/internal/git"
	"github.com/zjrosen/oompa/internal/task"
	"github.com/zjrosen/oompa/internal/workspace"
)

func newClaimedStore(t *testing.T, ids ...string) *task.Store {
	t.Helper()
	store := task.NewStore(t.TempDir())
	require.NoError(t, store.EnsureDirs())
	for _, id := range ids {
		require.NoError(t, store.Create(task.Task{ID: id, Summary: "s"}))
	}
	for _, res := range store.Claim(ids) {
		require.Equal(t, task.Claimed, res)
	}
	return store
}

func testWorkspace(wsGit git.Executor) *workspace.Workspace {
	m := workspace.NewManagerWith("/repo", "main", &git.Fake{},
		func(string) git.Executor { return wsGit })
	ws, _ := m.Acquire(context.Background(), "w0", 1)
	return ws
}

func TestMergeSuccessCompletesTasks(t *testing.T) {
	store := newClaimedStore(t, "auth-01", "auth-02")
	rootGit := &git.Fake{
		ShortHashFunc: func(string) (string, error) { return "deadbee", nil },
	}
	wsGit := &git.Fake{}
	c := NewCoordinator(rootGit, "main", store)

	res, err := c.Merge(context.Background(), Request{
		Workspace:    testWorkspace(wsGit),
		TaskIDs:      []string{"auth-01", "auth-02"},
		ReviewRounds: 2,
	})
	require.NoError(t, err)
	assert.True(t, res.Merged)
	assert.Equal(t, "deadbee", res.Commit)

	// Residual edits committed in the worktree before the lock.
	assert.Contains(t, wsGit.Calls, "commit-all")
	assert.Contains(t, rootGit.Calls, "checkout main")
	assert.Contains(t, rootGit.Calls, "merge oompa/w0-c1")

	done, err := store.IDs(task.StateComplete)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"auth-01", "auth-02"}, done)

	completed, err := store.Get(task.StateComplete, "auth-01")
	require.NoError(t, err)
	assert.Equal(t, "w0", completed.CompletedBy)
	assert.Equal(t, 2, completed.ReviewRounds)
	assert.Equal(t, "deadbee", completed.MergedCommit)
	assert.NotEmpty(t, completed.CompletedAt)
}

func TestMergeConflictAbortsAndLeavesTasksClaimed(t *testing.T) {
	store := newClaimedStore(t, "auth-01")
	rootGit := &git.Fake{
		MergeFunc:           func(string) error { return git.ErrMergeConflict },
		ConflictedFilesFunc: func() ([]string, error) { return []string{"a.go"}, nil },
	}
	c := NewCoordinator(rootGit, "main", store)

	res, err := c.Merge(context.Background(), Request{
		Workspace: testWorkspace(&git.Fake{}),
		TaskIDs:   []string{"auth-01"},
	})
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.NotEmpty(t, res.Reason)
	assert.Contains(t, rootGit.Calls, "merge-abort")
	assert.NotContains(t, rootGit.Calls, "reset-hard HEAD")

	claimed, err := store.IDs(task.StateCurrent)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth-01"}, claimed)
}

func TestMergeFailureWithoutConflictResetsHard(t *testing.T) {
	rootGit := &git.Fake{
		MergeFunc: func(string) error { return errors.New("index locked") },
	}
	c := NewCoordinator(rootGit, "main", newClaimedStore(t))

	res, err := c.Merge(context.Background(), Request{Workspace: testWorkspace(&git.Fake{})})
	require.NoError(t, err)
	assert.False(t, res.Merged)
	assert.Contains(t, rootGit.Calls, "reset-hard HEAD")
}

func TestMergeCheckoutFailureIsAnError(t *testing.T) {
	rootGit := &git.Fake{
		CheckoutFunc: func(string) error { return errors.New("worktree locked") },
	}
	c := NewCoordinator(rootGit, "main", newClaimedStore(t))

	_, err := c.Merge(context.Background(), Request{Workspace: testWorkspace(&git.Fake{})})
	require.Error(t, err)
}

func TestMergesAreSerialized(t *testing.T) {
	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	rootGit := &git.Fake{
		MergeFunc: func(string) error {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
			return nil
		},
	}
	c := NewCoordinator(rootGit, "main", newClaimedStore(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Merge(context.Background(), Request{Workspace: testWorkspace(&git.Fake{})})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak, "merges must not overlap")
}
