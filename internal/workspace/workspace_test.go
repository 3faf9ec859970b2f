package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/oompa/internal/git"
)

func newTestManager(t *testing.T, rootGit *git.Fake, wsGit *git.Fake) *Manager {
	t.Helper()
	return NewManagerWith(t.TempDir(), "main", rootGit,
		func(string) git.Executor { return wsGit })
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "oompa/w0-c1", BranchName("w0", 1))
	assert.Equal(t, "oompa/w3-c12", BranchName("w3", 12))
}

func TestAcquireCreatesWorktree(t *testing.T) {
	rootGit := &git.Fake{}
	m := newTestManager(t, rootGit, &git.Fake{})

	ws, err := m.Acquire(context.Background(), "w0", 1)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(m.ProjectRoot(), ".w0-c1"), ws.Dir)
	assert.Equal(t, "oompa/w0-c1", ws.Branch)
	assert.Equal(t, "main", ws.Base)
	assert.Contains(t, rootGit.Calls, "add-worktree "+ws.Dir)
}

func TestAcquireRemovesStaleLeftovers(t *testing.T) {
	rootGit := &git.Fake{
		BranchExistsFunc: func(string) bool { return true },
	}
	m := newTestManager(t, rootGit, &git.Fake{})

	// Simulate a crashed run leaving the directory behind.
	staleDir := m.Dir("w0", 1)
	require.NoError(t, os.MkdirAll(staleDir, 0o755))

	ws, err := m.Acquire(context.Background(), "w0", 1)
	require.NoError(t, err)

	assert.Contains(t, rootGit.Calls, "remove-worktree "+staleDir)
	assert.Contains(t, rootGit.Calls, "delete-branch oompa/w0-c1")
	assert.Contains(t, rootGit.Calls, "add-worktree "+ws.Dir)
	// Teardown happens before the new worktree is added.
	assert.Less(t,
		indexOf(rootGit.Calls, "delete-branch oompa/w0-c1"),
		indexOf(rootGit.Calls, "add-worktree "+ws.Dir))
}

func TestReleaseIsIdempotent(t *testing.T) {
	rootGit := &git.Fake{}
	m := newTestManager(t, rootGit, &git.Fake{})

	ws, err := m.Acquire(context.Background(), "w1", 2)
	require.NoError(t, err)

	require.NoError(t, m.Release(ws))
	require.NoError(t, m.Release(ws))
	require.NoError(t, m.Release(nil))
}

func TestHasChanges(t *testing.T) {
	tests := []struct {
		name  string
		dirty bool
		ahead int
		want  bool
	}{
		{"clean and even", false, 0, false},
		{"uncommitted edits", true, 0, true},
		{"committed ahead", false, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wsGit := &git.Fake{
				HasUncommittedChangesFunc: func() (bool, error) { return tt.dirty, nil },
				AheadCountFunc:            func(string) (int, error) { return tt.ahead, nil },
			}
			ws := &Workspace{Base: "main", git: wsGit}
			got, err := ws.HasChanges()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncWithMainClean(t *testing.T) {
	wsGit := &git.Fake{}
	ws := &Workspace{WorkerID: "w0", Branch: "oompa/w0-c1", Base: "main", git: wsGit}

	res, err := ws.SyncWithMain(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, SyncClean, res)
	assert.Contains(t, wsGit.Calls, "merge main")
}

func TestSyncWithMainResolved(t *testing.T) {
	conflicted := true
	wsGit := &git.Fake{
		MergeFunc: func(string) error { return git.ErrMergeConflict },
		ConflictedFilesFunc: func() ([]string, error) {
			if conflicted {
				return []string{"main.go"}, nil
			}
			return nil, nil
		},
	}
	ws := &Workspace{WorkerID: "w0", Branch: "oompa/w0-c1", Base: "main", git: wsGit}

	resolver := func(ctx context.Context, ws *Workspace, files []string) error {
		assert.Equal(t, []string{"main.go"}, files)
		conflicted = false
		return nil
	}

	res, err := ws.SyncWithMain(context.Background(), resolver)
	require.NoError(t, err)
	assert.Equal(t, SyncResolved, res)
	assert.NotContains(t, wsGit.Calls, "merge-abort")
}

func TestSyncWithMainFailsWhenConflictsRemain(t *testing.T) {
	wsGit := &git.Fake{
		MergeFunc:           func(string) error { return git.ErrMergeConflict },
		ConflictedFilesFunc: func() ([]string, error) { return []string{"a.go"}, nil },
	}
	ws := &Workspace{WorkerID: "w0", Branch: "oompa/w0-c1", Base: "main", git: wsGit}

	resolver := func(context.Context, *Workspace, []string) error { return nil }

	res, err := ws.SyncWithMain(context.Background(), resolver)
	require.NoError(t, err)
	assert.Equal(t, SyncFailed, res)
	assert.Contains(t, wsGit.Calls, "merge-abort")
}

func TestSyncWithMainNoResolverAborts(t *testing.T) {
	wsGit := &git.Fake{
		MergeFunc:           func(string) error { return git.ErrMergeConflict },
		ConflictedFilesFunc: func() ([]string, error) { return []string{"a.go"}, nil },
	}
	ws := &Workspace{Branch: "oompa/w0-c1", Base: "main", git: wsGit}

	res, err := ws.SyncWithMain(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, SyncFailed, res)
	assert.Contains(t, wsGit.Calls, "merge-abort")
}

func TestSyncWithMainResolverError(t *testing.T) {
	wsGit := &git.Fake{
		MergeFunc:           func(string) error { return git.ErrMergeConflict },
		ConflictedFilesFunc: func() ([]string, error) { return []string{"a.go"}, nil },
	}
	ws := &Workspace{Branch: "oompa/w0-c1", Base: "main", git: wsGit}

	res, err := ws.SyncWithMain(context.Background(),
		func(context.Context, *Workspace, []string) error { return errors.New("agent crashed") })
	require.Error(t, err)
	assert.Equal(t, SyncFailed, res)
	assert.Contains(t, wsGit.Calls, "merge-abort")
}

func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}
