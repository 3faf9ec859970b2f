// Package workspace manages the per-cycle git worktrees workers run in.
// Each cycle gets a disposable worktree and branch so agents can edit
// freely without touching the mainline checkout.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/oompa/internal/git"
	"github.com/zjrosen/oompa/internal/log"
)

// BranchPrefix namespaces the branches this tool creates.
const BranchPrefix = "oompa/"

// Workspace is one worker's isolated checkout for one cycle.
type Workspace struct {
	WorkerID string
	Cycle    int

	// Dir is the worktree directory, a dot-prefixed sibling of the
	// project's tracked files.
	Dir string

	// Branch is the cycle branch the worktree is checked out on.
	Branch string

	// Base is the mainline branch the cycle branch was cut from.
	Base string

	git git.Executor
}

// Git returns an executor rooted at the worktree directory.
func (ws *Workspace) Git() git.Executor { return ws.git }

// HasChanges reports whether the workspace diverged from its base:
// either uncommitted edits or commits ahead of the base branch.
func (ws *Workspace) HasChanges() (bool, error) {
	dirty, err := ws.git.HasUncommittedChanges()
	if err != nil {
		return false, err
	}
	if dirty {
		return true, nil
	}
	ahead, err := ws.git.AheadCount(ws.Base)
	if err != nil {
		return false, err
	}
	return ahead > 0, nil
}

// ChangedFiles lists the paths the workspace touched relative to its base,
// including untracked files.
func (ws *Workspace) ChangedFiles() ([]string, error) {
	return ws.git.ChangedFiles(ws.Base)
}

// SyncResult classifies the outcome of SyncWithMain.
type SyncResult string

const (
	// SyncClean means the merge applied without conflicts (or was a no-op).
	SyncClean SyncResult = "clean"
	// SyncResolved means conflicts occurred and the resolver fixed them.
	SyncResolved SyncResult = "resolved"
	// SyncFailed means conflicts remained; the merge was aborted and the
	// workspace is back to its pre-sync state.
	SyncFailed SyncResult = "failed"
)

// ConflictResolver repairs merge conflicts in a workspace, typically by
// running the worker's agent with a conflict prompt. It returns an error
// if resolution could not even be attempted.
type ConflictResolver func(ctx context.Context, ws *Workspace, conflicted []string) error

// SyncWithMain merges the base branch into the cycle branch, invoking the
// resolver on conflict. This runs in the worker's own worktree and takes
// no shared lock; only the final fast-forward into main is serialized.
func (ws *Workspace) SyncWithMain(ctx context.Context, resolve ConflictResolver) (SyncResult, error) {
	// Checkpoint loose edits so the merge has a clean index to work with.
	if err := ws.git.CommitAll("checkpoint before sync"); err != nil {
		return SyncFailed, fmt.Errorf("checkpoint %s: %w", ws.Branch, err)
	}

	err := ws.git.Merge(ws.Base)
	if err == nil {
		return SyncClean, nil
	}
	if !errors.Is(err, git.ErrMergeConflict) {
		return SyncFailed, fmt.Errorf("merge %s into %s: %w", ws.Base, ws.Branch, err)
	}

	conflicted, cErr := ws.git.ConflictedFiles()
	if cErr != nil {
		_ = ws.git.MergeAbort()
		return SyncFailed, cErr
	}
	log.Warn(log.CatWS, "sync conflict",
		"worker", ws.WorkerID, "cycle", ws.Cycle, "files", len(conflicted))

	if resolve == nil {
		_ = ws.git.MergeAbort()
		return SyncFailed, nil
	}
	if rErr := resolve(ctx, ws, conflicted); rErr != nil {
		_ = ws.git.MergeAbort()
		return SyncFailed, fmt.Errorf("resolve conflicts: %w", rErr)
	}

	remaining, cErr := ws.git.ConflictedFiles()
	if cErr != nil {
		_ = ws.git.MergeAbort()
		return SyncFailed, cErr
	}
	if len(remaining) > 0 {
		log.Warn(log.CatWS, "conflicts remain after resolution",
			"worker", ws.WorkerID, "files", len(remaining))
		_ = ws.git.MergeAbort()
		return SyncFailed, nil
	}

	if err := ws.git.CommitAll(fmt.Sprintf("merge %s", ws.Base)); err != nil {
		return SyncFailed, fmt.Errorf("commit resolution: %w", err)
	}
	return SyncResolved, nil
}

// Manager creates and destroys workspaces under one project root.
type Manager struct {
	projectRoot string
	mainBranch  string
	rootGit     git.Executor

	// newExecutor builds an executor rooted at a worktree directory.
	newExecutor func(dir string) git.Executor
}

// NewManager returns a Manager that shells out to git for real.
func NewManager(projectRoot, mainBranch string) *Manager {
	return &Manager{
		projectRoot: projectRoot,
		mainBranch:  mainBranch,
		rootGit:     git.NewRealExecutor(projectRoot),
		newExecutor: func(dir string) git.Executor { return git.NewRealExecutor(dir) },
	}
}

// NewManagerWith injects the executors, for tests.
func NewManagerWith(projectRoot, mainBranch string, rootGit git.Executor, newExecutor func(dir string) git.Executor) *Manager {
	return &Manager{
		projectRoot: projectRoot,
		mainBranch:  mainBranch,
		rootGit:     rootGit,
		newExecutor: newExecutor,
	}
}

// Dir returns the worktree directory for a worker cycle.
func (m *Manager) Dir(workerID string, cycle int) string {
	return filepath.Join(m.projectRoot, fmt.Sprintf(".%s-c%d", workerID, cycle))
}

// BranchName returns the cycle branch for a worker cycle.
func BranchName(workerID string, cycle int) string {
	return fmt.Sprintf("%s%s-c%d", BranchPrefix, workerID, cycle)
}

// Acquire creates a fresh worktree and branch for the worker cycle.
// Leftovers from a crashed earlier run with the same name are removed first.
func (m *Manager) Acquire(ctx context.Context, workerID string, cycle int) (*Workspace, error) {
	dir := m.Dir(workerID, cycle)
	branch := BranchName(workerID, cycle)

	if _, err := os.Stat(dir); err == nil {
		log.Warn(log.CatWS, "removing stale worktree", "dir", dir)
		if err := m.rootGit.RemoveWorktree(dir); err != nil {
			return nil, fmt.Errorf("remove stale worktree %s: %w", dir, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("remove stale dir %s: %w", dir, err)
		}
	}
	_ = m.rootGit.PruneWorktrees()
	if m.rootGit.BranchExists(branch) {
		log.Warn(log.CatWS, "removing stale branch", "branch", branch)
		if err := m.rootGit.DeleteBranch(branch); err != nil {
			return nil, fmt.Errorf("delete stale branch %s: %w", branch, err)
		}
	}

	if err := m.rootGit.AddWorktree(ctx, dir, branch, m.mainBranch); err != nil {
		return nil, fmt.Errorf("add worktree %s: %w", dir, err)
	}

	log.Info(log.CatWS, "workspace acquired",
		"worker", workerID, "cycle", cycle, "dir", dir, "branch", branch)
	return &Workspace{
		WorkerID: workerID,
		Cycle:    cycle,
		Dir:      dir,
		Branch:   branch,
		Base:     m.mainBranch,
		git:      m.newExecutor(dir),
	}, nil
}

// Release tears down a workspace: worktree, directory, and branch.
// Safe to call more than once and on partially torn-down workspaces.
func (m *Manager) Release(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	if err := m.rootGit.RemoveWorktree(ws.Dir); err != nil {
		return fmt.Errorf("remove worktree %s: %w", ws.Dir, err)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("remove dir %s: %w", ws.Dir, err)
	}
	_ = m.rootGit.PruneWorktrees()
	if m.rootGit.BranchExists(ws.Branch) {
		if err := m.rootGit.DeleteBranch(ws.Branch); err != nil {
			return fmt.Errorf("delete branch %s: %w", ws.Branch, err)
		}
	}
	log.Info(log.CatWS, "workspace released", "worker", ws.WorkerID, "cycle", ws.Cycle)
	return nil
}

// MainBranch returns the mainline branch the manager integrates into.
func (m *Manager) MainBranch() string { return m.mainBranch }

// ProjectRoot returns the repository root the manager operates on.
func (m *Manager) ProjectRoot() string { return m.projectRoot }
