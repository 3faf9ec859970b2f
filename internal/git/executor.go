package git

import "context"

// Executor defines the interface for the git operations the orchestrator
// needs: worktree lifecycle, diff inspection, and mainline integration.
// This abstraction allows for easy testing with fake implementations.
type Executor interface {
	// Repository checks, used at launch time.
	IsGitRepo() bool
	GetRepoRoot() (string, error)
	GetMainBranch() (string, error)
	GetCurrentBranch() (string, error)
	HasUncommittedChanges() (bool, error)

	// Worktree lifecycle.
	// AddWorktree creates a worktree at path with a new branch based on baseBranch.
	AddWorktree(ctx context.Context, path, newBranch, baseBranch string) error
	// RemoveWorktree force-removes the worktree at path. Removing a path that
	// is not a registered worktree is not an error.
	RemoveWorktree(path string) error
	PruneWorktrees() error
	BranchExists(name string) bool
	DeleteBranch(name string) error

	// Diff inspection against a base ref.
	// ChangedFiles lists paths changed between base and HEAD plus untracked files.
	ChangedFiles(base string) ([]string, error)
	// Diff returns the unified diff of the working tree against base.
	Diff(base string) (string, error)
	// AheadCount returns the number of commits on HEAD not on base.
	AheadCount(base string) (int, error)

	// Integration operations.
	Checkout(branch string) error
	// CommitAll stages everything and commits. A clean tree is not an error.
	CommitAll(message string) error
	// Merge merges ref into the current branch with --no-edit.
	Merge(ref string) error
	MergeAbort() error
	ResetHard(ref string) error
	// ConflictedFiles lists paths with unresolved merge conflicts.
	ConflictedFiles() ([]string, error)
	// ShortHash resolves ref to its abbreviated commit hash.
	ShortHash(ref string) (string, error)
}
