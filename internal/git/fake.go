package git

import "context"

// Fake is a configurable in-memory Executor for tests.
// Behavior is overridden per-call via function fields; unset fields
// return zero values. Calls records the git-level operations invoked,
// in order, so tests can assert on sequencing.
type Fake struct {
	Calls []string

	IsGitRepoFunc             func() bool
	GetRepoRootFunc           func() (string, error)
	GetMainBranchFunc         func() (string, error)
	GetCurrentBranchFunc      func() (string, error)
	HasUncommittedChangesFunc func() (bool, error)
	AddWorktreeFunc           func(ctx context.Context, path, newBranch, baseBranch string) error
	RemoveWorktreeFunc        func(path string) error
	PruneWorktreesFunc        func() error
	BranchExistsFunc          func(name string) bool
	DeleteBranchFunc          func(name string) error
	ChangedFilesFunc          func(base string) ([]string, error)
	DiffFunc                  func(base string) (string, error)
	AheadCountFunc            func(base string) (int, error)
	CheckoutFunc              func(branch string) error
	CommitAllFunc             func(message string) error
	MergeFunc                 func(ref string) error
	MergeAbortFunc            func() error
	ResetHardFunc             func(ref string) error
	ConflictedFilesFunc       func() ([]string, error)
	ShortHashFunc             func(ref string) (string, error)
}

var _ Executor = (*Fake)(nil)

func (f *Fake) record(op string) {
	f.Calls = append(f.Calls, op)
}

func (f *Fake) IsGitRepo() bool {
	f.record("is-git-repo")
	if f.IsGitRepoFunc != nil {
		return f.IsGitRepoFunc()
	}
	return true
}

func (f *Fake) GetRepoRoot() (string, error) {
	f.record("repo-root")
	if f.GetRepoRootFunc != nil {
		return f.GetRepoRootFunc()
	}
	return "", nil
}

func (f *Fake) GetMainBranch() (string, error) {
	f.record("main-branch")
	if f.GetMainBranchFunc != nil {
		return f.GetMainBranchFunc()
	}
	return "main", nil
}

func (f *Fake) GetCurrentBranch() (string, error) {
	f.record("current-branch")
	if f.GetCurrentBranchFunc != nil {
		return f.GetCurrentBranchFunc()
	}
	return "main", nil
}

func (f *Fake) HasUncommittedChanges() (bool, error) {
	f.record("has-uncommitted")
	if f.HasUncommittedChangesFunc != nil {
		return f.HasUncommittedChangesFunc()
	}
	return false, nil
}

func (f *Fake) AddWorktree(ctx context.Context, path, newBranch, baseBranch string) error {
	f.record("add-worktree " + path)
	if f.AddWorktreeFunc != nil {
		return f.AddWorktreeFunc(ctx, path, newBranch, baseBranch)
	}
	return nil
}

func (f *Fake) RemoveWorktree(path string) error {
	f.record("remove-worktree " + path)
	if f.RemoveWorktreeFunc != nil {
		return f.RemoveWorktreeFunc(path)
	}
	return nil
}

func (f *Fake) PruneWorktrees() error {
	f.record("prune-worktrees")
	if f.PruneWorktreesFunc != nil {
		return f.PruneWorktreesFunc()
	}
	return nil
}

func (f *Fake) BranchExists(name string) bool {
	f.record("branch-exists " + name)
	if f.BranchExistsFunc != nil {
		return f.BranchExistsFunc(name)
	}
	return false
}

func (f *Fake) DeleteBranch(name string) error {
	f.record("delete-branch " + name)
	if f.DeleteBranchFunc != nil {
		return f.DeleteBranchFunc(name)
	}
	return nil
}

func (f *Fake) ChangedFiles(base string) ([]string, error) {
	f.record("changed-files " + base)
	if f.ChangedFilesFunc != nil {
		return f.ChangedFilesFunc(base)
	}
	return nil, nil
}

func (f *Fake) Diff(base string) (string, error) {
	f.record("diff " + base)
	if f.DiffFunc != nil {
		return f.DiffFunc(base)
	}
	return "", nil
}

func (f *Fake) AheadCount(base string) (int, error) {
	f.record("ahead-count " + base)
	if f.AheadCountFunc != nil {
		return f.AheadCountFunc(base)
	}
	return 0, nil
}

func (f *Fake) Checkout(branch string) error {
	f.record("checkout " + branch)
	if f.CheckoutFunc != nil {
		return f.CheckoutFunc(branch)
	}
	return nil
}

func (f *Fake) CommitAll(message string) error {
	f.record("commit-all")
	if f.CommitAllFunc != nil {
		return f.CommitAllFunc(message)
	}
	return nil
}

func (f *Fake) Merge(ref string) error {
	f.record("merge " + ref)
	if f.MergeFunc != nil {
		return f.MergeFunc(ref)
	}
	return nil
}

func (f *Fake) MergeAbort() error {
	f.record("merge-abort")
	if f.MergeAbortFunc != nil {
		return f.MergeAbortFunc()
	}
	return nil
}

func (f *Fake) ResetHard(ref string) error {
	f.record("reset-hard " + ref)
	if f.ResetHardFunc != nil {
		return f.ResetHardFunc(ref)
	}
	return nil
}

func (f *Fake) ConflictedFiles() ([]string, error) {
	f.record("conflicted-files")
	if f.ConflictedFilesFunc != nil {
		return f.ConflictedFilesFunc()
	}
	return nil, nil
}

func (f *Fake) ShortHash(ref string) (string, error) {
	f.record("short-hash " + ref)
	if f.ShortHashFunc != nil {
		return f.ShortHashFunc(ref)
	}
	return "abc1234", nil
}
