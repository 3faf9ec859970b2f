// Package git shells out to the git binary for all version-control
// operations. Every worker workspace and the shared project root get
// their own executor rooted at the right directory.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Git-specific errors surfaced to callers.
var (
	// ErrBranchAlreadyCheckedOut indicates the branch is checked out in another worktree.
	ErrBranchAlreadyCheckedOut = errors.New("branch already checked out in another worktree")

	// ErrPathAlreadyExists indicates the worktree path already exists.
	ErrPathAlreadyExists = errors.New("worktree path already exists")

	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrMergeConflict indicates a merge stopped on conflicts.
	ErrMergeConflict = errors.New("merge conflict")
)

// Compile-time check that RealExecutor implements Executor.
var _ Executor = (*RealExecutor)(nil)

// RealExecutor implements Executor by executing actual git commands.
type RealExecutor struct {
	workDir string
}

// NewRealExecutor creates an executor that runs git commands in workDir.
func NewRealExecutor(workDir string) *RealExecutor {
	return &RealExecutor{workDir: workDir}
}

// WorkDir returns the directory commands run in.
func (e *RealExecutor) WorkDir() string {
	return e.workDir
}

// runGit executes a git command and returns an error if it fails.
func (e *RealExecutor) runGit(args ...string) error {
	_, err := e.runGitOutput(args...)
	return err
}

// runGitOutput executes a git command and returns stdout and any error.
func (e *RealExecutor) runGitOutput(args ...string) (string, error) {
	return e.runGitOutputContext(context.Background(), args...)
}

func (e *RealExecutor) runGitOutputContext(ctx context.Context, args ...string) (string, error) {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.CommandContext(ctx, "git", args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// git merge reports conflicts on stdout, everything else on stderr
		combined := strings.TrimSpace(stderr.String() + "\n" + stdout.String())
		if combined != "" {
			return "", parseGitError(combined, err)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// parseGitError converts git failure output to specific error types.
func parseGitError(output string, originalErr error) error {
	lower := strings.ToLower(output)

	if strings.Contains(lower, "is already checked out") ||
		strings.Contains(lower, "already checked out at") {
		return fmt.Errorf("%w: %s", ErrBranchAlreadyCheckedOut, output)
	}

	if strings.Contains(lower, "already exists") {
		return fmt.Errorf("%w: %s", ErrPathAlreadyExists, output)
	}

	if strings.Contains(lower, "not a git repository") {
		return fmt.Errorf("%w: %s", ErrNotGitRepo, output)
	}

	if strings.Contains(lower, "conflict") ||
		strings.Contains(lower, "automatic merge failed") {
		return fmt.Errorf("%w: %s", ErrMergeConflict, output)
	}

	return fmt.Errorf("git error: %s: %w", output, originalErr)
}

// IsGitRepo checks if the working directory is inside a git repository.
func (e *RealExecutor) IsGitRepo() bool {
	err := e.runGit("rev-parse", "--git-dir")
	return err == nil
}

// GetRepoRoot returns the root directory of the git repository.
func (e *RealExecutor) GetRepoRoot() (string, error) {
	return e.runGitOutput("rev-parse", "--show-toplevel")
}

// GetMainBranch detects the main branch name using multiple strategies.
// Order: config → remote HEAD → main/master existence → fallback to "main"
func (e *RealExecutor) GetMainBranch() (string, error) {
	if branch, err := e.runGitOutput("config", "init.defaultBranch"); err == nil && branch != "" {
		// Respect the config only when the branch actually exists
		if e.BranchExists(branch) {
			return branch, nil
		}
	}

	if ref, err := e.runGitOutput("symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		parts := strings.Split(ref, "/")
		if len(parts) > 0 {
			return parts[len(parts)-1], nil
		}
	}

	if e.BranchExists("main") {
		return "main", nil
	}
	if e.BranchExists("master") {
		return "master", nil
	}

	return "main", nil
}

// GetCurrentBranch returns the name of the current branch.
func (e *RealExecutor) GetCurrentBranch() (string, error) {
	output, err := e.runGitOutput("branch", "--show-current")
	if err == nil && output != "" {
		return output, nil
	}

	output, err = e.runGitOutput("symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return output, nil
}

// HasUncommittedChanges checks for staged, unstaged, or untracked changes.
func (e *RealExecutor) HasUncommittedChanges() (bool, error) {
	output, err := e.runGitOutput("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return output != "", nil
}

// AddWorktree creates a new worktree at path with a new branch based on baseBranch.
func (e *RealExecutor) AddWorktree(ctx context.Context, path, newBranch, baseBranch string) error {
	args := []string{"worktree", "add", "-b", newBranch, path}
	if baseBranch != "" {
		args = append(args, baseBranch)
	}
	_, err := e.runGitOutputContext(ctx, args...)
	return err
}

// RemoveWorktree force-removes the worktree at path.
// A path git does not know about is treated as already removed.
func (e *RealExecutor) RemoveWorktree(path string) error {
	err := e.runGit("worktree", "remove", "--force", path)
	if err != nil {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "is not a working tree") ||
			strings.Contains(lower, "no such file") {
			return nil
		}
		return err
	}
	return nil
}

// PruneWorktrees removes stale worktree references.
func (e *RealExecutor) PruneWorktrees() error {
	return e.runGit("worktree", "prune")
}

// BranchExists checks if a local branch with the given name exists.
func (e *RealExecutor) BranchExists(name string) bool {
	err := e.runGit("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// DeleteBranch force-deletes a local branch. A missing branch is not an error.
func (e *RealExecutor) DeleteBranch(name string) error {
	if !e.BranchExists(name) {
		return nil
	}
	return e.runGit("branch", "-D", name)
}

// ChangedFiles lists paths changed between base and HEAD plus untracked files.
func (e *RealExecutor) ChangedFiles(base string) ([]string, error) {
	committed, err := e.runGitOutput("diff", "--name-only", base+"...HEAD")
	if err != nil {
		// Fall back to a two-dot diff when there is no merge base
		committed, err = e.runGitOutput("diff", "--name-only", base)
		if err != nil {
			return nil, err
		}
	}

	working, err := e.runGitOutput("diff", "--name-only", "HEAD")
	if err != nil {
		working = ""
	}

	untracked, err := e.runGitOutput("ls-files", "--others", "--exclude-standard")
	if err != nil {
		untracked = ""
	}

	seen := make(map[string]struct{})
	var files []string
	for _, chunk := range []string{committed, working, untracked} {
		for line := range strings.SplitSeq(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			files = append(files, line)
		}
	}
	return files, nil
}

// Diff returns the unified diff of the working tree against base.
// Covers both committed and uncommitted changes.
func (e *RealExecutor) Diff(base string) (string, error) {
	return e.runGitOutput("diff", base)
}

// AheadCount returns the number of commits on HEAD that are not on base.
func (e *RealExecutor) AheadCount(base string) (int, error) {
	output, err := e.runGitOutput("rev-list", "--count", base+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(output)
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", output, err)
	}
	return n, nil
}

// Checkout switches the working directory to branch.
func (e *RealExecutor) Checkout(branch string) error {
	return e.runGit("checkout", branch)
}

// CommitAll stages all changes and commits them. A clean tree is a no-op.
func (e *RealExecutor) CommitAll(message string) error {
	if err := e.runGit("add", "-A"); err != nil {
		return err
	}
	dirty, err := e.HasUncommittedChanges()
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	return e.runGit("commit", "-m", message)
}

// Merge merges ref into the current branch without opening an editor.
func (e *RealExecutor) Merge(ref string) error {
	return e.runGit("merge", "--no-edit", ref)
}

// MergeAbort aborts an in-progress merge.
func (e *RealExecutor) MergeAbort() error {
	return e.runGit("merge", "--abort")
}

// ResetHard resets the working directory and index to ref.
func (e *RealExecutor) ResetHard(ref string) error {
	return e.runGit("reset", "--hard", ref)
}

// ConflictedFiles lists paths with unresolved merge conflicts.
func (e *RealExecutor) ConflictedFiles() ([]string, error) {
	output, err := e.runGitOutput("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, nil
	}
	var files []string
	for line := range strings.SplitSeq(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// ShortHash resolves ref to its abbreviated commit hash.
func (e *RealExecutor) ShortHash(ref string) (string, error) {
	return e.runGitOutput("rev-parse", "--short", ref)
}
