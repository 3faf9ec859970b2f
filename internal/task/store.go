package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/oompa/internal/log"
)

// ClaimResult is the per-id outcome of a claim attempt.
type ClaimResult string

const (
	// Claimed means this caller won the rename pending -> current.
	Claimed ClaimResult = "claimed"
	// NotFound means no task with that id exists in pending or current.
	NotFound ClaimResult = "not-found"
	// AlreadyClaimed means another worker moved the task to current first.
	AlreadyClaimed ClaimResult = "already-claimed"
)

// ErrTaskExists is returned by Create when the id is already present
// in any state directory.
var ErrTaskExists = errors.New("task already exists")

// Store is the only mechanism by which tasks move between states.
// All transitions are atomic renames within a single volume, so
// concurrent workers race safely without any locking.
type Store struct {
	root string
}

// NewStore creates a store rooted at root (e.g. {project}/tasks).
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the task-store root directory.
func (s *Store) Root() string {
	return s.root
}

// EnsureDirs creates the pending/current/complete directories.
func (s *Store) EnsureDirs() error {
	for _, state := range States {
		if err := os.MkdirAll(s.dir(state), 0o755); err != nil {
			return fmt.Errorf("create %s dir: %w", state, err)
		}
	}
	return nil
}

func (s *Store) dir(state State) string {
	return filepath.Join(s.root, string(state))
}

func (s *Store) path(state State, id string) string {
	return filepath.Join(s.dir(state), FileName(id))
}

// List enumerates tasks in the given state, ordered by filename.
func (s *Store) List(state State) ([]Task, error) {
	entries, err := os.ReadDir(s.dir(state))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", state, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		t, err := readTask(filepath.Join(s.dir(state), name))
		if err != nil {
			log.Warn(log.CatTask, "Skipping unreadable task file", "file", name, "state", state, "reason", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// IDs returns the ids of all tasks in the given state.
func (s *Store) IDs(state State) ([]string, error) {
	tasks, err := s.List(state)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// PendingCount returns the number of tasks waiting in pending.
func (s *Store) PendingCount() (int, error) {
	ids, err := s.IDs(StatePending)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Claim attempts to move each id pending -> current with a single atomic
// rename per id. Concurrent claims resolve deterministically: exactly one
// caller wins each id. The result maps every input id to its outcome.
func (s *Store) Claim(ids []string) map[string]ClaimResult {
	results := make(map[string]ClaimResult, len(ids))
	for _, id := range ids {
		err := os.Rename(s.path(StatePending, id), s.path(StateCurrent, id))
		switch {
		case err == nil:
			results[id] = Claimed
			log.Debug(log.CatTask, "Claimed task", "id", id)
		case fileExists(s.path(StateCurrent, id)):
			results[id] = AlreadyClaimed
			log.Debug(log.CatTask, "Task already claimed", "id", id)
		default:
			results[id] = NotFound
			log.Debug(log.CatTask, "Task not found for claim", "id", id)
		}
	}
	return results
}

// Complete moves each id current -> complete. Used only by the framework
// after a successful merge.
func (s *Store) Complete(ids []string) error {
	for _, id := range ids {
		src := s.path(StateCurrent, id)
		dst := s.path(StateComplete, id)
		if err := os.Rename(src, dst); err != nil {
			if fileExists(dst) {
				continue // already complete
			}
			return fmt.Errorf("complete %s: %w", id, err)
		}
		log.Debug(log.CatTask, "Completed task", "id", id)
	}
	return nil
}

// Recycle moves each id current -> pending. Used when a worker's cycle
// aborts with tasks still claimed. Recycling an id that is already back
// in pending is a no-op, so repeated calls are safe.
func (s *Store) Recycle(ids []string) error {
	for _, id := range ids {
		src := s.path(StateCurrent, id)
		dst := s.path(StatePending, id)
		if err := os.Rename(src, dst); err != nil {
			if fileExists(dst) {
				continue // already recycled
			}
			if os.IsNotExist(err) {
				log.Warn(log.CatTask, "Recycle skipped missing task", "id", id)
				continue
			}
			return fmt.Errorf("recycle %s: %w", id, err)
		}
		log.Debug(log.CatTask, "Recycled task", "id", id)
	}
	return nil
}

// Create writes a new task file in pending. The id must be unique across
// all state directories.
func (s *Store) Create(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.Summary == "" {
		return fmt.Errorf("task summary is required")
	}
	for _, state := range States {
		if fileExists(s.path(state, t.ID)) {
			return fmt.Errorf("%w: %s in %s", ErrTaskExists, t.ID, state)
		}
	}
	return writeTask(s.path(StatePending, t.ID), t)
}

// Get reads the task with id from the given state directory.
func (s *Store) Get(state State, id string) (Task, error) {
	return readTask(s.path(state, id))
}

// Annotate appends completion metadata to a task already in complete/.
func (s *Store) Annotate(id string, ann Annotation) error {
	path := s.path(StateComplete, id)
	t, err := readTask(path)
	if err != nil {
		return fmt.Errorf("annotate %s: %w", id, err)
	}
	t.CompletedBy = ann.CompletedBy
	t.CompletedAt = ann.CompletedAt.UTC().Format(time.RFC3339)
	t.ReviewRounds = ann.ReviewRounds
	t.MergedCommit = ann.MergedCommit
	return writeTask(path, t)
}

func readTask(path string) (Task, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: paths derive from the store root
	if err != nil {
		return Task{}, err
	}
	var t Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if t.ID == "" {
		return Task{}, fmt.Errorf("task file %s has no id", filepath.Base(path))
	}
	return t, nil
}

// writeTask serializes to a .tmp sibling and renames into place so readers
// never observe a partial file.
func writeTask(path string, t Task) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", t.ID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // G306: agents read task files from their worktrees
		return fmt.Errorf("write task %s: %w", t.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize task %s: %w", t.ID, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
