package events

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/oompa/internal/log"
)

// ErrEventExists is returned when a write targets a path that already
// holds a finalized event. Event files are immutable once written.
var ErrEventExists = errors.New("event file already exists")

// Recorder writes event files under runs/{swarm-id}/.
// Every write serializes to {path}.tmp and renames into place, so readers
// observe either no file or a complete one, never a partial write.
type Recorder struct {
	runDir string
}

// NewRecorder creates a recorder for the given swarm under runsRoot.
func NewRecorder(runsRoot, swarmID string) *Recorder {
	return &Recorder{runDir: filepath.Join(runsRoot, swarmID)}
}

// RunDir returns the directory holding this swarm's events.
func (r *Recorder) RunDir() string {
	return r.runDir
}

// StartedPath returns the path of the started event file.
func (r *Recorder) StartedPath() string {
	return filepath.Join(r.runDir, "started.yaml")
}

// StoppedPath returns the path of the stopped event file.
func (r *Recorder) StoppedPath() string {
	return filepath.Join(r.runDir, "stopped.yaml")
}

// CyclePath returns the path for a worker's cycle event. Cycles are 1-indexed.
func (r *Recorder) CyclePath(workerID string, cycle int) string {
	return filepath.Join(r.runDir, "cycles", fmt.Sprintf("%s-c%d.yaml", workerID, cycle))
}

// ReviewPath returns the path for a review-round event. Rounds are 1-indexed.
func (r *Recorder) ReviewPath(workerID string, cycle, round int) string {
	return filepath.Join(r.runDir, "reviews", fmt.Sprintf("%s-c%d-r%d.yaml", workerID, cycle, round))
}

// WriteStarted records the swarm launch.
func (r *Recorder) WriteStarted(ev Started) error {
	return r.write(r.StartedPath(), ev)
}

// WriteStopped records the swarm end.
func (r *Recorder) WriteStopped(ev Stopped) error {
	return r.write(r.StoppedPath(), ev)
}

// WriteCycle records one worker cycle.
func (r *Recorder) WriteCycle(ev Cycle) error {
	return r.write(r.CyclePath(ev.WorkerID, ev.Cycle), ev)
}

// WriteReview records one review round.
func (r *Recorder) WriteReview(ev Review) error {
	return r.write(r.ReviewPath(ev.WorkerID, ev.Cycle, ev.Round), ev)
}

// write marshals the event, writes {path}.tmp, and renames into place.
// An existing final path is never opened for write.
func (r *Recorder) write(path string, ev any) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrEventExists, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create event dir: %w", err)
	}

	data, err := yaml.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // G306: event files are read by humans and tools
		return fmt.Errorf("write event %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize event %s: %w", filepath.Base(path), err)
	}

	log.Debug(log.CatEvents, "Wrote event", "path", path)
	return nil
}
