package events

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ReadStarted loads the started event from a run directory.
func ReadStarted(runDir string) (Started, error) {
	var ev Started
	err := readYAML(filepath.Join(runDir, "started.yaml"), &ev)
	return ev, err
}

// ReadStopped loads the stopped event from a run directory.
// A missing file means the swarm is still running (or died uncleanly).
func ReadStopped(runDir string) (Stopped, bool, error) {
	var ev Stopped
	err := readYAML(filepath.Join(runDir, "stopped.yaml"), &ev)
	if os.IsNotExist(err) {
		return Stopped{}, false, nil
	}
	if err != nil {
		return Stopped{}, false, err
	}
	return ev, true, nil
}

// ListCycles loads all cycle events in a run directory, ordered by filename.
func ListCycles(runDir string) ([]Cycle, error) {
	paths, err := listYAML(filepath.Join(runDir, "cycles"))
	if err != nil {
		return nil, err
	}
	cycles := make([]Cycle, 0, len(paths))
	for _, p := range paths {
		var ev Cycle
		if err := readYAML(p, &ev); err != nil {
			return nil, err
		}
		cycles = append(cycles, ev)
	}
	return cycles, nil
}

// ListReviews loads all review events in a run directory, ordered by filename.
func ListReviews(runDir string) ([]Review, error) {
	paths, err := listYAML(filepath.Join(runDir, "reviews"))
	if err != nil {
		return nil, err
	}
	reviews := make([]Review, 0, len(paths))
	for _, p := range paths {
		var ev Review
		if err := readYAML(p, &ev); err != nil {
			return nil, err
		}
		reviews = append(reviews, ev)
	}
	return reviews, nil
}

// Alive reports whether the swarm recorded in runDir is still running.
// The liveness triplet: started exists, stopped absent, and the OS reports
// the recorded PID alive. No other file indicates liveness.
func Alive(runDir string) (bool, error) {
	started, err := ReadStarted(runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	if _, stopped, err := ReadStopped(runDir); err != nil {
		return false, err
	} else if stopped {
		return false, nil
	}

	return pidAlive(started.PID), nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: paths derive from the run directory
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func listYAML(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
