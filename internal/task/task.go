// Package task implements the filesystem-backed task queue shared by all
// workers. A task is a single YAML file; its state is encoded by the
// directory that contains it (pending/, current/, complete/), and every
// state transition is a single atomic rename. No other code is allowed
// to move task files between state directories.
package task

import (
	"strings"
	"time"
)

// State identifies which directory a task file lives in.
type State string

const (
	StatePending  State = "pending"
	StateCurrent  State = "current"
	StateComplete State = "complete"
)

// States lists all task states in lifecycle order.
var States = []State{StatePending, StateCurrent, StateComplete}

// Task is one unit of work, serialized as a YAML file.
type Task struct {
	ID          string   `yaml:"id"`
	Summary     string   `yaml:"summary"`
	Description string   `yaml:"description,omitempty"`
	Files       []string `yaml:"files,omitempty"`
	Acceptance  []string `yaml:"acceptance,omitempty"`
	Difficulty  string   `yaml:"difficulty,omitempty"`
	Priority    int      `yaml:"priority,omitempty"`

	// Completion annotation, appended by the framework after a merge.
	CompletedBy  string `yaml:"completed_by,omitempty"`
	CompletedAt  string `yaml:"completed_at,omitempty"`
	ReviewRounds int    `yaml:"review_rounds,omitempty"`
	MergedCommit string `yaml:"merged_commit,omitempty"`
}

// Annotation holds the completion metadata appended after a successful merge.
type Annotation struct {
	CompletedBy  string
	CompletedAt  time.Time
	ReviewRounds int
	MergedCommit string
}

// FileName derives the on-disk filename for a task id.
// Non-alphanumeric characters map to '-' so ids are safe as filenames.
func FileName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String() + ".yaml"
}
