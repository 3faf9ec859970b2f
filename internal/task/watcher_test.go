package task

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherSignalsOnTransition(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "tasks"))
	require.NoError(t, store.EnsureDirs())

	w, err := NewWatcher(store, 50*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	require.NoError(t, err)

	require.NoError(t, store.Create(Task{ID: "task-1", Summary: "s"}))

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change signal after task creation")
	}

	// A claim is a rename between watched directories and signals again.
	store.Claim([]string{"task-1"})
	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change signal after claim")
	}
}

func TestIsRelevantEvent(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"task created", fsnotify.Event{Name: "/tasks/pending/task-1.yaml", Op: fsnotify.Create}, true},
		{"task renamed away", fsnotify.Event{Name: "/tasks/pending/task-1.yaml", Op: fsnotify.Rename}, true},
		{"tmp file write", fsnotify.Event{Name: "/tasks/pending/task-1.yaml.tmp", Op: fsnotify.Create}, false},
		{"chmod noise", fsnotify.Event{Name: "/tasks/pending/task-1.yaml", Op: fsnotify.Chmod}, false},
		{"unrelated file", fsnotify.Event{Name: "/tasks/pending/notes.txt", Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRelevantEvent(tt.event))
		})
	}
}
