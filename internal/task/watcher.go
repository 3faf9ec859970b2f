package task

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the task-store state directories and signals when the
// queue changes shape. The coordinator uses it to log queue depth as
// workers claim, complete, and recycle tasks.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	store     *Store
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// NewWatcher creates a watcher over the store's state directories.
// The directories must already exist (call Store.EnsureDirs first).
func NewWatcher(store *Store, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = time.Second
	}

	return &Watcher{
		fsWatcher: fsw,
		store:     store,
		debounce:  debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Returns a channel that receives a signal each
// time the queue settles after a burst of transitions.
func (w *Watcher) Start() (<-chan struct{}, error) {
	for _, state := range States {
		if err := w.fsWatcher.Add(w.store.dir(state)); err != nil {
			return nil, fmt.Errorf("watching %s: %w", state, err)
		}
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
				pending = true
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send - drop if channel full
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			// Keep watching; callers wrap the watcher if they need
			// error visibility.

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent reports whether the event is a task file transition.
// Renames dominate: every claim/complete/recycle is a rename, which
// fsnotify reports as Rename in the source dir and Create in the target.
func isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	return filepath.Ext(event.Name) == ".yaml"
}
