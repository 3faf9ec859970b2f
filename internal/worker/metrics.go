package worker

import "github.com/zjrosen/oompa/internal/events"

// Metrics accumulates per-worker counters across cycles.
type Metrics struct {
	Merges            int
	Rejections        int
	Errors            int
	Recycled          int
	ReviewRoundsTotal int
	Claims            int
}

// Update is published on the swarm broker after every cycle.
type Update struct {
	WorkerID string
	Cycle    int
	Outcome  events.Outcome
	Metrics  Metrics
}
