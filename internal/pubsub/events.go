// Package pubsub is the in-process event bus between the worker engines
// and whatever observes them (the coordinator's log subscriber today, a
// status UI tomorrow). Delivery is best effort; durable history lives in
// the events package, not here.
package pubsub

import (
	"context"
	"time"
)

// EventType labels what a published payload describes.
type EventType string

const (
	// CycleEvent is published when a worker finishes a cycle.
	CycleEvent EventType = "cycle"
	// ClaimEvent is published when a worker claims tasks.
	ClaimEvent EventType = "claim"
	// MergeEvent is published when a worker merges work to main.
	MergeEvent EventType = "merge"
	// LogEvent is published for each log entry written by the logger.
	LogEvent EventType = "log"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
