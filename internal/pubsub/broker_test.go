package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event[T]{}
	}
}

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()
	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)
	require.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(CycleEvent, 42)

	for _, ch := range []<-chan Event[int]{ch1, ch2} {
		ev := recv(t, ch)
		assert.Equal(t, 42, ev.Payload)
		assert.Equal(t, CycleEvent, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBrokerContextCancellationDetaches(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	broker.Publish(LogEvent, 1) // fills the buffer
	broker.Publish(LogEvent, 2)
	broker.Publish(LogEvent, 3)

	assert.Equal(t, int64(2), broker.Dropped())
	ev := recv(t, ch)
	assert.Equal(t, 1, ev.Payload)
}

func TestBrokerClose(t *testing.T) {
	broker := NewBroker[string]()

	ctx := context.Background()
	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	broker.Close()
	broker.Close() // idempotent

	for _, ch := range []<-chan Event[string]{ch1, ch2} {
		_, ok := <-ch
		assert.False(t, ok)
	}
	assert.Equal(t, 0, broker.SubscriberCount())

	// After close: subscribing yields a closed channel, publishing is a no-op.
	ch3 := broker.Subscribe(ctx)
	_, ok := <-ch3
	assert.False(t, ok)
	broker.Publish(LogEvent, "ignored")
}
