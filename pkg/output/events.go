// Package output carries pipeline progress events from worker
// goroutines to a single consumer, and renders them on a terminal.
package output

import "sync"

// EventKind identifies a pipeline lifecycle point
type EventKind string

const (
	// EventCollectionStart fires exactly once per processed collection
	EventCollectionStart EventKind = "collection_start"
	// EventDeploymentStart fires when a deployment's file work begins
	EventDeploymentStart EventKind = "deployment_start"
	// EventFileProgress fires once per processed file
	EventFileProgress EventKind = "file_progress"
	// EventDeploymentComplete fires exactly once per attempted
	// deployment, including deployments that failed early
	EventDeploymentComplete EventKind = "deployment_complete"
)

// Event is one progress notification from the pipeline
type Event struct {
	Kind       EventKind
	Collection string
	Deployment string
	File       string
	// Count carries the item total for start events and the increment
	// for progress events
	Count int
}

// Func consumes pipeline events. Implementations are only ever called
// from a single goroutine; workers never invoke a Func directly.
type Func func(Event)

// Hub serializes events emitted by concurrent workers into one
// consumer goroutine, so consumers need no locking of their own.
type Hub struct {
	events   chan Event
	done     chan struct{}
	closeOne sync.Once
}

// NewHub starts a hub draining into the given consumer. A nil
// consumer discards all events.
func NewHub(consumer Func, buffer int) *Hub {
	if buffer < 1 {
		buffer = 64
	}
	h := &Hub{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		for e := range h.events {
			if consumer != nil {
				consumer(e)
			}
		}
	}()

	return h
}

// Publish queues an event for the consumer. Safe for concurrent use.
func (h *Hub) Publish(e Event) {
	h.events <- e
}

// Close stops accepting events and waits for the consumer to drain
// everything already published.
func (h *Hub) Close() {
	h.closeOne.Do(func() {
		close(h.events)
	})
	<-h.done
}

// Emit is a nil-safe helper for components holding an optional hub
func Emit(h *Hub, e Event) {
	if h != nil {
		h.Publish(e)
	}
}
