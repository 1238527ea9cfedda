package output

import (
	"sync"
	"testing"
)

func TestHubSerializesConcurrentPublishers(t *testing.T) {
	var received []Event
	hub := NewHub(func(e Event) {
		// No locking here: the hub guarantees single-consumer delivery
		received = append(received, e)
	}, 8)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				hub.Publish(Event{Kind: EventFileProgress, Count: 1})
			}
		}()
	}
	wg.Wait()
	hub.Close()

	if len(received) != workers*perWorker {
		t.Errorf("received %d events, want %d", len(received), workers*perWorker)
	}
}

func TestHubCloseIsIdempotent(t *testing.T) {
	hub := NewHub(nil, 1)
	hub.Publish(Event{Kind: EventCollectionStart, Collection: "R0001"})
	hub.Close()
	hub.Close()
}

func TestEmitNilHub(t *testing.T) {
	// Components hold optional hubs; a nil hub must be a no-op
	Emit(nil, Event{Kind: EventFileProgress})
}
