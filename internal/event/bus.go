package event

import (
	"sync"
)

// Bus fans scan events out to subscribers. Publishing never blocks: a
// subscriber that falls behind its channel buffer misses events rather than
// stalling the indexing run.
type Bus struct {
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new subscriber channel.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subscribers {
		if (<-chan Event)(s) == ch {
			delete(b.subscribers, s)
			close(s)
			break
		}
	}
}

// Publish delivers event to every subscriber with room in its buffer.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
