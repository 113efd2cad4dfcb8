package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans events out to in-process subscribers. Publish never blocks the
// producer: a subscriber whose buffer is full loses the message, and the
// bus counts every loss so slow consumers are visible to operators.
type Bus struct {
	mu     sync.RWMutex
	topics map[Event][]chan any

	dropped atomic.Int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[Event][]chan any)}
}

// Subscribe registers a listener on a topic. The returned function removes
// the listener and closes its channel; it is safe to call once.
func (b *Bus) Subscribe(topic Event, buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan any, buffer)

	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], ch)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		listeners := b.topics[topic]
		for i, c := range listeners {
			if c == ch {
				b.topics[topic] = append(listeners[:i], listeners[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, unsub
}

// Publish delivers payload to every listener with buffer room. Listeners
// that have fallen behind are skipped, not waited on.
func (b *Bus) Publish(topic Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many messages were discarded because a subscriber
// buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
