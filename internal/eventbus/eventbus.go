// Package eventbus provides a small publish/subscribe event stream, used
// to broadcast session state changes and asynchronous errors to any
// interested listener within the daemon.
package eventbus

import (
	"sync"

	"github.com/cskr/pubsub/v2"
)

// EventID represents a unique event ID.
type EventID interface {
	String() string
	Value() uint
}

// Bus represents an event stream.
// A nil *Bus is valid, and discards all published events.
type Bus struct {
	ps *pubsub.PubSub[uint, any]

	closed bool
	mu     sync.RWMutex
}

// Subscriber represents a subscription to one or more events.
type Subscriber struct {
	C <-chan any

	unsub func()
}

// capacity is the per-subscriber buffer size.
const capacity = 16

// New returns a new event bus.
func New() *Bus {
	return &Bus{ps: pubsub.New[uint, any](capacity)}
}

// Publish publishes an event to the event stream.
// Publishing never blocks; slow subscribers miss events.
func (b *Bus) Publish(id EventID, data any) {
	if b == nil || id == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.ps.TryPub(data, id.Value())
}

// Subscribe subscribes to the provided events.
func (b *Bus) Subscribe(ids ...EventID) Subscriber {
	if b == nil {
		ch := make(chan any)
		close(ch)

		return Subscriber{C: ch}
	}

	topics := make([]uint, 0, len(ids))
	for _, id := range ids {
		topics = append(topics, id.Value())
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		ch := make(chan any)
		close(ch)

		return Subscriber{C: ch}
	}

	ch := b.ps.Sub(topics...)

	return Subscriber{
		C: ch,
		unsub: func() {
			go b.ps.Unsub(ch, topics...)
		},
	}
}

// Close shuts the event stream down, and closes all subscriber channels.
func (b *Bus) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.ps.Shutdown()
}

// Unsubscribe unsubscribes from the attached subscription.
func (s Subscriber) Unsubscribe() {
	if s.unsub != nil {
		s.unsub()
	}
}
