package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/positioner/internal/timeutil"
)

// Broadcaster fans updates out to any number of subscribers, each behind its
// own Coalescer so one slow subscriber never delays another or the publisher.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	subs     map[string]*Coalescer[T]
	interval time.Duration
	clock    timeutil.Clock
}

// NewBroadcaster returns a Broadcaster whose subscribers receive at most one
// update per interval.
func NewBroadcaster[T any](interval time.Duration, clock timeutil.Clock) *Broadcaster[T] {
	return &Broadcaster[T]{
		subs:     make(map[string]*Coalescer[T]),
		interval: interval,
		clock:    clock,
	}
}

// Subscribe registers fn and returns the subscription ID used to unsubscribe.
func (b *Broadcaster[T]) Subscribe(fn func(T)) string {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = NewCoalescer(b.interval, b.clock, fn)
	return id
}

// Unsubscribe removes a subscriber. Unknown IDs are ignored.
func (b *Broadcaster[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.subs[id]; ok {
		c.Close()
		delete(b.subs, id)
	}
}

// Publish offers v to every subscriber without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.subs {
		c.Offer(v)
	}
}

// Len returns the number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.subs {
		c.Close()
		delete(b.subs, id)
	}
}
