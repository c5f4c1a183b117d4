package events

import (
	"sync"
	"sync/atomic"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 64

// Bus fans committed records out to in-process subscribers.
// Delivery is fire-and-forget: a subscriber whose buffer is full misses the
// record and can catch up from the log with Since.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan *Record
	next    int
	buffer  int
	dropped atomic.Uint64
}

// NewBus creates a bus with the given per-subscriber buffer (<= 0 uses the default).
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Bus{
		subs:   make(map[int]chan *Record),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel.
func (b *Bus) Subscribe() (<-chan *Record, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++

	ch := make(chan *Record, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

// Publish delivers rec to every subscriber without blocking.
func (b *Bus) Publish(rec *Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- rec:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
