package broadcast

import (
	"log"
	"sync"

	"token-buy-monitor/internal/domain"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 16

// Broadcaster fans buy events out to registered subscribers without ever
// blocking the publisher. A subscriber that cannot keep up has its channel
// closed and is dropped.
type Broadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	bufSize int
	subs    map[uint64]chan domain.BuyEvent
	logger  *log.Logger
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer
// size. Non-positive sizes fall back to DefaultBufferSize.
func NewBroadcaster(bufSize int, logger *log.Logger) *Broadcaster {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		bufSize: bufSize,
		subs:    make(map[uint64]chan domain.BuyEvent),
		logger:  logger,
	}
}

// Register adds a subscriber and returns its ID and receive channel. The
// channel is closed when the subscriber is deregistered or dropped.
func (b *Broadcaster) Register() (uint64, <-chan domain.BuyEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan domain.BuyEvent, b.bufSize)
	b.subs[id] = ch
	return id, ch
}

// Deregister removes a subscriber and closes its channel. Unknown IDs are
// ignored, so callers may deregister unconditionally on teardown.
func (b *Broadcaster) Deregister(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop(id)
}

// Publish delivers the event to every subscriber. Subscribers with a full
// buffer are dropped rather than slowing down delivery to the rest.
func (b *Broadcaster) Publish(event domain.BuyEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Printf("[broadcast] dropping slow subscriber %d", id)
			b.drop(id)
		}
	}
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops all subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.subs {
		b.drop(id)
	}
}

// drop removes and closes one subscriber. Caller holds the lock.
func (b *Broadcaster) drop(id uint64) {
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
