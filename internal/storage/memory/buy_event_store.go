package memory

import (
	"sync"

	"token-buy-monitor/internal/domain"
	"token-buy-monitor/internal/storage"
)

// DefaultBuyEventCapacity bounds the retained history when no capacity is
// given.
const DefaultBuyEventCapacity = 100

// BuyEventStore is an in-memory BuyEventStore holding the most recent
// events, newest first.
type BuyEventStore struct {
	mu       sync.RWMutex
	capacity int
	events   []domain.BuyEvent
	total    uint64
}

// NewBuyEventStore creates an in-memory buy event store retaining at most
// capacity events. Non-positive capacities fall back to
// DefaultBuyEventCapacity.
func NewBuyEventStore(capacity int) *BuyEventStore {
	if capacity <= 0 {
		capacity = DefaultBuyEventCapacity
	}
	return &BuyEventStore{
		capacity: capacity,
		events:   make([]domain.BuyEvent, 0, capacity),
	}
}

// Insert prepends the event, evicting the oldest when at capacity.
func (s *BuyEventStore) Insert(event domain.BuyEvent) error {
	if event.Signature == "" || event.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, domain.BuyEvent{})
	copy(s.events[1:], s.events)
	s.events[0] = event

	if len(s.events) > s.capacity {
		s.events = s.events[:s.capacity]
	}
	s.total++
	return nil
}

// Snapshot returns a copy of up to limit retained events, newest first.
func (s *BuyEventStore) Snapshot(limit int) []domain.BuyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]domain.BuyEvent, n)
	copy(out, s.events[:n])
	return out
}

// Count returns the total number of events inserted since start.
func (s *BuyEventStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Verify interface compliance at compile time.
var _ storage.BuyEventStore = (*BuyEventStore)(nil)
