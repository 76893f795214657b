package storage

import "token-buy-monitor/internal/domain"

// BuyEventStore keeps a bounded history of detected buy events.
type BuyEventStore interface {
	// Insert records a buy event. When the store is at capacity the oldest
	// event is dropped to make room.
	Insert(event domain.BuyEvent) error

	// Snapshot returns up to limit events, newest first. A non-positive
	// limit returns all retained events.
	Snapshot(limit int) []domain.BuyEvent

	// Count returns the total number of events inserted since start,
	// including events since evicted.
	Count() uint64
}
