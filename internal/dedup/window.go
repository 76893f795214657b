package dedup

import "sync"

// DefaultCapacity bounds the signature window when no capacity is given.
const DefaultCapacity = 1000

// Window is a bounded first-in-first-out set of transaction signatures.
// Admit reports whether a signature is new, recording it as seen; once the
// window is full the oldest signature is evicted, so suppression is scoped
// to the most recent N signatures rather than all time.
type Window struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

// NewWindow creates a window holding at most capacity signatures.
// Non-positive capacities fall back to DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Admit records the signature and reports whether it was previously unseen.
// A duplicate does not refresh the original entry's position.
func (w *Window) Admit(signature string) bool {
	if signature == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[signature]; ok {
		return false
	}

	if len(w.order) >= w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}

	w.order = append(w.order, signature)
	w.seen[signature] = struct{}{}
	return true
}

// Len returns the number of signatures currently tracked.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}
