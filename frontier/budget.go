package frontier

import "sync"

// Budget caps the number of pages enqueued in a run. The count only grows.
type Budget struct {
	mu   sync.Mutex
	max  int
	used int
}

// NewBudget returns a budget allowing max reservations. Negative values are
// treated as zero.
func NewBudget(max int) *Budget {
	if max < 0 {
		max = 0
	}
	return &Budget{max: max}
}

// TryReserve takes one slot if any remain.
func (b *Budget) TryReserve() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

// Exhausted reports whether no slot remains.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used >= b.max
}

// Used returns the number of reserved slots.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns the number of free slots.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max - b.used
}

// Max returns the configured cap.
func (b *Budget) Max() int {
	return b.max
}
