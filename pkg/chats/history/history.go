// Package history keeps a bounded record of recent lines seen in a channel.
package history

import "sync"

// Line is one message observed in a chat source.
type Line struct {
	Sender string
	Text   string
}

// Capped is a FIFO buffer holding at most Max entries; pushing past the limit
// drops the oldest entries first. A Max of zero or less stores nothing.
// Capped is safe for concurrent use.
type Capped[T any] struct {
	mu    sync.Mutex
	max   int
	items []T
}

// NewCapped creates a Capped buffer with the given limit.
func NewCapped[T any](maxLen int) *Capped[T] {
	return &Capped[T]{max: maxLen}
}

// Push appends items, evicting the oldest when the limit is exceeded.
func (c *Capped[T]) Push(items ...T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.max <= 0 {
		return
	}
	c.items = append(c.items, items...)
	if over := len(c.items) - c.max; over > 0 {
		c.items = append(c.items[:0:0], c.items[over:]...)
	}
}

// Items returns a snapshot copy, oldest first.
func (c *Capped[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of stored entries.
func (c *Capped[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Max returns the configured limit.
func (c *Capped[T]) Max() int {
	return c.max
}
