// Package token allocates the human-facing token numbers printed on sale
// receipts. Tokens look like TKN<millis> but are driven by a strictly
// monotonic counter, so concurrent allocations within the same millisecond
// still produce distinct values.
package token

import (
	"fmt"
	"sync"
	"time"
)

const DefaultPrefix = "TKN"

type Allocator struct {
	mu     sync.Mutex
	prefix string
	last   int64
}

func NewAllocator(prefix string) *Allocator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Allocator{prefix: prefix}
}

// Next returns the next token number. The counter tracks wall-clock
// milliseconds but never repeats or goes backwards.
func (a *Allocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= a.last {
		now = a.last + 1
	}
	a.last = now
	return fmt.Sprintf("%s%d", a.prefix, now)
}
