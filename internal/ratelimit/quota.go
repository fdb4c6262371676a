package ratelimit

import (
	"context"
	"sync"
)

// MemoryCounter is a process-local QuotaCounter
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]map[string]int // key -> day -> calls
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]map[string]int)}
}

func (c *MemoryCounter) Take(_ context.Context, key, day string, limit int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	days, ok := c.counts[key]
	if !ok || days[day] == 0 {
		// only today's counter is ever consulted again
		days = map[string]int{day: days[day]}
		c.counts[key] = days
	}
	if days[day] >= limit {
		return false, nil
	}
	days[day]++
	return true, nil
}
