package errorcounter

import (
	"strings"
	"sync"
)

// New creates and returns a Counter with an initialised internal store ready for use.
func New() *Counter {
	return &Counter{
		store: make(map[string]int),
	}
}

// Counter tracks consecutive failures per key, e.g. per batch job and entity.
type Counter struct {
	mu    sync.Mutex
	store map[string]int
}

func key(labels []string) string {
	return strings.Join(labels, "-")
}

// Add records a failure and returns the number of failures recorded for the labels since the last Clear.
func (c *Counter) Add(labels ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(labels)
	c.store[k] += 1
	return c.store[k]
}

func (c *Counter) Count(labels ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store[key(labels)]
}

// Clear forgets the failures for the labels, usually after a success.
func (c *Counter) Clear(labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.store, key(labels))
}

func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.store)
}
