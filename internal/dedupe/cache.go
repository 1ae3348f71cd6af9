// ABOUTME: Thread-safe TTL cache of recently seen keys with repeat counting.
// ABOUTME: Used by session supervisors to collapse repeated connection errors in logs.

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// cleanupInterval is how often expired keys are swept.
const cleanupInterval = time.Minute

type cacheEntry struct {
	seenAt  time.Time
	repeats int
	element *list.Element
}

// Cache remembers keys for ttl. At most maxSize keys are kept; the oldest is
// evicted first. Insertion order lives in a linked list for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	clock   clock.WithTicker
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweeper on clk.
// A nil clk uses the real clock.
func New(ttl time.Duration, maxSize int, clk clock.WithTicker) *Cache {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clk,
		done:    make(chan struct{}),
	}
	ticker := clk.NewTicker(cleanupInterval)
	go c.cleanup(ticker)
	return c
}

// Check reports whether key was seen within the window.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	return ok && c.fresh(entry)
}

// CheckAndMark reports whether key was already seen within the window and,
// if it was not, starts a new window for it. A repeat inside the window is
// counted but does not extend the window.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && c.fresh(entry) {
		entry.repeats++
		return true
	}
	c.markLocked(key)
	return false
}

// Repeats returns how many times key was suppressed in its current window.
func (c *Cache) Repeats(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && c.fresh(entry) {
		return entry.repeats
	}
	return 0
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) fresh(entry *cacheEntry) bool {
	return c.clock.Since(entry.seenAt) < c.ttl
}

// markLocked starts a fresh window for key. Must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := c.clock.Now()

	if entry, exists := c.seen[key]; exists {
		entry.seenAt = now
		entry.repeats = 0
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	c.seen[key] = &cacheEntry{
		seenAt:  now,
		element: c.order.PushBack(key),
	}
}

// evictOldest drops the front of the order list. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) cleanup(ticker clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired key.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.seen {
		if !c.fresh(entry) {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
