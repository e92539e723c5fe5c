// ABOUTME: TTL cache suppressing duplicate webhook deliveries by message id
// ABOUTME: Webex re-posts notifications on slow acks; only the first copy routes

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry holds the mark time and the list element for a cached id.
type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache tracks recently routed message ids. It is size-bounded and
// entries expire after a TTL; a doubly-linked list keeps insertion
// order for O(1) eviction of the oldest id.
type Cache struct {
	mu      sync.Mutex
	ids     map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A
// background goroutine sweeps expired entries once a minute.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		ids:     make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen atomically checks whether id was already routed within the TTL
// window and marks it when it was not. Returns true for duplicates.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.ids[id]; ok && time.Since(e.markedAt) < c.ttl {
		return true
	}
	c.mark(id)
	return false
}

// Len returns the number of tracked ids, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// mark records id as routed. Caller holds mu.
func (c *Cache) mark(id string) {
	now := time.Now()

	if e, ok := c.ids[id]; ok {
		e.markedAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.ids) >= c.maxSize {
		c.evictOldest()
	}

	c.ids[id] = &entry{markedAt: now, element: c.order.PushBack(id)}
}

// evictOldest drops the least recently marked id. Caller holds mu.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.ids, id)
}

// sweep periodically removes expired entries.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.ids {
		if now.Sub(e.markedAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.ids, id)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
