package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry is a single cached value with its expiry
type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element // position in the LRU list
}

func (e *memoryEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore is an in-process LRU cache with per-entry TTL.
// Thread-safe implementation using sync.Mutex
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lruList *list.List // front is most recently used
	maxSize int
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// Stats represents cache statistics
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// NewMemoryStore creates a MemoryStore holding at most maxSize entries.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize < 1 {
		maxSize = 1
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns a copy of the cached value. Expired entries are removed.
func (c *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(c.now()) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return nil, false, nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores a copy of value. A non-positive ttl stores nothing.
func (c *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := append([]byte(nil), value...)
	expiresAt := c.now().Add(ttl)

	if entry, exists := c.entries[key]; exists {
		entry.value = stored
		entry.expiresAt = expiresAt
		c.lruList.MoveToFront(entry.element)
		return nil
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &memoryEntry{key: key, value: stored, expiresAt: expiresAt}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
	return nil
}

// Ping always succeeds.
func (c *MemoryStore) Ping(context.Context) error { return nil }

// Close drops every entry.
func (c *MemoryStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*memoryEntry)
	c.lruList.Init()
	return nil
}

// Stats returns cache statistics
func (c *MemoryStore) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// removeEntry must be called with the lock held
func (c *MemoryStore) removeEntry(key string) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictLRU must be called with the lock held
func (c *MemoryStore) evictLRU() {
	if back := c.lruList.Back(); back != nil {
		c.removeEntry(back.Value.(string))
	}
}

// CleanupExpired removes all expired entries and returns how many were dropped.
func (c *MemoryStore) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			c.removeEntry(key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker removes expired entries every interval in a background
// goroutine until stopCh closes. It returns immediately.
func (c *MemoryStore) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CleanupExpired()
			case <-stopCh:
				return
			}
		}
	}()
}
