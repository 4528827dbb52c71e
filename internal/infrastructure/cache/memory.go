package cache

import (
	"context"
	"sync"

	"PollutionSync/internal/ports"
)

// MemoryCache keeps pollution pages in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]ports.CachedPage
}

var _ ports.ResponseCache = (*MemoryCache)(nil)

// NewMemoryCache builds an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]ports.CachedPage{}}
}

// Get returns the stored entry regardless of its age.
func (c *MemoryCache) Get(_ context.Context, key string) (ports.CachedPage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok, nil
}

// Set replaces the entry under key.
func (c *MemoryCache) Set(_ context.Context, key string, entry ports.CachedPage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

// Delete drops the entry under key, if any.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len reports the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
