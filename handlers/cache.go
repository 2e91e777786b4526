package handlers

import (
	"database/sql"
	"sync"
	"time"
)

// CacheEntry represents a cached value with expiration
type CacheEntry struct {
	Value     interface{}
	ExpiresAt time.Time
}

// MemoryCache is a simple in-memory cache with TTL support
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	ttl     time.Duration
}

// NewMemoryCache creates a new memory cache with the specified TTL
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
	}

	go cache.cleanup()

	return cache
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		return nil, false
	}

	return entry.Value, true
}

// Set stores a value in the cache with the default TTL
func (c *MemoryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = CacheEntry{
		Value:     value,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// cleanup removes expired entries periodically
func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, entry := range c.entries {
			if now.After(entry.ExpiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

// StorageUsageCache caches per-user storage totals so uploads don't
// re-sum the files table on every request.
type StorageUsageCache struct {
	cache *MemoryCache
}

// StorageUsage represents a user's storage accounting
type StorageUsage struct {
	Used     int64 `json:"used"`
	Quota    int64 `json:"quota"`
	CachedAt int64 `json:"cachedAt"`
}

var (
	storageCache     *StorageUsageCache
	storageCacheOnce sync.Once
)

// GetStorageUsageCache returns the global storage usage cache
func GetStorageUsageCache() *StorageUsageCache {
	storageCacheOnce.Do(func() {
		storageCache = &StorageUsageCache{
			cache: NewMemoryCache(30 * time.Second),
		}
	})
	return storageCache
}

// Lookup returns cached usage for a user
func (s *StorageUsageCache) Lookup(userID string) (*StorageUsage, bool) {
	if value, ok := s.cache.Get("usage:" + userID); ok {
		if usage, ok := value.(*StorageUsage); ok {
			return usage, true
		}
	}
	return nil, false
}

// Store caches usage for a user
func (s *StorageUsageCache) Store(userID string, usage *StorageUsage) {
	usage.CachedAt = time.Now().Unix()
	s.cache.Set("usage:"+userID, usage)
}

// Invalidate drops cached usage after uploads and deletes
func (s *StorageUsageCache) Invalidate(userID string) {
	s.cache.Delete("usage:" + userID)
}

// storageUsage returns the user's current usage and quota, consulting
// the cache first.
func (h *Handler) storageUsage(userID string) (*StorageUsage, error) {
	cache := GetStorageUsageCache()
	if usage, ok := cache.Lookup(userID); ok {
		return usage, nil
	}

	usage := &StorageUsage{}
	err := h.db.QueryRow(`
		SELECT COALESCE((SELECT SUM(size) FROM files WHERE owner_id = $1), 0),
		       (SELECT storage_quota FROM users WHERE id = $1)
	`, userID).Scan(&usage.Used, &usage.Quota)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	cache.Store(userID, usage)
	return usage, nil
}
