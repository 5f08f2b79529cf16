package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryCache is a size-bounded TTL cache that evicts the least recently
// used entry when full.
type MemoryCache[V any] struct {
	items     map[string]*CacheItem[V]
	mutex     sync.RWMutex
	maxSize   int
	ttl       time.Duration
	logger    *zap.Logger
	cleanup   *time.Ticker
	stopCh    chan struct{}
	closeOnce sync.Once

	hits      int64
	misses    int64
	evictions int64
}

type CacheItem[V any] struct {
	Value       V
	ExpiresAt   time.Time
	LastUsed    time.Time
	AccessCount int64
}

func NewMemoryCache[V any](maxSize int, ttl time.Duration, logger *zap.Logger) *MemoryCache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}

	cache := &MemoryCache[V]{
		items:   make(map[string]*CacheItem[V]),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	cache.cleanup = time.NewTicker(1 * time.Minute)
	go cache.cleanupExpired()

	return cache
}

// Set stores value with the cache's default TTL.
func (c *MemoryCache[V]) Set(ctx context.Context, key string, value V) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *MemoryCache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V

	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, exists := c.items[key]
	if !exists {
		c.misses++
		return zero, ErrCacheMiss
	}

	now := time.Now()
	if now.After(item.ExpiresAt) {
		delete(c.items, key)
		c.misses++
		return zero, ErrCacheMiss
	}

	item.LastUsed = now
	item.AccessCount++
	c.hits++

	return item.Value, nil
}

func (c *MemoryCache[V]) SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictLRU()
	}

	now := time.Now()
	c.items[key] = &CacheItem[V]{
		Value:       value,
		ExpiresAt:   now.Add(ttl),
		LastUsed:    now,
		AccessCount: 1,
	}

	return nil
}

func (c *MemoryCache[V]) GetStats(ctx context.Context) (*CacheStats, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := time.Now()
	expiredCount := 0
	for _, item := range c.items {
		if now.After(item.ExpiresAt) {
			expiredCount++
		}
	}

	return &CacheStats{
		Items:     len(c.items),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Info: fmt.Sprintf("items=%d,expired=%d,max_size=%d,ttl=%v",
			len(c.items), expiredCount, c.maxSize, c.ttl),
	}, nil
}

func (c *MemoryCache[V]) Close() error {
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		close(c.stopCh)
	})
	return nil
}

func (c *MemoryCache[V]) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range c.items {
		if oldestKey == "" || item.LastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.LastUsed
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.evictions++
	}
}

func (c *MemoryCache[V]) cleanupExpired() {
	for {
		select {
		case <-c.cleanup.C:
			c.mutex.Lock()
			now := time.Now()
			removed := 0
			for key, item := range c.items {
				if now.After(item.ExpiresAt) {
					delete(c.items, key)
					removed++
				}
			}
			c.mutex.Unlock()

			if removed > 0 {
				c.logger.Debug("Expired cache entries removed", zap.Int("count", removed))
			}
		case <-c.stopCh:
			return
		}
	}
}
