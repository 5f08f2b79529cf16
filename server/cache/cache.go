package cache

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores values keyed by string with a per-entry TTL.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, error)

	SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) error

	GetStats(ctx context.Context) (*CacheStats, error)

	Close() error
}

type CacheStats struct {
	Items     int    `json:"items"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
	Info      string `json:"info"`
}

func GenerateCacheKey(components ...string) string {
	h := md5.New()
	for _, component := range components {
		h.Write([]byte(component))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
