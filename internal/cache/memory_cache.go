package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache is the in-process cache. Values are stored JSON-encoded so both
// implementations behave identically. Namespace deletion is tracked with a
// per-namespace generation because ristretto has no prefix scan: bumping the
// generation orphans the old entries and TTL reclaims them.
type MemoryCache struct {
	cache *ristretto.Cache

	mu          sync.Mutex
	generations map[string]uint64
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() (*MemoryCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10 << 20, // 10 MiB of encoded values
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ristretto cache: %w", err)
	}
	return &MemoryCache{cache: cache, generations: map[string]uint64{}}, nil
}

func (c *MemoryCache) Get(ctx context.Context, namespace, key string, target any) (bool, error) {
	fullKey, err := c.generationKey(ctx, namespace, key)
	if err != nil {
		return false, err
	}

	value, found := c.cache.Get(fullKey)
	if !found {
		return false, nil
	}
	raw, ok := value.([]byte)
	if !ok {
		return false, fmt.Errorf("cache key %s holds %T, expected bytes", fullKey, value)
	}
	if err = json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("decoding cache key %s: %w", fullKey, err)
	}
	return true, nil
}

func (c *MemoryCache) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	fullKey, err := c.generationKey(ctx, namespace, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache key %s: %w", fullKey, err)
	}
	c.cache.SetWithTTL(fullKey, raw, int64(len(raw)), ttl)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, namespace, key string) error {
	fullKey, err := c.generationKey(ctx, namespace, key)
	if err != nil {
		return err
	}
	c.cache.Del(fullKey)
	return nil
}

func (c *MemoryCache) DeleteNamespace(ctx context.Context, namespace string) error {
	pattern, err := namespacePattern(ctx, namespace)
	if err != nil {
		return err
	}
	prefix := strings.TrimSuffix(pattern, "*")

	c.mu.Lock()
	c.generations[prefix]++
	c.mu.Unlock()
	return nil
}

// Wait flushes pending writes; only useful in tests.
func (c *MemoryCache) Wait() { c.cache.Wait() }

func (c *MemoryCache) generationKey(ctx context.Context, namespace, key string) (string, error) {
	fullKey, err := buildKey(ctx, namespace, key)
	if err != nil {
		return "", err
	}
	prefix := strings.TrimSuffix(fullKey, key)

	c.mu.Lock()
	generation := c.generations[prefix]
	c.mu.Unlock()
	return fmt.Sprintf("%s#%d:%s", prefix, generation, key), nil
}
