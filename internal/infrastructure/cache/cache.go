package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"donations/internal/domain"
)

const verifyKeyPrefix = "verify:"

// VerificationCache remembers successful verifications for the idempotency window.
type VerificationCache interface {
	Get(ctx context.Context, reference string) (*domain.VerifiedTransaction, bool, error)
	Set(ctx context.Context, reference string, tx *domain.VerifiedTransaction, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects using a redis:// URL and pings the server.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, reference string) (*domain.VerifiedTransaction, bool, error) {
	raw, err := c.client.Get(ctx, verifyKey(reference)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read verification cache: %w", err)
	}
	var tx domain.VerifiedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, false, fmt.Errorf("corrupt verification cache entry for %s: %w", reference, err)
	}
	return &tx, true, nil
}

func (c *RedisCache) Set(ctx context.Context, reference string, tx *domain.VerifiedTransaction, ttl time.Duration) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to encode verification cache entry: %w", err)
	}
	if err := c.client.Set(ctx, verifyKey(reference), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write verification cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func verifyKey(reference string) string {
	return verifyKeyPrefix + reference
}

type memoryEntry struct {
	tx        domain.VerifiedTransaction
	expiresAt time.Time
}

// MemoryCache is the process-local fallback when no Redis is configured.
// The database remains the durable source of truth behind it.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, reference string) (*domain.VerifiedTransaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[reference]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, reference)
		return nil, false, nil
	}
	tx := entry.tx
	return &tx, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, reference string, tx *domain.VerifiedTransaction, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[reference] = memoryEntry{tx: *tx, expiresAt: now.Add(ttl)}

	if len(c.entries) > 1000 {
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	return nil
}
