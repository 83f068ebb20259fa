package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes computed analytics results in Redis. It is purely an
// optimization: a miss or a Redis failure only costs a recomputation,
// never a wrong answer, because every cached value is keyed by the
// dataset fingerprint and the full query identity.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// SetJSON stores a JSON-serialized value under key with a TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON retrieves a JSON-serialized value into dest. The first return
// value reports whether the key was present.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}

// SetExport stores a generated CSV blob so repeated downloads of the
// same unchanged data skip the formatter.
func (c *Cache) SetExport(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	return c.client.Set(ctx, fmt.Sprintf("export:%s", key), blob, ttl).Err()
}

// GetExport retrieves a cached CSV blob. A nil slice means a miss.
func (c *Cache) GetExport(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("export:%s", key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get export from cache: %w", err)
	}
	return data, nil
}

// InvalidateDataset deletes every cached result for one dataset
// fingerprint, for use after the underlying snapshot is reloaded.
func (c *Cache) InvalidateDataset(ctx context.Context, datasetID string) error {
	pattern := fmt.Sprintf("histview:%s:*", datasetID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
