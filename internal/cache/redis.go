package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a concurrent computation did not finish in time
var ErrLockTimeout = errors.New("timeout waiting for lock")

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	// Enable TLS if configured (required for Upstash)
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// ConnectionKey generates a cache key for a connection query.
// change is the minimum change time in minutes.
func ConnectionKey(schedule, from, to string, cost models.CostFunction, change int) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d", schedule, from, to, cost.String(), change)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("connection:%x:%s", hash[:8], cost.Kind)
}

// LockKey generates a mutex lock key
func LockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// ConnectionCache stores solved connections in Redis and coordinates
// concurrent computations of the same query across API instances
type ConnectionCache struct {
	client   *redis.Client
	ttl      time.Duration
	mutexTTL time.Duration
}

// NewConnectionCache wraps an already connected client
func NewConnectionCache(client *redis.Client, cfg config.RedisConfig) *ConnectionCache {
	return &ConnectionCache{client: client, ttl: cfg.TTL, mutexTTL: cfg.MutexTTL}
}

// Get retrieves a cached solution; a miss returns nil without error
func (c *ConnectionCache) Get(ctx context.Context, key string) (*models.Solution, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sol models.Solution
	if err := json.Unmarshal(data, &sol); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached solution: %w", err)
	}

	return &sol, nil
}

// Set caches a solution for the configured TTL
func (c *ConnectionCache) Set(ctx context.Context, key string, sol *models.Solution) error {
	data, err := json.Marshal(sol)
	if err != nil {
		return fmt.Errorf("failed to marshal solution: %w", err)
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// AcquireLock attempts to acquire the computation lock for key.
// Returns true if lock was acquired, false if already locked.
func (c *ConnectionCache) AcquireLock(ctx context.Context, key string) (bool, error) {
	return c.client.SetNX(ctx, LockKey(key), "1", c.mutexTTL).Result()
}

// ReleaseLock releases the computation lock for key
func (c *ConnectionCache) ReleaseLock(ctx context.Context, key string) error {
	return c.client.Del(ctx, LockKey(key)).Err()
}

// WaitForResult waits for the lock holder to finish and then reads its result.
// A nil solution means the holder gave up without caching anything.
func (c *ConnectionCache) WaitForResult(ctx context.Context, key string, maxWait time.Duration) (*models.Solution, error) {
	lockKey := LockKey(key)
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		exists, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return c.Get(ctx, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, ErrLockTimeout
}

// HealthCheck performs a health check on the Redis connection
func (c *ConnectionCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics
func (c *ConnectionCache) Stats() map[string]interface{} {
	poolStats := c.client.PoolStats()

	return map[string]interface{}{
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}
}

// Close closes the underlying client
func (c *ConnectionCache) Close() error {
	return c.client.Close()
}
