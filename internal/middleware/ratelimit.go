package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Counter increments a windowed counter and returns its new value
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps rate limit counters in Redis
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter creates a counter backed by rdb
func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Incr increments key and sets its expiry in one round trip
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimitMiddleware limits requests per client IP per minute and per day.
// Counter failures are logged and the request is let through.
func RateLimitMiddleware(counter Counter, cfg config.RateLimitConfig, log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		now := time.Now()
		client := c.IP()

		if cfg.RequestsPerMinute > 0 {
			key := fmt.Sprintf("rl:ip:%s:minute:%d", client, now.Unix()/60)
			count, err := counter.Incr(ctx, key, 2*time.Minute)
			if err != nil {
				log.Warn("rate limit counter unavailable", "error", err)
				return c.Next()
			}

			c.Set("X-RateLimit-Limit-Minute", strconv.Itoa(cfg.RequestsPerMinute))
			c.Set("X-RateLimit-Remaining-Minute", strconv.FormatInt(max(0, int64(cfg.RequestsPerMinute)-count), 10))
			if count > int64(cfg.RequestsPerMinute) {
				retryAfter := 60 - now.Unix()%60
				c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":       "rate_limit_exceeded",
					"message":     "Too many requests per minute",
					"limit_type":  "per_minute",
					"limit":       cfg.RequestsPerMinute,
					"retry_after": retryAfter,
				})
			}
		}

		if cfg.RequestsPerDay > 0 {
			key := fmt.Sprintf("rl:ip:%s:day:%s", client, now.Format("2006-01-02"))
			// 25 hours to handle timezone differences
			count, err := counter.Incr(ctx, key, 25*time.Hour)
			if err != nil {
				log.Warn("rate limit counter unavailable", "error", err)
				return c.Next()
			}

			c.Set("X-RateLimit-Limit-Day", strconv.Itoa(cfg.RequestsPerDay))
			c.Set("X-RateLimit-Remaining-Day", strconv.FormatInt(max(0, int64(cfg.RequestsPerDay)-count), 10))
			if count > int64(cfg.RequestsPerDay) {
				tomorrow := now.AddDate(0, 0, 1)
				midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
				retryAfter := int64(midnight.Sub(now).Seconds())
				c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":       "daily_quota_exceeded",
					"message":     "Daily quota exceeded",
					"limit_type":  "per_day",
					"limit":       cfg.RequestsPerDay,
					"used":        count,
					"retry_after": retryAfter,
					"reset_at":    midnight.Format(time.RFC3339),
				})
			}
		}

		return c.Next()
	}
}
