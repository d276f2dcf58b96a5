package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (m *memoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	return m.counts[key], nil
}

func rateLimitedApp(counter Counter, cfg config.RateLimitConfig) *fiber.App {
	app := fiber.New()
	app.Use(RateLimitMiddleware(counter, cfg, logger.Nop()))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestRateLimitMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RateLimitConfig
		requests int
		statuses []int
	}{
		{
			name:     "Under the minute limit",
			cfg:      config.RateLimitConfig{RequestsPerMinute: 3},
			requests: 3,
			statuses: []int{200, 200, 200},
		},
		{
			name:     "Over the minute limit",
			cfg:      config.RateLimitConfig{RequestsPerMinute: 2},
			requests: 3,
			statuses: []int{200, 200, 429},
		},
		{
			name:     "Over the daily quota",
			cfg:      config.RateLimitConfig{RequestsPerDay: 1},
			requests: 2,
			statuses: []int{200, 429},
		},
		{
			name:     "Limits disabled",
			cfg:      config.RateLimitConfig{},
			requests: 5,
			statuses: []int{200, 200, 200, 200, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := rateLimitedApp(&memoryCounter{}, tt.cfg)
			for i := 0; i < tt.requests; i++ {
				resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
				require.NoError(t, err)
				assert.Equal(t, tt.statuses[i], resp.StatusCode, "request %d", i+1)
				if resp.StatusCode == 429 {
					assert.NotEmpty(t, resp.Header.Get("Retry-After"))
				}
			}
		})
	}
}

func TestRateLimitRemainingHeader(t *testing.T) {
	app := rateLimitedApp(&memoryCounter{}, config.RateLimitConfig{RequestsPerMinute: 5})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit-Minute"))
	assert.Equal(t, "4", resp.Header.Get("X-RateLimit-Remaining-Minute"))
}

func TestRateLimitRemainingNeverNegative(t *testing.T) {
	counter := &memoryCounter{}
	app := rateLimitedApp(counter, config.RateLimitConfig{RequestsPerMinute: 1, RequestsPerDay: 1})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining-Minute"), "request %d", i+1)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	app := rateLimitedApp(&memoryCounter{err: errors.New("connection refused")}, config.RateLimitConfig{RequestsPerMinute: 1})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}
}

func TestRequestLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestLogMiddleware(logger.NewWithWriter(&buf, "info")))
	app.Get("/cached", func(c *fiber.Ctx) error {
		c.Locals("cache_hit", true)
		return c.SendString("ok")
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "nothing here")
	})

	t.Run("Generates request ID", func(t *testing.T) {
		buf.Reset()
		resp, err := app.Test(httptest.NewRequest("GET", "/cached", nil))
		require.NoError(t, err)

		assert.Equal(t, 200, resp.StatusCode)
		assert.Len(t, resp.Header.Get(RequestIDHeader), 36)
		assert.Equal(t, "true", resp.Header.Get("X-Cache-Hit"))
		assert.Contains(t, buf.String(), `"message":"request served"`)
		assert.Contains(t, buf.String(), `"path":"/cached"`)
	})

	t.Run("Keeps caller request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/cached", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
	})

	t.Run("Logs handler errors with their status", func(t *testing.T) {
		buf.Reset()
		resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
		require.NoError(t, err)

		assert.Equal(t, 404, resp.StatusCode)
		assert.Equal(t, "false", resp.Header.Get("X-Cache-Hit"))
		assert.Contains(t, buf.String(), `"status":404`)
		assert.Contains(t, buf.String(), `"level":"warn"`)
	})
}
