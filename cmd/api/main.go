package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/passbi/railroute/internal/api"
	"github.com/passbi/railroute/internal/cache"
	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/db"
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/middleware"
	"github.com/passbi/railroute/internal/routing"
	"github.com/passbi/railroute/internal/solver"
)

type dbChecker struct {
	pool *pgxpool.Pool
}

func (d dbChecker) HealthCheck(ctx context.Context) error {
	return db.HealthCheck(ctx, d.pool)
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Logger())
	if envErr != nil {
		log.Debug("no .env file loaded", "error", envErr)
	}
	log.Info("starting railroute API server", "port", cfg.Server.Port, "schedule_source", cfg.Schedules.Source)

	ctx := context.Background()
	opts := api.Options{
		LocalCacheSize: cfg.Server.LocalCacheSize,
		LocalCacheTTL:  cfg.Redis.TTL,
		SearchTimeout:  cfg.Server.SearchTimeout,
	}

	var loader graph.Loader = graph.NewFileLoader(cfg.Schedules.Dir, log)
	if cfg.Schedules.Source == "db" {
		pool, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to database", "error", err)
		}
		defer pool.Close()
		log.Info("database connection established", "host", cfg.Database.Host)

		loader = graph.NewDBLoader(pool)
		opts.Database = dbChecker{pool: pool}
	}

	var counter middleware.Counter
	if cfg.Redis.Enabled {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("failed to connect to Redis", "error", err)
		}
		shared := cache.NewConnectionCache(client, cfg.Redis)
		defer shared.Close()
		log.Info("redis connection established", "addr", cfg.Redis.Addr())

		opts.Shared = shared
		counter = middleware.NewRedisCounter(client)
	}

	store := graph.NewStore(loader, log)
	for _, name := range cfg.Schedules.Preload {
		if _, err := store.Get(ctx, name); err != nil {
			log.Fatal("failed to preload schedule", "schedule", name, "error", err)
		}
	}

	s := solver.NewSolver(store, routing.NewRouter(log), log)
	handler := api.NewHandler(store, s, log, opts)

	app := fiber.New(fiber.Config{
		AppName:      "railroute API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogMiddleware(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, " + middleware.RequestIDHeader,
	}))
	if cfg.RateLimit.Enabled {
		if counter == nil {
			log.Warn("rate limiting requires redis, skipping")
		} else {
			app.Use(middleware.RateLimitMiddleware(counter, cfg.RateLimit, log))
		}
	}

	handler.Register(app)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down gracefully")
		if err := app.Shutdown(); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("server listening", "addr", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatal("failed to start server", "error", err)
	}
}

// errorHandler handles errors returned from handlers
func errorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
		if code >= 500 {
			log.Error("unhandled error", "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
