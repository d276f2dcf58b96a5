package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bluele/gcache"
	"github.com/gofiber/fiber/v2"
	"github.com/passbi/railroute/internal/cache"
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
	"github.com/passbi/railroute/internal/solver"
)

// Timetables resolves and lists schedules
type Timetables interface {
	Get(ctx context.Context, name string) (*graph.Timetable, error)
	Names() []string
}

// SolutionCache is the shared cache across API instances
type SolutionCache interface {
	Get(ctx context.Context, key string) (*models.Solution, error)
	Set(ctx context.Context, key string, sol *models.Solution) error
	AcquireLock(ctx context.Context, key string) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	WaitForResult(ctx context.Context, key string, maxWait time.Duration) (*models.Solution, error)
	HealthCheck(ctx context.Context) error
	Stats() map[string]interface{}
}

// HealthChecker reports the state of a backing service
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options configures optional collaborators of a Handler
type Options struct {
	Shared         SolutionCache // nil disables the shared cache
	Database       HealthChecker // nil when schedules come from files
	LocalCacheSize int           // 0 disables the in-process cache
	LocalCacheTTL  time.Duration
	SearchTimeout  time.Duration
}

// Handler serves the connection and schedule endpoints
type Handler struct {
	timetables    Timetables
	solver        *solver.Solver
	local         gcache.Cache
	shared        SolutionCache
	database      HealthChecker
	searchTimeout time.Duration
	log           logger.Logger
}

// NewHandler creates a handler
func NewHandler(timetables Timetables, s *solver.Solver, log logger.Logger, opts Options) *Handler {
	h := &Handler{
		timetables:    timetables,
		solver:        s,
		shared:        opts.Shared,
		database:      opts.Database,
		searchTimeout: opts.SearchTimeout,
		log:           log,
	}
	if h.searchTimeout <= 0 {
		h.searchTimeout = 20 * time.Second
	}
	if opts.LocalCacheSize > 0 {
		builder := gcache.New(opts.LocalCacheSize).LRU()
		if opts.LocalCacheTTL > 0 {
			builder = builder.Expiration(opts.LocalCacheTTL)
		}
		h.local = builder.Build()
	}
	return h
}

// Register mounts all routes on app
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)

	v1 := app.Group("/v1")
	v1.Get("/connection", h.ConnectionSearch)
	v1.Get("/schedules", h.ScheduleList)
	v1.Get("/schedules/:name/trains/:id", h.TrainDetail)
	v1.Get("/schedules/:name/stations/:code/departures", h.StationDepartures)
}

// ConnectionResponse is the API response structure
type ConnectionResponse struct {
	Schedule     string `json:"schedule"`
	From         string `json:"from"`
	To           string `json:"to"`
	CostFunction string `json:"cost_function"`
	ChangeTime   int    `json:"change_time_minutes"`
	Connection   string `json:"connection"`
	Cost         string `json:"cost"`
	Feasible     bool   `json:"feasible"`
}

// ConnectionSearch handles GET /v1/connection
func (h *Handler) ConnectionSearch(c *fiber.Ctx) error {
	from := c.Query("from")
	to := c.Query("to")
	scheduleName := c.Query("schedule")
	if from == "" || to == "" || scheduleName == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "missing required parameters: from, to and schedule",
		})
	}

	cost, err := solver.ParseCostFunction(c.Query("cost"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid 'cost': " + err.Error(),
		})
	}

	change, err := strconv.Atoi(c.Query("change", "0"))
	if err != nil || change < 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid 'change': expected a non-negative number of minutes",
		})
	}

	problem := models.Problem{
		ProblemNo:   requestID(c),
		FromStation: from,
		ToStation:   to,
		Schedule:    scheduleName,
		ChangeTime:  change,
		Cost:        cost,
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.searchTimeout)
	defer cancel()

	sol, cacheHit, err := h.solve(ctx, problem)
	if err != nil {
		switch {
		case errors.Is(err, graph.ErrScheduleNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "schedule not found"})
		case errors.Is(err, context.DeadlineExceeded):
			return c.Status(504).JSON(fiber.Map{"error": "search timed out"})
		default:
			h.log.Error("connection search failed", "request_id", problem.ProblemNo, "error", err)
			return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
		}
	}
	c.Locals("cache_hit", cacheHit)

	return c.JSON(ConnectionResponse{
		Schedule:     scheduleName,
		From:         from,
		To:           to,
		CostFunction: cost.String(),
		ChangeTime:   change,
		Connection:   sol.Connection,
		Cost:         sol.Cost,
		Feasible:     sol.Feasible,
	})
}

// solve answers p from the local cache, the shared cache, or a fresh search
func (h *Handler) solve(ctx context.Context, p models.Problem) (*models.Solution, bool, error) {
	key := cache.ConnectionKey(p.Schedule, p.FromStation, p.ToStation, p.Cost, p.ChangeTime)

	if h.local != nil {
		if v, err := h.local.Get(key); err == nil {
			return v.(*models.Solution), true, nil
		}
	}

	acquired := false
	if h.shared != nil {
		if sol, err := h.shared.Get(ctx, key); err == nil && sol != nil {
			h.remember(key, sol)
			return sol, true, nil
		}

		var err error
		acquired, err = h.shared.AcquireLock(ctx, key)
		if err != nil {
			// degrade to computing without the lock
			h.log.Warn("failed to acquire lock", "key", key, "error", err)
		} else if !acquired {
			// another instance is computing this connection, wait for it
			if sol, err := h.shared.WaitForResult(ctx, key, 3*time.Second); err == nil && sol != nil {
				h.remember(key, sol)
				return sol, true, nil
			}
		}
	}

	defer func() {
		if acquired {
			if err := h.shared.ReleaseLock(context.Background(), key); err != nil {
				h.log.Warn("failed to release lock", "key", key, "error", err)
			}
		}
	}()

	sol, err := h.solver.Solve(ctx, p)
	if err != nil {
		return nil, false, err
	}
	sol.ProblemNo = ""

	h.remember(key, &sol)
	if h.shared != nil {
		if err := h.shared.Set(ctx, key, &sol); err != nil {
			h.log.Warn("failed to cache connection", "key", key, "error", err)
		}
	}

	return &sol, false, nil
}

func (h *Handler) remember(key string, sol *models.Solution) {
	if h.local == nil {
		return
	}
	if err := h.local.Set(key, sol); err != nil {
		h.log.Warn("failed to cache connection locally", "key", key, "error", err)
	}
}

// Health handles the /health endpoint
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx := c.UserContext()
	checks := fiber.Map{}
	healthy := true

	if h.database != nil {
		if err := h.database.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.shared != nil {
		if err := h.shared.HealthCheck(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	cacheStats := fiber.Map{}
	if h.local != nil {
		cacheStats["local"] = fiber.Map{
			"entries": h.local.Len(false),
			"hits":    h.local.HitCount(),
			"misses":  h.local.MissCount(),
		}
	}
	if h.shared != nil {
		cacheStats["redis"] = h.shared.Stats()
	}

	status := "healthy"
	httpStatus := 200
	if !healthy {
		status = "unhealthy"
		httpStatus = 503
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"cache":     cacheStats,
		"schedules": h.timetables.Names(),
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok {
		return id
	}
	return ""
}
