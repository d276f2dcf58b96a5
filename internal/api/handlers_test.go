package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
	"github.com/passbi/railroute/internal/routing"
	"github.com/passbi/railroute/internal/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hm(h, m int) int {
	return h*3600 + m*60
}

type mapLoader map[string]map[string]*models.Train

func (l mapLoader) Load(ctx context.Context, name string) (map[string]*models.Train, error) {
	trains, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrScheduleNotFound, name)
	}
	return trains, nil
}

func miniSchedule() map[string]*models.Train {
	return map[string]*models.Train{
		"1": {ID: "1", Stops: []models.Stop{
			{Seq: 1, Station: "A", Arrival: hm(10, 0), Departure: hm(10, 0)},
			{Seq: 2, Station: "B", Arrival: hm(10, 30), Departure: hm(10, 35)},
			{Seq: 3, Station: "C", Arrival: hm(11, 0), Departure: hm(11, 0)},
		}},
		"2": {ID: "2", Stops: []models.Stop{
			{Seq: 1, Station: "B", Arrival: hm(23, 50), Departure: hm(23, 50)},
			{Seq: 2, Station: "D", Arrival: hm(24, 40), Departure: hm(24, 45)},
		}},
		"3": {ID: "3", Stops: []models.Stop{
			{Seq: 1, Station: "B", Arrival: hm(9, 0), Departure: hm(9, 0)},
			{Seq: 2, Station: "C", Arrival: hm(9, 20), Departure: hm(9, 20)},
		}},
	}
}

type memoryCache struct {
	mu        sync.Mutex
	solutions map[string]models.Solution
	locked    bool
	err       error
	sets      int
}

func (m *memoryCache) Get(ctx context.Context, key string) (*models.Solution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sol, ok := m.solutions[key]
	if !ok {
		return nil, nil
	}
	return &sol, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, sol *models.Solution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.solutions == nil {
		m.solutions = make(map[string]models.Solution)
	}
	m.solutions[key] = *sol
	m.sets++
	return nil
}

func (m *memoryCache) AcquireLock(ctx context.Context, key string) (bool, error) {
	return !m.locked, nil
}

func (m *memoryCache) ReleaseLock(ctx context.Context, key string) error { return nil }

func (m *memoryCache) WaitForResult(ctx context.Context, key string, maxWait time.Duration) (*models.Solution, error) {
	return m.Get(ctx, key)
}

func (m *memoryCache) HealthCheck(ctx context.Context) error { return m.err }

func (m *memoryCache) Stats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{"entries": len(m.solutions)}
}

type failingChecker struct{ err error }

func (f failingChecker) HealthCheck(ctx context.Context) error { return f.err }

func testApp(opts Options) (*fiber.App, *graph.Store) {
	log := logger.Nop()
	store := graph.NewStore(mapLoader{"mini.csv": miniSchedule()}, log)
	s := solver.NewSolver(store, routing.NewRouter(log), log)

	app := fiber.New()
	NewHandler(store, s, log, opts).Register(app)
	return app, store
}

func get(t *testing.T, app *fiber.App, target string, out interface{}) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestConnectionSearch(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		status   int
		expected ConnectionResponse
	}{
		{
			name:   "Stops",
			query:  "from=A&to=C&schedule=mini.csv&cost=stops",
			status: 200,
			expected: ConnectionResponse{
				Schedule: "mini.csv", From: "A", To: "C", CostFunction: "stops",
				Connection: "1 : 1 -> 3", Cost: "2", Feasible: true,
			},
		},
		{
			name:   "Arrival time over midnight",
			query:  "from=A&to=D&schedule=mini.csv&cost=arrivaltime+10:00:00&change=5",
			status: 200,
			expected: ConnectionResponse{
				Schedule: "mini.csv", From: "A", To: "D", CostFunction: "arrivaltime 10:00:00", ChangeTime: 5,
				Connection: "1 : 1 -> 2 ; 2 : 1 -> 2", Cost: "00:14:40:00", Feasible: true,
			},
		},
		{
			name:   "Infeasible",
			query:  "from=C&to=A&schedule=mini.csv&cost=price",
			status: 200,
			expected: ConnectionResponse{
				Schedule: "mini.csv", From: "C", To: "A", CostFunction: "price",
				Connection: "", Cost: "inf", Feasible: false,
			},
		},
	}

	app, _ := testApp(Options{LocalCacheSize: 16})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ConnectionResponse
			status := get(t, app, "/v1/connection?"+tt.query, &resp)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.expected, resp)
		})
	}
}

func TestConnectionSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"Missing station", "to=C&schedule=mini.csv&cost=stops", 400},
		{"Missing schedule", "from=A&to=C&cost=stops", 400},
		{"Unknown cost", "from=A&to=C&schedule=mini.csv&cost=fastest", 400},
		{"Arrival time without start", "from=A&to=C&schedule=mini.csv&cost=arrivaltime", 400},
		{"Negative change", "from=A&to=C&schedule=mini.csv&cost=stops&change=-1", 400},
		{"Unknown schedule", "from=A&to=C&schedule=other.csv&cost=stops", 404},
	}

	app, _ := testApp(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]interface{}
			status := get(t, app, "/v1/connection?"+tt.query, &body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestConnectionSearchUsesSharedCache(t *testing.T) {
	shared := &memoryCache{}
	app, _ := testApp(Options{Shared: shared})

	var first, second ConnectionResponse
	require.Equal(t, 200, get(t, app, "/v1/connection?from=A&to=C&schedule=mini.csv&cost=stops", &first))
	require.Equal(t, 200, get(t, app, "/v1/connection?from=A&to=C&schedule=mini.csv&cost=stops", &second))

	assert.Equal(t, first, second)
	assert.Equal(t, 1, shared.sets)
}

func TestConnectionSearchWaitsForLockHolder(t *testing.T) {
	shared := &memoryCache{locked: true}
	app, _ := testApp(Options{Shared: shared})

	// nothing cached by the lock holder, so the search runs anyway
	var resp ConnectionResponse
	require.Equal(t, 200, get(t, app, "/v1/connection?from=A&to=B&schedule=mini.csv&cost=stops", &resp))
	assert.Equal(t, "1 : 1 -> 2", resp.Connection)
}

func TestHealth(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		app, _ := testApp(Options{Shared: &memoryCache{}})

		var body map[string]interface{}
		assert.Equal(t, 200, get(t, app, "/health", &body))
		assert.Equal(t, "healthy", body["status"])

		cache := body["cache"].(map[string]interface{})
		assert.NotContains(t, cache, "local")
		assert.Equal(t, float64(0), cache["redis"].(map[string]interface{})["entries"])
	})

	t.Run("Cache stats follow searches", func(t *testing.T) {
		app, _ := testApp(Options{Shared: &memoryCache{}, LocalCacheSize: 8})
		require.Equal(t, 200, get(t, app, "/v1/connection?from=A&to=C&schedule=mini.csv&cost=stops", nil))

		var body map[string]interface{}
		assert.Equal(t, 200, get(t, app, "/health", &body))

		cache := body["cache"].(map[string]interface{})
		assert.Equal(t, float64(1), cache["redis"].(map[string]interface{})["entries"])
		assert.Equal(t, float64(1), cache["local"].(map[string]interface{})["entries"])
	})

	t.Run("Without redis", func(t *testing.T) {
		app, _ := testApp(Options{})

		var body map[string]interface{}
		assert.Equal(t, 200, get(t, app, "/health", &body))
		assert.NotContains(t, body["cache"].(map[string]interface{}), "redis")
	})

	t.Run("Database down", func(t *testing.T) {
		app, _ := testApp(Options{Database: failingChecker{errors.New("connection refused")}})

		var body map[string]interface{}
		assert.Equal(t, 503, get(t, app, "/health", &body))
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, "connection refused", body["checks"].(map[string]interface{})["database"])
	})
}

func TestTrainDetail(t *testing.T) {
	app, _ := testApp(Options{})

	var resp TrainResponse
	require.Equal(t, 200, get(t, app, "/v1/schedules/mini.csv/trains/2", &resp))
	assert.Equal(t, "2", resp.TrainID)
	assert.Equal(t, []TrainStop{
		{Seq: 1, Station: "B", ArrivalTime: "23:50:00", DepartureTime: "23:50:00", Day: 0},
		{Seq: 2, Station: "D", ArrivalTime: "00:40:00", DepartureTime: "00:45:00", Day: 1},
	}, resp.Stops)

	assert.Equal(t, 404, get(t, app, "/v1/schedules/mini.csv/trains/99", nil))
	assert.Equal(t, 404, get(t, app, "/v1/schedules/other.csv/trains/1", nil))
}

func TestStationDepartures(t *testing.T) {
	app, _ := testApp(Options{})

	var resp DeparturesResponse
	require.Equal(t, 200, get(t, app, "/v1/schedules/mini.csv/stations/B/departures?time=10:00:00", &resp))
	assert.Equal(t, "10:00:00", resp.After)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "1", resp.Departures[0].TrainID)
	assert.Equal(t, "10:35:00", resp.Departures[0].DepartureTime)
	assert.Equal(t, "C", resp.Departures[0].NextStation)
	assert.Equal(t, "2", resp.Departures[1].TrainID)

	require.Equal(t, 200, get(t, app, "/v1/schedules/mini.csv/stations/B/departures?limit=1", &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "3", resp.Departures[0].TrainID)

	assert.Equal(t, 404, get(t, app, "/v1/schedules/mini.csv/stations/Z/departures", nil))
	assert.Equal(t, 400, get(t, app, "/v1/schedules/mini.csv/stations/B/departures?time=noon", nil))
}

func TestScheduleList(t *testing.T) {
	app, store := testApp(Options{})
	_, err := store.Get(context.Background(), "mini.csv")
	require.NoError(t, err)

	var body struct {
		Schedules []string `json:"schedules"`
		Total     int      `json:"total"`
	}
	require.Equal(t, 200, get(t, app, "/v1/schedules", &body))
	assert.Equal(t, []string{"mini.csv"}, body.Schedules)
	assert.Equal(t, 1, body.Total)
}
