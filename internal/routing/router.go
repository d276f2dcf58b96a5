package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
)

// Connection is a found route
type Connection struct {
	Segments []models.Segment
	Cost     int64 // stops, seconds aboard, price or elapsed seconds depending on the metric
	Explored int
}

// String renders the merged connection
func (c *Connection) String() string {
	return FormatConnection(c.Segments)
}

// Query is one route request against a timetable
type Query struct {
	From       string
	To         string
	Cost       models.CostFunction
	ChangeTime int // seconds
}

// Router dispatches queries to the state space and engine of their metric
type Router struct {
	log logger.Logger
}

// NewRouter creates a new router instance
func NewRouter(log logger.Logger) *Router {
	return &Router{log: log}
}

// FindConnection returns the cheapest connection for q under its metric.
// An unreachable destination yields ErrNoPath.
func (r *Router) FindConnection(ctx context.Context, tt *graph.Timetable, q Query) (*Connection, error) {
	start := time.Now()

	var (
		conn *Connection
		err  error
	)
	switch q.Cost.Kind {
	case models.CostStops:
		conn, err = search[models.Station](ctx, NewStopsSpace(tt, q.To), models.Station(q.From))
	case models.CostTimeInTrain:
		space := WithSuperSource[models.TrainPosition](NewTimeInTrainSpace(tt, q.To), StartPositions(tt, q.From))
		conn, err = search(ctx, space, SuperSource[models.TrainPosition]())
	case models.CostPrice:
		space := WithSuperSource[models.TrainUsage](NewPriceSpace(tt, q.To), StartUsages(tt, q.From))
		conn, err = search(ctx, space, SuperSource[models.TrainUsage]())
	case models.CostArrivalTime:
		var res *Result[models.TrainPosition]
		res, err = NewArrivalSearch(tt, q.From, q.To, q.Cost.StartTime, q.ChangeTime).Run(ctx)
		if err == nil {
			conn = &Connection{Segments: Reconstruct(res.Prev, res.Goal), Cost: res.Cost, Explored: res.Explored}
		}
	default:
		return nil, fmt.Errorf("unsupported cost function %q", q.Cost.Kind)
	}
	if err != nil {
		return nil, err
	}

	r.log.Debug("connection found",
		"schedule", tt.Name,
		"from", q.From,
		"to", q.To,
		"cost_function", q.Cost.String(),
		"cost", conn.Cost,
		"explored", conn.Explored,
		"duration", time.Since(start).String(),
	)
	return conn, nil
}

func search[S State[S]](ctx context.Context, space Space[S], start S) (*Connection, error) {
	res, err := Dijkstra(ctx, space, start)
	if err != nil {
		return nil, err
	}
	return &Connection{Segments: Reconstruct(res.Prev, res.Goal), Cost: res.Cost, Explored: res.Explored}, nil
}
