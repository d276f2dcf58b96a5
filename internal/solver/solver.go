package solver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
	"github.com/passbi/railroute/internal/routing"
	"github.com/passbi/railroute/internal/schedule"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownCostFunction = errors.New("unknown cost function")
	ErrMissingStartTime    = errors.New("arrivaltime requires a start time, e.g. 'arrivaltime 11:30:00'")
)

// ParseCostFunction parses "stops", "timeintrain", "price" or "arrivaltime HH:MM:SS"
func ParseCostFunction(raw string) (models.CostFunction, error) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return models.CostFunction{}, fmt.Errorf("%w: empty", ErrUnknownCostFunction)
	}

	switch kind := models.CostKind(parts[0]); kind {
	case models.CostStops, models.CostTimeInTrain, models.CostPrice:
		return models.CostFunction{Kind: kind}, nil
	case models.CostArrivalTime:
		if len(parts) < 2 {
			return models.CostFunction{}, ErrMissingStartTime
		}
		start, err := schedule.ParseClock(parts[1])
		if err != nil {
			return models.CostFunction{}, fmt.Errorf("invalid arrivaltime start %q: %w", parts[1], err)
		}
		return models.CostFunction{Kind: kind, StartTime: start % models.SecondsPerDay}, nil
	default:
		return models.CostFunction{}, fmt.Errorf("%w: %s", ErrUnknownCostFunction, raw)
	}
}

// FormatCost renders a search cost the way solution files expect it
func FormatCost(kind models.CostKind, cost int64) string {
	if kind == models.CostArrivalTime {
		return models.FormatDuration(int(cost))
	}
	return strconv.FormatInt(cost, 10)
}

// Timetables resolves a schedule name to its in-memory timetable
type Timetables interface {
	Get(ctx context.Context, name string) (*graph.Timetable, error)
}

// Solver answers route problems against shared timetables
type Solver struct {
	timetables Timetables
	router     *routing.Router
	log        logger.Logger
}

// NewSolver creates a solver; timetables is usually a *graph.Store
func NewSolver(timetables Timetables, router *routing.Router, log logger.Logger) *Solver {
	return &Solver{timetables: timetables, router: router, log: log}
}

// Solve answers one problem. An unreachable destination is not an error:
// it yields an empty connection with cost "inf".
func (s *Solver) Solve(ctx context.Context, p models.Problem) (models.Solution, error) {
	tt, err := s.timetables.Get(ctx, p.Schedule)
	if err != nil {
		return models.Solution{}, fmt.Errorf("problem %s: %w", p.ProblemNo, err)
	}

	conn, err := s.router.FindConnection(ctx, tt, routing.Query{
		From:       p.FromStation,
		To:         p.ToStation,
		Cost:       p.Cost,
		ChangeTime: p.ChangeTime * 60,
	})
	if errors.Is(err, routing.ErrNoPath) {
		s.log.Debug("problem infeasible",
			"problem", p.ProblemNo,
			"from", p.FromStation,
			"to", p.ToStation,
			"cost_function", p.Cost.String(),
		)
		return models.Solution{ProblemNo: p.ProblemNo, Cost: models.InfeasibleCost}, nil
	}
	if err != nil {
		return models.Solution{}, fmt.Errorf("problem %s: %w", p.ProblemNo, err)
	}

	return models.Solution{
		ProblemNo:  p.ProblemNo,
		Connection: conn.String(),
		Cost:       FormatCost(p.Cost.Kind, conn.Cost),
		Feasible:   true,
	}, nil
}

// SolveAll solves problems with at most workers concurrent searches and
// returns solutions in input order. The first failing problem cancels the rest.
func (s *Solver) SolveAll(ctx context.Context, problems []models.Problem, workers int) ([]models.Solution, error) {
	if workers < 1 {
		workers = 1
	}
	start := time.Now()
	solutions := make([]models.Solution, len(problems))
	var infeasible atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range problems {
		g.Go(func() error {
			sol, err := s.Solve(gctx, p)
			if err != nil {
				return err
			}
			if !sol.Feasible {
				infeasible.Add(1)
			}
			solutions[i] = sol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Info("batch solved",
		"problems", len(problems),
		"infeasible", infeasible.Load(),
		"workers", workers,
		"duration", time.Since(start).String(),
	)
	return solutions, nil
}
