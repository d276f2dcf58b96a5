package routing

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/models"
)

const day = models.SecondsPerDay

// RollForward returns the smallest dep + k*day with k >= 0 that is not before ref.
// Trains run daily, so a departure that has already passed is caught the next day.
func RollForward(ref, dep int) int {
	if dep >= ref {
		return dep
	}
	k := (ref - dep + day - 1) / day
	return dep + k*day
}

// catchSegment returns the effective departure from stops[index] and arrival
// at stops[index+1] for a traveler ready at ref. The arrival is moved by the
// same number of days as the departure and then forward until it is not
// before the departure.
func catchSegment(stops []models.Stop, index int, ref int) (int, int) {
	raw := stops[index].Departure
	dep := RollForward(ref, raw)
	arr := stops[index+1].Arrival + (dep - raw)
	for arr < dep {
		arr += day
	}
	return dep, arr
}

// ArrivalSearch finds the earliest arrival at a station for a traveler
// starting at a given time of day. Each reached position keeps the elapsed
// seconds since the start, which orders the frontier, and the absolute
// arrival instant, which decides which departures are still catchable.
type ArrivalSearch struct {
	tt         *graph.Timetable
	from       string
	to         string
	start      int
	changeTime int
}

// NewArrivalSearch creates a search from one station to another.
// start is seconds since midnight; changeTime is the minimum transfer time in seconds.
func NewArrivalSearch(tt *graph.Timetable, from, to string, start, changeTime int) *ArrivalSearch {
	return &ArrivalSearch{tt: tt, from: from, to: to, start: start, changeTime: changeTime}
}

type arrivalRecord struct {
	elapsed int64
	at      int
}

// Run executes the search. Result.Cost is the elapsed seconds at the destination.
func (a *ArrivalSearch) Run(ctx context.Context) (*Result[models.TrainPosition], error) {
	best := make(map[models.TrainPosition]arrivalRecord)
	prev := make(map[models.TrainPosition]Step[models.TrainPosition])
	openSet := &priorityQueue[models.TrainPosition]{}

	relax := func(parent *models.TrainPosition, train string, index int, ref int) {
		stops := a.tt.Trains[train].Stops
		_, arr := catchSegment(stops, index, ref)

		next := models.TrainPosition{Train: train, Index: index + 1}
		elapsed := int64(arr - a.start)
		if rec, ok := best[next]; ok && elapsed >= rec.elapsed {
			return
		}

		best[next] = arrivalRecord{elapsed: elapsed, at: arr}
		step := Step[models.TrainPosition]{Label: segment(train, stops, index)}
		if parent != nil {
			step.Parent = *parent
			step.HasParent = true
		}
		prev[next] = step
		heap.Push(openSet, &queueItem[models.TrainPosition]{state: next, cost: elapsed})
	}

	for _, occ := range a.tt.Occurrences(a.from) {
		if occ.Index+1 >= len(a.tt.Trains[occ.Train].Stops) {
			continue
		}
		relax(nil, occ.Train, occ.Index, a.start)
	}

	explored := 0
	for openSet.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("search cancelled: %w", err)
		}

		current := heap.Pop(openSet).(*queueItem[models.TrainPosition])
		rec := best[current.state]
		if current.cost > rec.elapsed {
			continue
		}
		explored++

		pos := current.state
		stops := a.tt.Trains[pos.Train].Stops
		station := stops[pos.Index].Station
		if station == a.to {
			return &Result[models.TrainPosition]{Goal: pos, Cost: rec.elapsed, Prev: prev, Explored: explored}, nil
		}

		if pos.Index+1 < len(stops) {
			relax(&pos, pos.Train, pos.Index, rec.at)
		}

		for _, occ := range a.tt.Occurrences(station) {
			if occ.Train == pos.Train && occ.Index == pos.Index {
				continue
			}
			if occ.Index+1 >= len(a.tt.Trains[occ.Train].Stops) {
				continue
			}
			relax(&pos, occ.Train, occ.Index, rec.at+a.changeTime)
		}
	}

	return nil, fmt.Errorf("%w after exploring %d states", ErrNoPath, explored)
}
