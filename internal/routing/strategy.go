package routing

import (
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/models"
)

// StopsSpace counts stations entered. Nodes are plain stations and every
// consecutive stop pair of every train is an edge of cost 1, so trains and
// times are folded away.
type StopsSpace struct {
	tt   *graph.Timetable
	goal models.Station
}

// NewStopsSpace creates the stops state space towards station to
func NewStopsSpace(tt *graph.Timetable, to string) *StopsSpace {
	return &StopsSpace{tt: tt, goal: models.Station(to)}
}

func (s *StopsSpace) Successors(station models.Station) []Edge[models.Station] {
	var edges []Edge[models.Station]
	for _, occ := range s.tt.Occurrences(string(station)) {
		stops := s.tt.Trains[occ.Train].Stops
		if occ.Index+1 >= len(stops) {
			continue
		}
		next := stops[occ.Index+1]
		edges = append(edges, Edge[models.Station]{
			To:    models.Station(next.Station),
			Cost:  1,
			Label: segment(occ.Train, stops, occ.Index),
		})
	}
	return edges
}

func (s *StopsSpace) IsGoal(station models.Station) bool {
	return station == s.goal
}

// TimeInTrainSpace measures seconds spent aboard. Riding to the next stop
// costs its travel time; switching to any other occurrence of the current
// station is free.
type TimeInTrainSpace struct {
	tt *graph.Timetable
	to string
}

// NewTimeInTrainSpace creates the time-in-train state space towards station to
func NewTimeInTrainSpace(tt *graph.Timetable, to string) *TimeInTrainSpace {
	return &TimeInTrainSpace{tt: tt, to: to}
}

func (s *TimeInTrainSpace) Successors(p models.TrainPosition) []Edge[models.TrainPosition] {
	stops := s.tt.Trains[p.Train].Stops
	var edges []Edge[models.TrainPosition]

	if p.Index+1 < len(stops) {
		edges = append(edges, Edge[models.TrainPosition]{
			To:    models.TrainPosition{Train: p.Train, Index: p.Index + 1},
			Cost:  int64(stops[p.Index+1].Arrival - stops[p.Index].Departure),
			Label: segment(p.Train, stops, p.Index),
		})
	}

	for _, occ := range s.tt.Occurrences(stops[p.Index].Station) {
		if occ.Train == p.Train && occ.Index == p.Index {
			continue
		}
		edges = append(edges, Edge[models.TrainPosition]{
			To: models.TrainPosition{Train: occ.Train, Index: occ.Index},
		})
	}
	return edges
}

func (s *TimeInTrainSpace) IsGoal(p models.TrainPosition) bool {
	return s.tt.Trains[p.Train].Stops[p.Index].Station == s.to
}

// PriceSpace prices tickets. Each segment on the current train costs 1 until
// MaxBilledSegments have been paid, after which the ticket covers the rest of
// the ride. Changing trains starts a new ticket at no immediate cost.
type PriceSpace struct {
	tt *graph.Timetable
	to string
}

// NewPriceSpace creates the price state space towards station to
func NewPriceSpace(tt *graph.Timetable, to string) *PriceSpace {
	return &PriceSpace{tt: tt, to: to}
}

func (s *PriceSpace) Successors(u models.TrainUsage) []Edge[models.TrainUsage] {
	stops := s.tt.Trains[u.Train].Stops
	var edges []Edge[models.TrainUsage]

	if u.Index+1 < len(stops) {
		used := u.Used + 1
		if used > models.MaxBilledSegments {
			used = models.MaxBilledSegments
		}
		var cost int64
		if u.Used < models.MaxBilledSegments {
			cost = 1
		}
		edges = append(edges, Edge[models.TrainUsage]{
			To:    models.TrainUsage{Train: u.Train, Index: u.Index + 1, Used: used},
			Cost:  cost,
			Label: segment(u.Train, stops, u.Index),
		})
	}

	for _, occ := range s.tt.Occurrences(stops[u.Index].Station) {
		if occ.Train == u.Train && occ.Index == u.Index {
			continue
		}
		edges = append(edges, Edge[models.TrainUsage]{
			To: models.TrainUsage{Train: occ.Train, Index: occ.Index},
		})
	}
	return edges
}

// IsGoal accepts the destination at any usage level
func (s *PriceSpace) IsGoal(u models.TrainUsage) bool {
	return s.tt.Trains[u.Train].Stops[u.Index].Station == s.to
}

// StartPositions returns every occurrence of station as a train position
func StartPositions(tt *graph.Timetable, station string) []models.TrainPosition {
	occs := tt.Occurrences(station)
	starts := make([]models.TrainPosition, 0, len(occs))
	for _, occ := range occs {
		starts = append(starts, models.TrainPosition{Train: occ.Train, Index: occ.Index})
	}
	return starts
}

// StartUsages returns every occurrence of station with a fresh ticket
func StartUsages(tt *graph.Timetable, station string) []models.TrainUsage {
	occs := tt.Occurrences(station)
	starts := make([]models.TrainUsage, 0, len(occs))
	for _, occ := range occs {
		starts = append(starts, models.TrainUsage{Train: occ.Train, Index: occ.Index})
	}
	return starts
}

func segment(train string, stops []models.Stop, index int) *models.Segment {
	return &models.Segment{Train: train, From: stops[index].Seq, To: stops[index+1].Seq}
}
