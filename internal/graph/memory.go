package graph

import (
	"sort"

	"github.com/passbi/railroute/internal/models"
)

// Timetable holds one schedule in memory for fast searches.
// It is never mutated after NewTimetable returns, so concurrent searches may share it.
type Timetable struct {
	Name     string
	Trains   map[string]*models.Train       // trainID -> Train
	Stations map[string][]models.Occurrence // station code -> occurrences
	trainIDs []string
}

// NewTimetable builds the station index for trains and wraps both
func NewTimetable(name string, trains map[string]*models.Train) *Timetable {
	ids := make([]string, 0, len(trains))
	for id := range trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &Timetable{
		Name:     name,
		Trains:   trains,
		Stations: buildStationIndex(trains, ids),
		trainIDs: ids,
	}
}

// BuildStationIndex maps each station to every (train, stop index) where it occurs
func BuildStationIndex(trains map[string]*models.Train) map[string][]models.Occurrence {
	ids := make([]string, 0, len(trains))
	for id := range trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return buildStationIndex(trains, ids)
}

func buildStationIndex(trains map[string]*models.Train, ids []string) map[string][]models.Occurrence {
	index := make(map[string][]models.Occurrence)
	for _, id := range ids {
		for i, stop := range trains[id].Stops {
			index[stop.Station] = append(index[stop.Station], models.Occurrence{Train: id, Index: i})
		}
	}
	return index
}

// TrainIDs returns train identifiers in sorted order
func (t *Timetable) TrainIDs() []string {
	return t.trainIDs
}

// Train returns a train by ID
func (t *Timetable) Train(id string) (*models.Train, bool) {
	train, ok := t.Trains[id]
	return train, ok
}

// Stop returns the stop at a position, or false if the position is out of range
func (t *Timetable) Stop(trainID string, index int) (models.Stop, bool) {
	train, ok := t.Trains[trainID]
	if !ok || index < 0 || index >= len(train.Stops) {
		return models.Stop{}, false
	}
	return train.Stops[index], true
}

// Occurrences returns every place a station appears; unknown stations have none
func (t *Timetable) Occurrences(station string) []models.Occurrence {
	return t.Stations[station]
}

// HasStation reports whether any train stops at station
func (t *Timetable) HasStation(station string) bool {
	return len(t.Stations[station]) > 0
}

// StopCount returns the total number of stops across all trains
func (t *Timetable) StopCount() int {
	n := 0
	for _, train := range t.Trains {
		n += len(train.Stops)
	}
	return n
}

// Departure is a scheduled departure of a train from a station
type Departure struct {
	Train       string `json:"train"`
	Seq         int    `json:"seq"`
	Departure   int    `json:"departure"`
	NextStation string `json:"next_station"`
}

// DeparturesFrom lists departures from station at or after the given time of day,
// ordered by time of day. Stops with no following stop are not departures.
func (t *Timetable) DeparturesFrom(station string, after int, limit int) []Departure {
	var result []Departure
	for _, occ := range t.Stations[station] {
		stops := t.Trains[occ.Train].Stops
		if occ.Index+1 >= len(stops) {
			continue
		}
		stop := stops[occ.Index]
		if stop.Departure%models.SecondsPerDay < after {
			continue
		}
		result = append(result, Departure{
			Train:       occ.Train,
			Seq:         stop.Seq,
			Departure:   stop.Departure,
			NextStation: stops[occ.Index+1].Station,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Departure%models.SecondsPerDay < result[j].Departure%models.SecondsPerDay
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
