package models

import (
	"fmt"
	"time"
)

// SecondsPerDay is the length of one service day on the virtual timeline
const SecondsPerDay = 24 * 3600

// CostKind identifies the metric a query is optimized for
type CostKind string

const (
	CostStops       CostKind = "stops"
	CostTimeInTrain CostKind = "timeintrain"
	CostPrice       CostKind = "price"
	CostArrivalTime CostKind = "arrivaltime"
)

// CostFunction is a parsed cost function token.
// StartTime is only meaningful for CostArrivalTime and holds seconds since midnight.
type CostFunction struct {
	Kind      CostKind
	StartTime int
}

func (c CostFunction) String() string {
	if c.Kind == CostArrivalTime {
		return fmt.Sprintf("%s %s", c.Kind, FormatClock(c.StartTime))
	}
	return string(c.Kind)
}

// Stop is one scheduled halt of a train.
// Arrival and Departure are seconds on the train's virtual timeline; values
// beyond SecondsPerDay mean the train crossed midnight before reaching the stop.
type Stop struct {
	Seq       int    `json:"seq"`
	Station   string `json:"station"`
	Arrival   int    `json:"arrival"`
	Departure int    `json:"departure"`
}

// Train owns an ordered stop sequence
type Train struct {
	ID    string `json:"id"`
	Stops []Stop `json:"stops"`
}

// Occurrence is one appearance of a station in a train's stop list
type Occurrence struct {
	Train string
	Index int
}

// Segment is the part of a train's route between two sequence numbers.
// It is the label carried by ride edges and never contributes to cost.
type Segment struct {
	Train string
	From  int
	To    int
}

func (s Segment) String() string {
	return fmt.Sprintf("%s : %d -> %d", s.Train, s.From, s.To)
}

// Station is the search state of the stops metric
type Station string

// Less orders stations lexicographically
func (s Station) Less(o Station) bool {
	return s < o
}

// TrainPosition is the search state of the time-in-train and arrival-time metrics
type TrainPosition struct {
	Train string
	Index int
}

// Less orders positions by train then index
func (p TrainPosition) Less(o TrainPosition) bool {
	if p.Train != o.Train {
		return p.Train < o.Train
	}
	return p.Index < o.Index
}

// TrainUsage is the search state of the price metric.
// Used counts segments billed on the current ticket and is capped at MaxBilledSegments.
type TrainUsage struct {
	Train string
	Index int
	Used  int
}

// MaxBilledSegments is the number of segments after which a ticket is paid off
const MaxBilledSegments = 10

// Less orders usage states by train, index, then usage
func (u TrainUsage) Less(o TrainUsage) bool {
	if u.Train != o.Train {
		return u.Train < o.Train
	}
	if u.Index != o.Index {
		return u.Index < o.Index
	}
	return u.Used < o.Used
}

// Problem is one route query of a batch
type Problem struct {
	ProblemNo   string
	FromStation string
	ToStation   string
	Schedule    string
	ChangeTime  int // minutes
	Cost        CostFunction
}

// InfeasibleCost is the rendered cost of an unreachable destination
const InfeasibleCost = "inf"

// Solution is the result row of a solved problem
type Solution struct {
	ProblemNo  string `json:"problem_no"`
	Connection string `json:"connection"`
	Cost       string `json:"cost"`
	Feasible   bool   `json:"feasible"`
}

// ScheduleRow is one raw line of a schedule file before normalization
type ScheduleRow struct {
	TrainNo       string
	Seq           int
	StationCode   string
	ArrivalTime   string
	DepartureTime string
}

// ImportLog represents a schedule import operation log
type ImportLog struct {
	ID          int64
	Schedule    string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	TrainsCount int
	StopsCount  int
	ErrorMsg    string
}

// FormatClock renders seconds as HH:MM:SS, wrapping at midnight
func FormatClock(seconds int) string {
	s := ((seconds % SecondsPerDay) + SecondsPerDay) % SecondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// FormatDuration renders an elapsed duration as DD:HH:MM:SS
func FormatDuration(seconds int) string {
	days, rem := seconds/SecondsPerDay, seconds%SecondsPerDay
	hours, rem := rem/3600, rem%3600
	minutes, secs := rem/60, rem%60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", days, hours, minutes, secs)
}
