package routing

import (
	"context"
	"fmt"
	"testing"

	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hm(h, m int) int {
	return h*3600 + m*60
}

type stopSpec struct {
	station   string
	arrival   int
	departure int
}

func train(id string, specs ...stopSpec) *models.Train {
	stops := make([]models.Stop, len(specs))
	for i, s := range specs {
		stops[i] = models.Stop{Seq: i + 1, Station: s.station, Arrival: s.arrival, Departure: s.departure}
	}
	return &models.Train{ID: id, Stops: stops}
}

func timetable(trains ...*models.Train) *graph.Timetable {
	byID := make(map[string]*models.Train, len(trains))
	for _, t := range trains {
		byID[t.ID] = t
	}
	return graph.NewTimetable("test", byID)
}

// line builds a train calling at prefix0..prefixN, ten minutes apart
func line(id, prefix string, segments int) *models.Train {
	specs := make([]stopSpec, segments+1)
	for i := range specs {
		at := hm(6, 0) + i*600
		specs[i] = stopSpec{station: fmt.Sprintf("%s%d", prefix, i), arrival: at, departure: at}
	}
	return train(id, specs...)
}

func stopsCost() models.CostFunction       { return models.CostFunction{Kind: models.CostStops} }
func timeInTrainCost() models.CostFunction { return models.CostFunction{Kind: models.CostTimeInTrain} }
func priceCost() models.CostFunction       { return models.CostFunction{Kind: models.CostPrice} }
func arrivalCost(start int) models.CostFunction {
	return models.CostFunction{Kind: models.CostArrivalTime, StartTime: start}
}

func TestFindConnection(t *testing.T) {
	tests := []struct {
		name       string
		tt         *graph.Timetable
		query      Query
		connection string
		cost       int64
	}{
		{
			name:       "Single segment by stops",
			tt:         timetable(train("1", stopSpec{"A", hm(10, 0), hm(10, 0)}, stopSpec{"B", hm(10, 30), hm(10, 30)})),
			query:      Query{From: "A", To: "B", Cost: stopsCost()},
			connection: "1 : 1 -> 2",
			cost:       1,
		},
		{
			name: "Stops prefers the direct train",
			tt: timetable(
				train("1", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(8, 30), hm(8, 31)}, stopSpec{"C", hm(9, 0), hm(9, 0)}),
				train("2", stopSpec{"A", hm(12, 0), hm(12, 0)}, stopSpec{"C", hm(15, 0), hm(15, 0)}),
			),
			query:      Query{From: "A", To: "C", Cost: stopsCost()},
			connection: "2 : 1 -> 2",
			cost:       1,
		},
		{
			name: "Stops merges consecutive segments",
			tt: timetable(
				train("1", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(8, 30), hm(8, 31)}, stopSpec{"C", hm(9, 0), hm(9, 0)}),
			),
			query:      Query{From: "A", To: "C", Cost: stopsCost()},
			connection: "1 : 1 -> 3",
			cost:       2,
		},
		{
			name:       "Origin equals destination",
			tt:         timetable(train("1", stopSpec{"A", hm(10, 0), hm(10, 0)}, stopSpec{"B", hm(10, 30), hm(10, 30)})),
			query:      Query{From: "A", To: "A", Cost: stopsCost()},
			connection: "",
			cost:       0,
		},
		{
			name: "Time in train ignores waiting",
			tt: timetable(
				train("X", stopSpec{"A", hm(10, 0), hm(10, 0)}, stopSpec{"B", hm(11, 0), hm(11, 0)}),
				train("Y", stopSpec{"A", hm(9, 0), hm(9, 0)}, stopSpec{"C", hm(9, 10), hm(9, 10)}),
				train("Z", stopSpec{"C", hm(20, 50), hm(20, 50)}, stopSpec{"B", hm(21, 0), hm(21, 0)}),
			),
			query:      Query{From: "A", To: "B", Cost: timeInTrainCost()},
			connection: "Y : 1 -> 2 ; Z : 1 -> 2",
			cost:       1200,
		},
		{
			name: "Time in train excludes dwell at intermediate stops",
			tt: timetable(
				train("X", stopSpec{"A", hm(10, 0), hm(10, 0)}, stopSpec{"B", hm(10, 10), hm(10, 40)}, stopSpec{"C", hm(10, 50), hm(10, 50)}),
				train("Y", stopSpec{"A", hm(12, 0), hm(12, 0)}, stopSpec{"C", hm(12, 35), hm(12, 35)}),
			),
			query:      Query{From: "A", To: "C", Cost: timeInTrainCost()},
			connection: "X : 1 -> 3",
			cost:       1200,
		},
		{
			name:       "Price saturates after ten segments",
			tt:         timetable(line("L", "S", 15)),
			query:      Query{From: "S0", To: "S15", Cost: priceCost()},
			connection: "L : 1 -> 16",
			cost:       10,
		},
		{
			name:       "Price below the cap",
			tt:         timetable(line("L", "S", 15)),
			query:      Query{From: "S2", To: "S6", Cost: priceCost()},
			connection: "L : 3 -> 7",
			cost:       4,
		},
		{
			name: "Price stays on one ticket rather than splitting",
			tt: timetable(
				line("T1", "X", 12),
				train("T2",
					stopSpec{"X6", hm(7, 0), hm(7, 0)}, stopSpec{"X7", hm(7, 5), hm(7, 5)},
					stopSpec{"X8", hm(7, 10), hm(7, 10)}, stopSpec{"X9", hm(7, 15), hm(7, 15)},
					stopSpec{"X10", hm(7, 20), hm(7, 20)}, stopSpec{"X11", hm(7, 25), hm(7, 25)},
					stopSpec{"X12", hm(7, 30), hm(7, 30)},
				),
			),
			query:      Query{From: "X0", To: "X12", Cost: priceCost()},
			connection: "T1 : 1 -> 13",
			cost:       10,
		},
		{
			name:       "Arrival time same day",
			tt:         timetable(train("N", stopSpec{"A", hm(23, 0), hm(23, 0)}, stopSpec{"B", hm(23, 30), hm(23, 30)})),
			query:      Query{From: "A", To: "B", Cost: arrivalCost(hm(22, 0))},
			connection: "N : 1 -> 2",
			cost:       5400,
		},
		{
			name:       "Arrival time rolls a missed departure to the next day",
			tt:         timetable(train("N", stopSpec{"A", hm(23, 0), hm(23, 0)}, stopSpec{"B", hm(23, 30), hm(23, 30)})),
			query:      Query{From: "A", To: "B", Cost: arrivalCost(hm(23, 30))},
			connection: "N : 1 -> 2",
			cost:       86400,
		},
		{
			name: "Arrival time across midnight",
			tt: timetable(train("O",
				stopSpec{"A", hm(23, 40), hm(23, 40)},
				stopSpec{"B", hm(24, 20), hm(24, 20)},
			)),
			query:      Query{From: "A", To: "B", Cost: arrivalCost(hm(23, 0))},
			connection: "O : 1 -> 2",
			cost:       4800,
		},
		{
			name: "Change time forces a later connection",
			tt: timetable(
				train("P", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(9, 0), hm(9, 0)}),
				train("Q", stopSpec{"B", hm(9, 5), hm(9, 5)}, stopSpec{"C", hm(10, 0), hm(10, 0)}),
				train("R", stopSpec{"B", hm(9, 30), hm(9, 30)}, stopSpec{"C", hm(11, 0), hm(11, 0)}),
			),
			query:      Query{From: "A", To: "C", Cost: arrivalCost(hm(7, 0)), ChangeTime: 600},
			connection: "P : 1 -> 2 ; R : 1 -> 2",
			cost:       14400,
		},
		{
			name: "Zero change time catches the tight connection",
			tt: timetable(
				train("P", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(9, 0), hm(9, 0)}),
				train("Q", stopSpec{"B", hm(9, 5), hm(9, 5)}, stopSpec{"C", hm(10, 0), hm(10, 0)}),
				train("R", stopSpec{"B", hm(9, 30), hm(9, 30)}, stopSpec{"C", hm(11, 0), hm(11, 0)}),
			),
			query:      Query{From: "A", To: "C", Cost: arrivalCost(hm(7, 0))},
			connection: "P : 1 -> 2 ; Q : 1 -> 2",
			cost:       10800,
		},
		{
			name: "Staying aboard ignores change time",
			tt: timetable(
				train("S", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(9, 0), hm(9, 2)}, stopSpec{"C", hm(10, 0), hm(10, 0)}),
			),
			query:      Query{From: "A", To: "C", Cost: arrivalCost(hm(7, 0)), ChangeTime: 1800},
			connection: "S : 1 -> 3",
			cost:       10800,
		},
		{
			name: "Arrival time to the origin rides a loop",
			tt: timetable(
				train("1", stopSpec{"A", hm(10, 0), hm(10, 0)}, stopSpec{"B", hm(10, 30), hm(10, 30)}, stopSpec{"A", hm(11, 0), hm(11, 0)}),
			),
			query:      Query{From: "A", To: "A", Cost: arrivalCost(hm(9, 0))},
			connection: "1 : 1 -> 3",
			cost:       7200,
		},
		{
			name: "Time in train reaches the minimum through the second origin occurrence",
			tt: timetable(
				train("1", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(9, 0), hm(9, 0)}),
				train("2", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(8, 30), hm(8, 30)}),
			),
			query:      Query{From: "A", To: "B", Cost: timeInTrainCost()},
			connection: "2 : 1 -> 2",
			cost:       1800,
		},
		{
			name: "Price reaches the minimum through the second origin occurrence",
			tt: timetable(
				train("1",
					stopSpec{"A", hm(8, 0), hm(8, 0)},
					stopSpec{"C1", hm(8, 10), hm(8, 10)},
					stopSpec{"C2", hm(8, 20), hm(8, 20)},
					stopSpec{"B", hm(8, 30), hm(8, 30)},
				),
				train("2", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(9, 0), hm(9, 0)}),
			),
			query:      Query{From: "A", To: "B", Cost: priceCost()},
			connection: "2 : 1 -> 2",
			cost:       1,
		},
	}

	router := NewRouter(logger.Nop())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn, err := router.FindConnection(context.Background(), tc.tt, tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.connection, conn.String())
			assert.Equal(t, tc.cost, conn.Cost)
		})
	}
}

func TestFindConnectionUnreachable(t *testing.T) {
	tt := timetable(
		train("1", stopSpec{"A", hm(10, 0), hm(10, 0)}, stopSpec{"B", hm(10, 30), hm(10, 30)}),
		train("2", stopSpec{"C", hm(11, 0), hm(11, 0)}, stopSpec{"D", hm(11, 30), hm(11, 30)}),
	)

	costs := []models.CostFunction{stopsCost(), timeInTrainCost(), priceCost(), arrivalCost(hm(9, 0))}
	pairs := [][2]string{{"B", "A"}, {"A", "D"}, {"A", "UNKNOWN"}, {"UNKNOWN", "B"}}

	router := NewRouter(logger.Nop())
	for _, cost := range costs {
		for _, pair := range pairs {
			t.Run(fmt.Sprintf("%s %s to %s", cost, pair[0], pair[1]), func(t *testing.T) {
				conn, err := router.FindConnection(context.Background(), tt, Query{From: pair[0], To: pair[1], Cost: cost})
				assert.ErrorIs(t, err, ErrNoPath)
				assert.Nil(t, conn)
			})
		}
	}
}

func TestFindConnectionUnsupportedCost(t *testing.T) {
	tt := timetable(train("1", stopSpec{"A", 0, 0}, stopSpec{"B", 60, 60}))

	_, err := NewRouter(logger.Nop()).FindConnection(context.Background(), tt, Query{
		From: "A",
		To:   "B",
		Cost: models.CostFunction{Kind: "distance"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPath)
}

func TestFindConnectionIsRepeatable(t *testing.T) {
	tt := timetable(
		train("1", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(8, 30), hm(8, 30)}),
		train("2", stopSpec{"A", hm(8, 0), hm(8, 0)}, stopSpec{"B", hm(8, 30), hm(8, 30)}),
		train("3", stopSpec{"B", hm(9, 0), hm(9, 0)}, stopSpec{"C", hm(9, 30), hm(9, 30)}),
	)
	router := NewRouter(logger.Nop())

	for _, cost := range []models.CostFunction{stopsCost(), timeInTrainCost(), priceCost(), arrivalCost(hm(7, 0))} {
		t.Run(cost.String(), func(t *testing.T) {
			q := Query{From: "A", To: "C", Cost: cost}
			first, err := router.FindConnection(context.Background(), tt, q)
			require.NoError(t, err)
			second, err := router.FindConnection(context.Background(), tt, q)
			require.NoError(t, err)

			assert.Equal(t, first.String(), second.String())
			assert.Equal(t, first.Cost, second.Cost)
		})
	}
}

func TestRollForward(t *testing.T) {
	tests := []struct {
		name     string
		ref      int
		dep      int
		expected int
	}{
		{"Departure later the same day", 100, 200, 200},
		{"Departure exactly at reference", 300, 300, 300},
		{"Departure already passed", hm(23, 30), hm(23, 0), hm(23, 0) + 86400},
		{"Lands exactly on the reference", 90000, 3600, 90000},
		{"Several days later", 200000, 100, 100 + 3*86400},
		{"Normalized departure after midnight", hm(1, 0), hm(24, 30), hm(24, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RollForward(tt.ref, tt.dep)
			assert.Equal(t, tt.expected, got)
			assert.GreaterOrEqual(t, got, tt.ref)
		})
	}
}

func TestCatchSegmentKeepsArrivalAfterDeparture(t *testing.T) {
	stops := []models.Stop{
		{Seq: 1, Station: "A", Arrival: hm(23, 0), Departure: hm(23, 0)},
		{Seq: 2, Station: "B", Arrival: hm(23, 50), Departure: hm(23, 50)},
	}

	dep, arr := catchSegment(stops, 0, 3*86400)
	assert.Equal(t, hm(23, 0)+3*86400, dep)
	assert.Equal(t, hm(23, 50)+3*86400, arr)
	assert.GreaterOrEqual(t, arr, dep)
}
