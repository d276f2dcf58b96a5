package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
)

// ParseClock converts HH:MM:SS to seconds since midnight.
// Hours of 24 and above are accepted for services running past midnight.
func ParseClock(timeStr string) (int, error) {
	timeStr = unquote(timeStr)
	if timeStr == "" {
		return 0, fmt.Errorf("empty time string")
	}

	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	var values [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid time format: %s", timeStr)
		}
		values[i] = v
	}
	hours, minutes, seconds := values[0], values[1], values[2]
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	return hours*3600 + minutes*60 + seconds, nil
}

// BuildTrains groups rows by train, orders stops by sequence number and
// normalizes overnight rollover so that times never decrease along a train.
// Rows with unparseable times or duplicate sequence numbers are skipped.
func BuildTrains(rows []models.ScheduleRow, log logger.Logger) map[string]*models.Train {
	trains := make(map[string]*models.Train)
	seen := make(map[string]map[int]bool)

	for _, row := range rows {
		arr, err := ParseClock(row.ArrivalTime)
		if err != nil {
			log.Warn("invalid arrival time", "train", row.TrainNo, "seq", row.Seq, "error", err)
			continue
		}
		dep, err := ParseClock(row.DepartureTime)
		if err != nil {
			log.Warn("invalid departure time", "train", row.TrainNo, "seq", row.Seq, "error", err)
			continue
		}

		if seen[row.TrainNo] == nil {
			seen[row.TrainNo] = make(map[int]bool)
		}
		if seen[row.TrainNo][row.Seq] {
			log.Warn("duplicate sequence number", "train", row.TrainNo, "seq", row.Seq)
			continue
		}
		seen[row.TrainNo][row.Seq] = true

		train, ok := trains[row.TrainNo]
		if !ok {
			train = &models.Train{ID: row.TrainNo}
			trains[row.TrainNo] = train
		}
		train.Stops = append(train.Stops, models.Stop{
			Seq:       row.Seq,
			Station:   row.StationCode,
			Arrival:   arr,
			Departure: dep,
		})
	}

	for _, train := range trains {
		sort.Slice(train.Stops, func(i, j int) bool {
			return train.Stops[i].Seq < train.Stops[j].Seq
		})
		NormalizeOvernight(train.Stops)
	}

	return trains
}

// NormalizeOvernight shifts stop times onto a monotonically increasing
// timeline. An arrival earlier than the previous departure means the train
// passed midnight, so that stop and all later ones move one day forward.
// A departure earlier than its own arrival is moved to the next day.
// The first stop keeps its recorded times.
func NormalizeOvernight(stops []models.Stop) {
	if len(stops) == 0 {
		return
	}

	offset := 0
	last := stops[0].Departure

	for i := 1; i < len(stops); i++ {
		s := &stops[i]

		arr := s.Arrival + offset
		if arr < last {
			offset += models.SecondsPerDay
			arr = s.Arrival + offset
		}
		dep := s.Departure + offset
		if dep < arr {
			dep += models.SecondsPerDay
		}

		s.Arrival = arr
		s.Departure = dep
		last = dep
	}
}

// Load parses a schedule file and builds its normalized trains
func (p *Parser) Load(path string) (map[string]*models.Train, error) {
	rows, err := p.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("schedule %s has no usable rows", path)
	}

	trains := BuildTrains(rows, p.log)
	p.log.Debug("parsed schedule", "path", path, "rows", len(rows), "trains", len(trains))
	return trains, nil
}
