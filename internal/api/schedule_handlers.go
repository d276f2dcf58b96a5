package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/models"
	"github.com/passbi/railroute/internal/schedule"
)

// --- Response types ---

// TrainStop represents a stop within a train's run
type TrainStop struct {
	Seq           int    `json:"seq"`
	Station       string `json:"station"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
	Day           int    `json:"day"`
}

// TrainResponse is the response for the train endpoint
type TrainResponse struct {
	Schedule string      `json:"schedule"`
	TrainID  string      `json:"train_id"`
	Stops    []TrainStop `json:"stops"`
}

// DepartureInfo represents a single departure at a station
type DepartureInfo struct {
	TrainID       string `json:"train_id"`
	Seq           int    `json:"seq"`
	DepartureTime string `json:"departure_time"`
	DepartureSecs int    `json:"departure_seconds"`
	NextStation   string `json:"next_station"`
}

// DeparturesResponse is the response for the departures endpoint
type DeparturesResponse struct {
	Schedule   string          `json:"schedule"`
	Station    string          `json:"station"`
	After      string          `json:"after"`
	Departures []DepartureInfo `json:"departures"`
	Total      int             `json:"total"`
}

// --- Handlers ---

// ScheduleList handles GET /v1/schedules
func (h *Handler) ScheduleList(c *fiber.Ctx) error {
	names := h.timetables.Names()
	return c.JSON(fiber.Map{
		"schedules": names,
		"total":     len(names),
	})
}

// TrainDetail handles GET /v1/schedules/:name/trains/:id
func (h *Handler) TrainDetail(c *fiber.Ctx) error {
	tt, err := h.timetable(c)
	if tt == nil {
		return err
	}

	trainID := c.Params("id")
	train, ok := tt.Train(trainID)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "train not found"})
	}

	stops := make([]TrainStop, 0, len(train.Stops))
	for _, stop := range train.Stops {
		stops = append(stops, TrainStop{
			Seq:           stop.Seq,
			Station:       stop.Station,
			ArrivalTime:   models.FormatClock(stop.Arrival),
			DepartureTime: models.FormatClock(stop.Departure),
			Day:           stop.Arrival / models.SecondsPerDay,
		})
	}

	return c.JSON(TrainResponse{
		Schedule: tt.Name,
		TrainID:  train.ID,
		Stops:    stops,
	})
}

// StationDepartures handles GET /v1/schedules/:name/stations/:code/departures
func (h *Handler) StationDepartures(c *fiber.Ctx) error {
	tt, err := h.timetable(c)
	if tt == nil {
		return err
	}

	station := c.Params("code")
	if !tt.HasStation(station) {
		return c.Status(404).JSON(fiber.Map{"error": "station not found"})
	}

	after := 0
	if timeStr := c.Query("time"); timeStr != "" {
		after, err = schedule.ParseClock(timeStr)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid time format (use HH:MM:SS)"})
		}
		after %= models.SecondsPerDay
	}

	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	deps := tt.DeparturesFrom(station, after, limit)
	departures := make([]DepartureInfo, 0, len(deps))
	for _, d := range deps {
		departures = append(departures, DepartureInfo{
			TrainID:       d.Train,
			Seq:           d.Seq,
			DepartureTime: models.FormatClock(d.Departure),
			DepartureSecs: d.Departure % models.SecondsPerDay,
			NextStation:   d.NextStation,
		})
	}

	return c.JSON(DeparturesResponse{
		Schedule:   tt.Name,
		Station:    station,
		After:      models.FormatClock(after),
		Departures: departures,
		Total:      len(departures),
	})
}

// timetable resolves the :name parameter, writing the error response itself
// when the schedule cannot be served
func (h *Handler) timetable(c *fiber.Ctx) (*graph.Timetable, error) {
	name := c.Params("name")
	tt, err := h.timetables.Get(c.UserContext(), name)
	if err == nil {
		return tt, nil
	}

	if errors.Is(err, graph.ErrScheduleNotFound) {
		return nil, c.Status(404).JSON(fiber.Map{"error": "schedule not found"})
	}
	h.log.Error("failed to load schedule", "schedule", name, "error", err)
	return nil, c.Status(500).JSON(fiber.Map{"error": "internal server error"})
}
