package schedule

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
)

// Column names of a schedule file
const (
	colTrainNo   = "Train No."
	colSeq       = "islno"
	colStation   = "station Code"
	colArrival   = "Arrival time"
	colDeparture = "Departure time"
)

// Parser reads schedule files
type Parser struct {
	log logger.Logger
}

// NewParser creates a schedule parser
func NewParser(log logger.Logger) *Parser {
	return &Parser{log: log}
}

// ParseFile parses a schedule CSV file
func (p *Parser) ParseFile(path string) ([]models.ScheduleRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse reads schedule rows from a CSV stream.
// Malformed rows are logged and skipped.
func (p *Parser) Parse(reader io.Reader) ([]models.ScheduleRow, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := makeColumnMap(header)
	for _, col := range []string{colTrainNo, colSeq, colStation, colArrival, colDeparture} {
		if _, ok := colMap[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	var rows []models.ScheduleRow
	line := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			p.log.Warn("skipping malformed schedule row", "line", line, "error", err)
			continue
		}

		trainNo := unquote(getField(record, colMap, colTrainNo))
		station := unquote(getField(record, colMap, colStation))
		if trainNo == "" || station == "" {
			p.log.Warn("skipping schedule row with missing train or station", "line", line)
			continue
		}

		seq, err := strconv.Atoi(unquote(getField(record, colMap, colSeq)))
		if err != nil {
			p.log.Warn("invalid sequence number", "line", line, "train", trainNo, "error", err)
			continue
		}

		rows = append(rows, models.ScheduleRow{
			TrainNo:       trainNo,
			Seq:           seq,
			StationCode:   station,
			ArrivalTime:   unquote(getField(record, colMap, colArrival)),
			DepartureTime: unquote(getField(record, colMap, colDeparture)),
		})
	}

	return rows, nil
}

func makeColumnMap(header []string) map[string]int {
	colMap := make(map[string]int)
	for i, col := range header {
		// strip a UTF-8 BOM on the first column
		col = strings.TrimPrefix(col, "\ufeff")
		colMap[strings.TrimSpace(col)] = i
	}
	return colMap
}

func getField(record []string, colMap map[string]int, fieldName string) string {
	if idx, ok := colMap[fieldName]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

// unquote strips the single quotes some exports wrap around values
func unquote(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "'"))
}
