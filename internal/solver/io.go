package solver

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/passbi/railroute/internal/models"
)

// Column names of problem and solution files
const (
	colProblemNo    = "ProblemNo"
	colFromStation  = "FromStation"
	colToStation    = "ToStation"
	colSchedule     = "Schedule"
	colChangeTime   = "ChangeTime"
	colCostFunction = "CostFunction"
	colConnection   = "Connection"
	colCost         = "Cost"
)

// ReadProblemsFile reads a problems CSV file
func ReadProblemsFile(path string) ([]models.Problem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open problems: %w", err)
	}
	defer file.Close()

	return ReadProblems(file)
}

// ReadProblems parses problems from a CSV stream. Unlike schedule rows, a
// malformed problem aborts the whole batch.
func ReadProblems(reader io.Reader) ([]models.Problem, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colMap := make(map[string]int, len(header))
	for i, col := range header {
		colMap[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	required := []string{colProblemNo, colFromStation, colToStation, colSchedule, colChangeTime, colCostFunction}
	for _, col := range required {
		if _, ok := colMap[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}
	field := func(record []string, name string) string {
		return strings.TrimSpace(record[colMap[name]])
	}

	var problems []models.Problem
	line := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		changeTime, err := strconv.Atoi(field(record, colChangeTime))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid change time: %w", line, err)
		}
		cost, err := ParseCostFunction(field(record, colCostFunction))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		problems = append(problems, models.Problem{
			ProblemNo:   field(record, colProblemNo),
			FromStation: field(record, colFromStation),
			ToStation:   field(record, colToStation),
			Schedule:    field(record, colSchedule),
			ChangeTime:  changeTime,
			Cost:        cost,
		})
	}

	return problems, nil
}

// WriteSolutionsFile writes solutions to path, replacing any existing file
func WriteSolutionsFile(path string, solutions []models.Solution) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create solutions: %w", err)
	}
	if err := WriteSolutions(file, solutions); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteSolutions writes a ProblemNo,Connection,Cost CSV
func WriteSolutions(w io.Writer, solutions []models.Solution) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{colProblemNo, colConnection, colCost}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, sol := range solutions {
		if err := writer.Write([]string{sol.ProblemNo, sol.Connection, sol.Cost}); err != nil {
			return fmt.Errorf("failed to write solution %s: %w", sol.ProblemNo, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
