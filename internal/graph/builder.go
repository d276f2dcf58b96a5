package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
)

const batchSize = 1000 // batch insert size

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schedule (
	name        TEXT PRIMARY KEY,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS schedule_stop (
	schedule          TEXT NOT NULL REFERENCES schedule(name) ON DELETE CASCADE,
	train_no          TEXT NOT NULL,
	seq               INT  NOT NULL,
	station           TEXT NOT NULL,
	arrival_seconds   INT  NOT NULL,
	departure_seconds INT  NOT NULL,
	PRIMARY KEY (schedule, train_no, seq)
);

CREATE TABLE IF NOT EXISTS station_occurrence (
	schedule   TEXT NOT NULL REFERENCES schedule(name) ON DELETE CASCADE,
	station    TEXT NOT NULL,
	train_no   TEXT NOT NULL,
	stop_index INT  NOT NULL,
	PRIMARY KEY (schedule, station, train_no, stop_index)
);

CREATE TABLE IF NOT EXISTS import_log (
	id           BIGSERIAL PRIMARY KEY,
	schedule     TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ,
	status       TEXT NOT NULL,
	message      TEXT
);
`

// Builder persists timetables to PostgreSQL
type Builder struct {
	db  *pgxpool.Pool
	log logger.Logger
}

// NewBuilder creates a new timetable builder
func NewBuilder(db *pgxpool.Pool, log logger.Logger) *Builder {
	return &Builder{db: db, log: log}
}

// EnsureSchema creates the schedule tables if they do not exist
func (b *Builder) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveTimetable replaces the stored stops of a schedule with tt's normalized stops.
// Returns the number of stops written.
func (b *Builder) SaveTimetable(ctx context.Context, tt *Timetable) (int, error) {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO schedule (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET imported_at = NOW()
	`, tt.Name); err != nil {
		return 0, fmt.Errorf("failed to upsert schedule: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM schedule_stop WHERE schedule = $1`, tt.Name); err != nil {
		return 0, fmt.Errorf("failed to clear schedule stops: %w", err)
	}

	batch := &pgx.Batch{}
	count := 0
	for _, id := range tt.TrainIDs() {
		for _, stop := range tt.Trains[id].Stops {
			batch.Queue(`
				INSERT INTO schedule_stop (schedule, train_no, seq, station, arrival_seconds, departure_seconds)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, tt.Name, id, stop.Seq, stop.Station, stop.Arrival, stop.Departure)
			count++

			if batch.Len() >= batchSize {
				if err := executeBatch(ctx, tx, batch); err != nil {
					return 0, err
				}
				batch = &pgx.Batch{}
			}
		}
	}
	if batch.Len() > 0 {
		if err := executeBatch(ctx, tx, batch); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit schedule %s: %w", tt.Name, err)
	}

	b.log.Info("schedule stored", "schedule", tt.Name, "trains", len(tt.Trains), "stops", count)
	return count, nil
}

// RebuildStationIndex recomputes the station occurrence table of a schedule
// from its stored stops. Stop indexes are zero-based positions in sequence order.
func (b *Builder) RebuildStationIndex(ctx context.Context, scheduleName string) (int, error) {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM station_occurrence WHERE schedule = $1`, scheduleName); err != nil {
		return 0, fmt.Errorf("failed to clear station index: %w", err)
	}

	result, err := tx.Exec(ctx, `
		INSERT INTO station_occurrence (schedule, station, train_no, stop_index)
		SELECT schedule, station, train_no,
		       ROW_NUMBER() OVER (PARTITION BY train_no ORDER BY seq) - 1
		FROM schedule_stop
		WHERE schedule = $1
	`, scheduleName)
	if err != nil {
		return 0, fmt.Errorf("failed to build station index: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit station index: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// Analyze runs ANALYZE on schedule tables for query optimization
func (b *Builder) Analyze(ctx context.Context) error {
	for _, table := range []string{"schedule", "schedule_stop", "station_occurrence"} {
		if _, err := b.db.Exec(ctx, fmt.Sprintf("ANALYZE %s", table)); err != nil {
			return err
		}
		b.log.Debug("analyzed table", "table", table)
	}
	return nil
}

// executeBatch executes a batch of queries
func executeBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch execution failed at query %d: %w", i, err)
		}
	}
	return nil
}

// Querier is the subset of pgxpool.Pool used for reading schedules
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DBLoader loads already normalized schedules from PostgreSQL
type DBLoader struct {
	db Querier
}

// NewDBLoader creates a loader reading the schedule_stop table
func NewDBLoader(db Querier) *DBLoader {
	return &DBLoader{db: db}
}

// Load reads every stop of the named schedule
func (l *DBLoader) Load(ctx context.Context, name string) (map[string]*models.Train, error) {
	rows, err := l.db.Query(ctx, `
		SELECT train_no, seq, station, arrival_seconds, departure_seconds
		FROM schedule_stop
		WHERE schedule = $1
		ORDER BY train_no, seq
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule stops: %w", err)
	}
	defer rows.Close()

	trains := make(map[string]*models.Train)
	for rows.Next() {
		var trainNo string
		var stop models.Stop
		if err := rows.Scan(&trainNo, &stop.Seq, &stop.Station, &stop.Arrival, &stop.Departure); err != nil {
			return nil, fmt.Errorf("failed to scan schedule stop: %w", err)
		}
		train, ok := trains[trainNo]
		if !ok {
			train = &models.Train{ID: trainNo}
			trains[trainNo] = train
		}
		train.Stops = append(train.Stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(trains) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, name)
	}

	for _, train := range trains {
		sort.Slice(train.Stops, func(i, j int) bool { return train.Stops[i].Seq < train.Stops[j].Seq })
	}
	return trains, nil
}
