package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/db"
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
	"github.com/passbi/railroute/internal/schedule"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	schedulePath := flag.String("schedule", "", "Path to schedule CSV file (required)")
	name := flag.String("name", "", "Schedule name (defaults to the file name)")
	rebuildIndex := flag.Bool("rebuild-index", true, "Rebuild the station occurrence index after import")

	flag.Parse()

	if *schedulePath == "" {
		fmt.Println("Usage: railroute-import --schedule=<path.csv> [--name=<name>] [--rebuild-index] [--config=<config.yml>]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if _, err := os.Stat(*schedulePath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Schedule file not found: %s\n", *schedulePath)
		os.Exit(1)
	}
	if *name == "" {
		*name = filepath.Base(*schedulePath)
	}

	envErr := godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Logger()).With("schedule", *name)
	if envErr != nil {
		log.Debug("no .env file loaded", "error", envErr)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer pool.Close()

	builder := graph.NewBuilder(pool, log)
	if err := builder.EnsureSchema(ctx); err != nil {
		log.Fatal("failed to prepare schema", "error", err)
	}

	entry, err := createImportLog(ctx, pool, *name)
	if err != nil {
		log.Fatal("failed to create import log", "error", err)
	}

	if err := runImport(ctx, builder, log, *schedulePath, *name, *rebuildIndex, entry); err != nil {
		entry.Status = "failed"
		entry.ErrorMsg = err.Error()
		if logErr := finishImportLog(ctx, pool, entry); logErr != nil {
			log.Error("failed to update import log", "error", logErr)
		}
		log.Fatal("import failed", "error", err)
	}

	entry.Status = "success"
	if err := finishImportLog(ctx, pool, entry); err != nil {
		log.Error("failed to update import log", "error", err)
	}
	log.Info("import completed", "trains", entry.TrainsCount, "stops", entry.StopsCount)
}

func runImport(ctx context.Context, builder *graph.Builder, log logger.Logger, path, name string, rebuildIndex bool, entry *models.ImportLog) error {
	startTime := time.Now()

	log.Info("step 1/3: parsing schedule", "file", path)
	trains, err := schedule.NewParser(log).Load(path)
	if err != nil {
		return fmt.Errorf("failed to parse schedule: %w", err)
	}
	if len(trains) == 0 {
		return fmt.Errorf("schedule %s contains no trains", path)
	}

	tt := graph.NewTimetable(name, trains)
	entry.TrainsCount = len(tt.Trains)

	log.Info("step 2/3: saving stops", "trains", entry.TrainsCount)
	stops, err := builder.SaveTimetable(ctx, tt)
	if err != nil {
		return fmt.Errorf("failed to save timetable: %w", err)
	}
	entry.StopsCount = stops

	if rebuildIndex {
		log.Info("step 3/3: rebuilding station index")
		occurrences, err := builder.RebuildStationIndex(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to rebuild station index: %w", err)
		}
		if err := builder.Analyze(ctx); err != nil {
			log.Warn("failed to analyze tables", "error", err)
		}
		log.Info("station index rebuilt", "occurrences", occurrences)
	} else {
		log.Info("step 3/3: skipping station index rebuild")
	}

	log.Info("import finished", "duration", time.Since(startTime).String())
	return nil
}

func createImportLog(ctx context.Context, pool *pgxpool.Pool, name string) (*models.ImportLog, error) {
	entry := &models.ImportLog{Schedule: name, Status: "running"}
	err := pool.QueryRow(ctx, `
		INSERT INTO import_log (schedule, status)
		VALUES ($1, $2)
		RETURNING id, started_at
	`, name, entry.Status).Scan(&entry.ID, &entry.StartedAt)

	return entry, err
}

func finishImportLog(ctx context.Context, pool *pgxpool.Pool, entry *models.ImportLog) error {
	message := entry.ErrorMsg
	if entry.Status == "success" {
		message = fmt.Sprintf("Imported %d trains, %d stops", entry.TrainsCount, entry.StopsCount)
	}

	completed := time.Now()
	entry.CompletedAt = &completed

	_, err := pool.Exec(ctx, `
		UPDATE import_log
		SET completed_at = $2,
		    status = $3,
		    message = $4
		WHERE id = $1
	`, entry.ID, completed, entry.Status, message)

	return err
}
