package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/logger"
)

var requiredTables = []string{"schedule", "schedule_stop", "station_occurrence", "import_log"}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Logger())

	log.Info("testing database connection",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"user", cfg.Database.User,
		"database", cfg.Database.Name,
	)

	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal("failed to create connection", "error", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("failed to ping database", "error", err)
	}
	log.Info("connection successful")

	var pgVersion string
	if err := db.QueryRow("SELECT version()").Scan(&pgVersion); err != nil {
		log.Warn("could not get PostgreSQL version", "error", err)
	} else {
		log.Info("postgres version", "version", pgVersion)
	}

	rows, err := db.Query(`
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = 'public'
		ORDER BY tablename
	`)
	if err != nil {
		log.Fatal("could not list tables", "error", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var tablename string
		if err := rows.Scan(&tablename); err != nil {
			continue
		}
		present[tablename] = true
	}

	missing := 0
	for _, table := range requiredTables {
		if !present[table] {
			log.Warn("table missing", "table", table)
			missing++
		}
	}
	if missing > 0 {
		log.Warn("schema incomplete, run the importer to create it", "missing", missing)
		os.Exit(2)
	}

	var schedules int
	if err := db.QueryRow("SELECT COUNT(*) FROM schedule").Scan(&schedules); err != nil {
		log.Fatal("failed to count schedules", "error", err)
	}
	log.Info("connection test completed", "tables", len(present), "schedules", schedules)
}
