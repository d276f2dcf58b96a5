package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/db"
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	name := flag.String("name", "", "Schedule name to rebuild (required)")
	yes := flag.Bool("yes", false, "Skip the confirmation prompt")
	flag.Parse()

	if *name == "" {
		fmt.Println("Usage: railroute-rebuild-index --name=<schedule> [--yes] [--config=<config.yml>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Logger()).With("schedule", *name)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer pool.Close()

	var stopCount int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM schedule_stop WHERE schedule = $1", *name).Scan(&stopCount); err != nil {
		log.Fatal("failed to count stops", "error", err)
	}
	if stopCount == 0 {
		log.Fatal("no stops stored for schedule, import it first")
	}
	log.Info("schedule statistics", "stops", stopCount)

	if !*yes {
		fmt.Printf("This will DELETE the station index of %s. Continue? (yes/no): ", *name)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer != "yes" && answer != "y" {
			log.Info("rebuild cancelled")
			return
		}
	}

	startTime := time.Now()
	builder := graph.NewBuilder(pool, log)
	occurrences, err := builder.RebuildStationIndex(ctx, *name)
	if err != nil {
		log.Fatal("failed to rebuild station index", "error", err)
	}
	if err := builder.Analyze(ctx); err != nil {
		log.Warn("failed to analyze tables", "error", err)
	}

	var stations int
	if err := pool.QueryRow(ctx, "SELECT COUNT(DISTINCT station) FROM station_occurrence WHERE schedule = $1", *name).Scan(&stations); err != nil {
		log.Warn("failed to count stations", "error", err)
	}

	log.Info("station index rebuilt",
		"occurrences", occurrences,
		"stations", stations,
		"duration", time.Since(startTime).String(),
	)
}
