package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/passbi/railroute/internal/config"
	"github.com/passbi/railroute/internal/db"
	"github.com/passbi/railroute/internal/graph"
	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/routing"
	"github.com/passbi/railroute/internal/solver"
)

var modeFiles = map[string][2]string{
	"examples":   {"example-problems.csv", "example-solutions.csv"},
	"assignment": {"problems.csv", "solutions.csv"},
}

func main() {
	mode := flag.String("mode", "", "Problem set to solve: examples or assignment (required)")
	forceSchedule := flag.String("force-schedule", "", "Solve every problem against this schedule (file name under schedules.dir)")
	configPath := flag.String("config", "", "Path to YAML config file")
	workers := flag.Int("workers", 0, "Concurrent searches (defaults to solver.workers from config)")
	flag.Parse()

	files, ok := modeFiles[*mode]
	if !ok {
		fmt.Println("Usage: railroute-solve --mode=examples|assignment [--force-schedule=<file>] [--workers=N] [--config=<config.yml>]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	problemFile, solutionFile := files[0], files[1]

	envErr := godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Solver.Workers = *workers
	}

	log := logger.New(cfg.Logging.Logger()).With("run_id", uuid.NewString(), "mode", *mode)
	if envErr != nil {
		log.Debug("no .env file loaded", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	problems, err := solver.ReadProblemsFile(problemFile)
	if err != nil {
		log.Fatal("failed to read problems", "file", problemFile, "error", err)
	}
	if *forceSchedule != "" {
		for i := range problems {
			problems[i].Schedule = *forceSchedule
		}
		log.Info("schedule forced for all problems", "schedule", *forceSchedule)
	}
	log.Info("problems loaded", "file", problemFile, "count", len(problems))

	var loader graph.Loader = graph.NewFileLoader(cfg.Schedules.Dir, log)
	if cfg.Schedules.Source == "db" {
		pool, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to database", "error", err)
		}
		defer pool.Close()
		loader = graph.NewDBLoader(pool)
	}

	start := time.Now()
	s := solver.NewSolver(graph.NewStore(loader, log), routing.NewRouter(log), log)
	solutions, err := s.SolveAll(ctx, problems, cfg.Solver.Workers)
	if err != nil {
		log.Fatal("batch aborted", "error", err)
	}

	if err := solver.WriteSolutionsFile(solutionFile, solutions); err != nil {
		log.Fatal("failed to write solutions", "file", solutionFile, "error", err)
	}
	log.Info("solutions written",
		"file", solutionFile,
		"count", len(solutions),
		"duration", time.Since(start).String(),
	)
}
