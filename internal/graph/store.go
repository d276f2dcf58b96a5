package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/passbi/railroute/internal/logger"
	"github.com/passbi/railroute/internal/models"
	"github.com/passbi/railroute/internal/schedule"
	"golang.org/x/sync/singleflight"
)

// ErrScheduleNotFound is returned when a schedule name cannot be resolved
var ErrScheduleNotFound = errors.New("schedule not found")

// Loader produces the trains of a named schedule
type Loader interface {
	Load(ctx context.Context, name string) (map[string]*models.Train, error)
}

// FileLoader loads schedules from CSV files under a directory
type FileLoader struct {
	Dir    string
	parser *schedule.Parser
}

// NewFileLoader creates a loader resolving relative schedule names against dir
func NewFileLoader(dir string, log logger.Logger) *FileLoader {
	return &FileLoader{Dir: dir, parser: schedule.NewParser(log)}
}

// Load reads and normalizes a schedule file. Names must stay inside Dir.
func (l *FileLoader) Load(ctx context.Context, name string) (map[string]*models.Train, error) {
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, name)
	}
	path := filepath.Join(l.Dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, path)
		}
		return nil, err
	}
	return l.parser.Load(path)
}

// Store caches timetables by schedule name for the lifetime of a run.
// Concurrent requests for the same schedule share a single load.
type Store struct {
	mu         sync.RWMutex
	timetables map[string]*Timetable
	loader     Loader
	group      singleflight.Group
	log        logger.Logger
}

// NewStore creates an empty store backed by loader
func NewStore(loader Loader, log logger.Logger) *Store {
	return &Store{
		timetables: make(map[string]*Timetable),
		loader:     loader,
		log:        log,
	}
}

// Get returns the cached timetable for name, loading it on first use
func (s *Store) Get(ctx context.Context, name string) (*Timetable, error) {
	s.mu.RLock()
	tt, ok := s.timetables[name]
	s.mu.RUnlock()
	if ok {
		return tt, nil
	}

	v, err, _ := s.group.Do(name, func() (interface{}, error) {
		// another caller may have finished loading while we waited
		s.mu.RLock()
		tt, ok := s.timetables[name]
		s.mu.RUnlock()
		if ok {
			return tt, nil
		}

		start := time.Now()
		trains, err := s.loader.Load(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load schedule %s: %w", name, err)
		}
		tt = NewTimetable(name, trains)

		s.mu.Lock()
		s.timetables[name] = tt
		s.mu.Unlock()

		s.log.Info("schedule loaded",
			"schedule", name,
			"trains", len(tt.Trains),
			"stations", len(tt.Stations),
			"duration", time.Since(start).String(),
		)
		return tt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Timetable), nil
}

// Put stores an already built timetable under its name
func (s *Store) Put(tt *Timetable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timetables[tt.Name] = tt
}

// Names returns the loaded schedule names in sorted order
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.timetables))
	for name := range s.timetables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
