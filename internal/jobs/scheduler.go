// Package jobs runs the per-tenant background work (alert checks and
// retention archival) on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of scheduled work
type Job interface {
	Name() string
	Run()
}

// Entry describes one registered job
type Entry struct {
	Name     string
	Schedule string
	Next     time.Time
}

// Scheduler runs registered jobs on cron expressions with a leading seconds
// field ("0 */15 * * * *", "0 0 3 * * *", "@every 1h"). A run that is still
// in progress when the next tick fires causes that tick to be skipped, and a
// panicking job is logged instead of crashing the process.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]registered
}

type registered struct {
	id       cron.EntryID
	schedule string
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger: logger.Named("cron")}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		logger:  logger,
		entries: make(map[string]registered),
	}
}

// Register schedules job under its name. Names are unique.
func (s *Scheduler) Register(schedule string, job Job) error {
	name := job.Name()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s is already registered", name)
	}

	id, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		s.logger.Info("job started", zap.String("job", name))
		job.Run()
		s.logger.Info("job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}
	s.entries[name] = registered{id: id, schedule: schedule}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// Unregister stops scheduling the named job. A run in progress completes.
func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("job %s is not registered", name)
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	return nil
}

// Entries lists the registered jobs by name. Next is zero until Start.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, Entry{Name: name, Schedule: e.schedule, Next: s.cron.Entry(e.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) Start() {
	s.logger.Info("starting job scheduler", zap.Int("jobs", len(s.Entries())))
	s.cron.Start()
}

// Stop stops scheduling new runs. The returned context is done once running
// jobs have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("stopping job scheduler")
	return s.cron.Stop()
}

// cronLogger routes cron's own messages (skips, recovered panics) to zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
