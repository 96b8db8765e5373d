// pkg/scheduler/scheduler.go

// Package scheduler fires pipeline runs and housekeeping jobs on cron expressions
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expressions take an optional leading seconds field and descriptors such as @daily
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job is a scheduled unit of work
type Job func(ctx context.Context) error

// EntryInfo describes a registered job
type EntryInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// Scheduler wraps a cron runner. A job still running when its next tick
// arrives skips that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]entry
}

type entry struct {
	id   cron.EntryID
	spec string
}

// New creates a scheduler evaluating expressions in loc
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger.Sugar()}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[string]entry),
	}
}

// Validate reports whether spec parses
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Register adds job under name. Names are unique.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", spec, name, err)
	}
	s.entries[name] = entry{id: id, spec: spec}

	s.logger.Info("Registered job", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info("Job started", zap.String("job", name))
	if err := job(ctx); err != nil {
		s.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Info("Job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

// Entries lists registered jobs with their next fire time, sorted by name
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, EntryInfo{Name: name, Spec: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start runs the scheduler until ctx is done, then waits for running jobs.
// Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.Entries())))

	<-ctx.Done()

	s.logger.Info("Stopping scheduler, waiting for running jobs")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
