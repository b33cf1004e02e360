// Package scheduler runs recurring discovery jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a scheduled task. ctx ends when the run times out or the scheduler's
// parent context is canceled.
type Job func(ctx context.Context) error

// Scheduler manages periodic jobs. A run that is still in progress when its
// next tick arrives causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler whose runs derive from ctx. timeout bounds each run;
// zero means no bound.
func New(ctx context.Context, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		timeout: timeout,
		logger:  logger,
		jobs:    make(map[string]cron.EntryID),
	}
}

// AddJob registers job under name. schedule accepts the standard five-field
// format and descriptors such as "@hourly" or "@every 30m".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(name, job); err != nil {
			s.logger.Error("job failed", "job", name, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", name, schedule, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.logger.Info("job scheduled", "job", name, "schedule", schedule)
	return nil
}

// RunNow executes job immediately on the calling goroutine.
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

// Next returns the next activation of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	return e.Next, e.Valid()
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
	}
	defer cancel()

	start := time.Now()
	s.logger.Debug("job started", "job", name)
	if err := job(ctx); err != nil {
		return err
	}
	s.logger.Info("job completed", "job", name, "duration", time.Since(start))
	return nil
}
