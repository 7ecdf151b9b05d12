// Package scheduler runs collection passes on a fixed interval. Each pass
// resumes from the checkpoint, so a schedule like "every 6h" steadily fills
// in whatever earlier passes could not finish.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"weathercollect/pkg/logger"
)

// RunFunc performs one collection pass.
type RunFunc func(ctx context.Context) error

// Scheduler triggers a RunFunc periodically.
type Scheduler struct {
	scheduler *gocron.Scheduler
	run       RunFunc
	interval  time.Duration
	timeout   time.Duration
	logger    logger.Logger
}

// New creates a scheduler that invokes run every interval. timeout bounds a
// single pass; zero means no bound.
func New(run RunFunc, interval, timeout time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A pass that overruns its interval must not stack a second pass on
	// top of the same checkpoint files
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		run:       run,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.GetLogger(),
	}
}

// Start schedules the periodic pass, runs the first one immediately, and
// returns without blocking.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(func() {
		ctx := context.Background()
		cancel := func() {}
		if s.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		defer cancel()

		s.logger.InfoWithFields("Starting scheduled collection pass", map[string]interface{}{
			"interval": s.interval.String(),
		})
		started := time.Now()
		if err := s.run(ctx); err != nil {
			s.logger.ErrorWithFields("Scheduled collection pass failed", map[string]interface{}{
				"error":    err.Error(),
				"duration": time.Since(started).String(),
			})
			return
		}
		s.logger.InfoWithFields("Scheduled collection pass finished", map[string]interface{}{
			"duration": time.Since(started).String(),
		})
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop halts the scheduler. A pass already running is not interrupted;
// callers that need that should cancel through the RunFunc's context.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
