package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Sweeper evicts sessions that ended or went idle
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) int
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   Sweeper
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new scheduler instance
func New(sweeper Sweeper, ttl time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sweeper:   sweeper,
		ttl:       ttl,
		logger:    logger.Named("scheduler"),
		now:       time.Now,
	}
}

// Start begins sweeping every interval
func (s *Scheduler) Start(interval time.Duration) error {
	// A slow sweep is never overlapped by the next one
	_, err := s.scheduler.Every(interval).SingletonMode().Do(func() { s.sweep() })
	if err != nil {
		return fmt.Errorf("failed to schedule session janitor: %w", err)
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunManualCheck forces a sweep and returns the number of evicted sessions
func (s *Scheduler) RunManualCheck() int {
	return s.sweep()
}

func (s *Scheduler) sweep() int {
	n := s.sweeper.Sweep(context.Background(), s.now(), s.ttl)
	if n > 0 {
		s.logger.Info("evicted sessions", zap.Int("count", n), zap.Duration("ttl", s.ttl))
	}
	return n
}
