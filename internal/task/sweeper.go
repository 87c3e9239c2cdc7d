package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the retention sweep hourly.
const DefaultSweepSchedule = "@every 1h"

// Ticker is anything that does periodic maintenance at a given time.
type Ticker interface {
	Tick(now time.Time) int
}

// Sweeper drives a Ticker on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper parses schedule (standard cron or @every descriptors) and binds
// it to ticker. The sweeper does nothing until Start.
func NewSweeper(ticker Ticker, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Sweeper{
		cron:   cron.New(),
		logger: logger.With("component", "cache_sweeper"),
	}

	_, err := s.cron.AddFunc(schedule, func() {
		evicted := ticker.Tick(time.Now())
		s.logger.Debug("cache sweep finished", "evicted", evicted)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("cache sweeper started")
}

// Stop halts the schedule and waits for a running sweep or until ctx ends.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("cache sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
