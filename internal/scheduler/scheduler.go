package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the sweep and the retention purge on cron specs.
type Scheduler struct {
	cron      *cron.Cron
	sweeper   *Sweeper
	sweepSpec string
	purgeSpec string
	logger    *zap.Logger
}

// NewScheduler creates a scheduler evaluating specs in loc.
func NewScheduler(sweeper *Sweeper, sweepSpec, purgeSpec string, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		sweeper:   sweeper,
		sweepSpec: sweepSpec,
		purgeSpec: purgeSpec,
		logger:    logger.Named("scheduler"),
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.sweepSpec, s.sweep); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.sweepSpec, err)
	}
	if s.purgeSpec != "" {
		if _, err := s.cron.AddFunc(s.purgeSpec, s.purge); err != nil {
			return fmt.Errorf("schedule retention %q: %w", s.purgeSpec, err)
		}
	}

	s.logger.Info("starting scheduler", zap.String("sweep", s.sweepSpec), zap.String("retention", s.purgeSpec))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	if _, err := s.sweeper.Run(ctx); err != nil {
		if errors.Is(err, ErrSweepRunning) {
			s.logger.Debug("previous sweep still running")
			return
		}
		s.logger.Error("sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := s.sweeper.PurgeExpired(ctx); err != nil {
		s.logger.Error("retention purge failed", zap.Error(err))
	}
}
