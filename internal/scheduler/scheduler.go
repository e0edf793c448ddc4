// Package scheduler hosts the optional in-process execution loop. The
// canonical trigger for a pass is the HTTP endpoint hit by an external cron;
// this loop exists for self-hosted deployments with no platform cron. Both
// paths funnel into CycleService.Run, whose store-side gate keeps them from
// double-executing.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/service"
)

// CycleRunner is the single operation the loop needs from CycleService.
type CycleRunner interface {
	Run(ctx context.Context) (*service.CycleReport, error)
}

// Scheduler ticks CycleService.Run on a fixed period.
// Call Start(ctx) once from main(); cancel the context to shut it down.
type Scheduler struct {
	cycles CycleRunner
	cfg    *config.Config
	logger *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(cycles CycleRunner, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cycles: cycles,
		cfg:    cfg,
		logger: logger,
	}
}

// Start launches the execution loop goroutine when CRON_LOOP_ENABLED is set.
// It returns immediately; the loop runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Cron.LoopEnabled {
		s.logger.Info("scheduler loop disabled; passes run via the cron endpoint only")
		return
	}
	go s.executionLoop(ctx)
	s.logger.Info("scheduler loop started", "every", s.cfg.Cron.LoopEvery)
}

// executionLoop triggers one pass per tick. Rate-limit refusals are normal
// when an external cron fires in the same window and are logged at debug.
func (s *Scheduler) executionLoop(ctx context.Context) {
	defer s.recoverAndLog("executionLoop")

	ticker := time.NewTicker(s.cfg.Cron.LoopEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("executionLoop: shutting down")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce is the inner body of executionLoop, extracted so a panic in one
// pass never kills the loop.
func (s *Scheduler) runOnce(ctx context.Context) {
	defer s.recoverAndLog("runOnce")

	report, err := s.cycles.Run(ctx)
	switch {
	case err == nil:
		if report.Due > 0 || report.Expired > 0 {
			s.logger.Info("pass complete",
				"due", report.Due, "executed", report.Executed,
				"successful", report.Successful, "failed", report.Failed,
				"expired", report.Expired, "duration_ms", report.DurationMs)
		}
	case errors.Is(err, domain.ErrRateLimited):
		s.logger.Debug("pass skipped: another instance ran recently")
	case errors.Is(err, domain.ErrExecutorNotConfigured):
		s.logger.Warn("pass skipped: executor wallet not configured")
	default:
		s.logger.Error("pass failed", "err", err)
	}
}

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
