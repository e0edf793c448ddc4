package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ──────────────────────────────────────────────────────────────────────────────
// Metrics
// ──────────────────────────────────────────────────────────────────────────────

var (
	cyclePassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buyback_cycle_passes_total",
		Help: "Scheduler passes by outcome (ok, rate_limited, error).",
	}, []string{"outcome"})

	cycleTradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buyback_cycle_trades_total",
		Help: "Trades attempted by scheduler passes, by result.",
	}, []string{"result"})

	cycleSessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buyback_cycle_sessions_expired_total",
		Help: "Sessions failed by the expiration sweep.",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buyback_cycle_duration_seconds",
		Help:    "Wall-clock duration of one full scheduler pass.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into CycleService
// ──────────────────────────────────────────────────────────────────────────────

// TradeExecutor is implemented by TradeService.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, sessionID uuid.UUID) (*domain.TradeRecord, error)
}

// SessionSweeper is the slice of SessionService a pass needs.
type SessionSweeper interface {
	DueSessions(ctx context.Context, now time.Time) ([]*domain.TWAPSession, error)
	CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// RunGate is implemented by repository.SchedulerStateRepository.
type RunGate interface {
	TryAcquireRun(ctx context.Context, now time.Time, minInterval time.Duration) (bool, time.Duration, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// CycleService
// ──────────────────────────────────────────────────────────────────────────────

// RateLimitedError reports that a pass was refused because the previous one
// ran too recently. RetryAfter is surfaced to HTTP callers as a header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("scheduler invoked too soon, retry after %s", e.RetryAfter)
}

// Unwrap makes errors.Is(err, domain.ErrRateLimited) hold.
func (e *RateLimitedError) Unwrap() error { return domain.ErrRateLimited }

// CycleReport summarizes one scheduler pass for the trigger response.
type CycleReport struct {
	Expired    int   `json:"expired_sessions"`
	Due        int   `json:"due_sessions"`
	Executed   int   `json:"executed"`
	Successful int   `json:"successful"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// CycleService runs one scheduler pass: rate-gate, expire, scan, execute.
// It is stateless between passes — every decision is made against fresh
// store state, so any number of instances can host it concurrently.
type CycleService struct {
	gate          RunGate
	sessions      SessionSweeper
	trades        TradeExecutor
	executorReady bool
	cfg           *config.Config
}

// NewCycleService creates a CycleService. executorReady=false (no signing
// key configured) turns every pass into ErrExecutorNotConfigured.
func NewCycleService(gate RunGate, sessions SessionSweeper, trades TradeExecutor, executorReady bool, cfg *config.Config) *CycleService {
	return &CycleService{
		gate:          gate,
		sessions:      sessions,
		trades:        trades,
		executorReady: executorReady,
		cfg:           cfg,
	}
}

// Run executes one full pass. Due sessions are executed strictly one at a
// time: all trades ride the same executor wallet, and sequencing keeps its
// nonce usage conflict-free without retry machinery.
func (s *CycleService) Run(ctx context.Context) (*CycleReport, error) {
	if !s.executorReady {
		return nil, domain.ErrExecutorNotConfigured
	}

	now := time.Now().UTC()
	acquired, retryAfter, err := s.gate.TryAcquireRun(ctx, now, s.cfg.Cron.MinInterval)
	if err != nil {
		cyclePassesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("cycle_service.Run: acquire: %w", err)
	}
	if !acquired {
		cyclePassesTotal.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	started := time.Now()
	report := &CycleReport{}

	// ── 1. Expiration sweep ───────────────────────────────────────────────────
	expired, err := s.sessions.CleanupExpiredSessions(ctx, now)
	if err != nil {
		cyclePassesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("cycle_service.Run: expire sweep: %w", err)
	}
	report.Expired = expired
	if expired > 0 {
		cycleSessionsExpired.Add(float64(expired))
		log.Printf("[cycle] expired %d session(s)", expired)
	}

	// ── 2. Due scan ───────────────────────────────────────────────────────────
	due, err := s.sessions.DueSessions(ctx, now)
	if err != nil {
		cyclePassesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("cycle_service.Run: due scan: %w", err)
	}
	report.Due = len(due)

	// ── 3. Sequential execution ───────────────────────────────────────────────
	for _, session := range due {
		trade, execErr := s.executeOne(ctx, session.ID)
		switch {
		case execErr == nil && trade.Status == domain.TradeSuccess:
			report.Executed++
			report.Successful++
			cycleTradesTotal.WithLabelValues("success").Inc()
		case execErr == nil:
			report.Executed++
			report.Failed++
			cycleTradesTotal.WithLabelValues("failed").Inc()
		default:
			// Pre-check rejections (no longer due) and panics land here; the
			// session was not charged, so nothing is counted as executed.
			cycleTradesTotal.WithLabelValues("skipped").Inc()
			log.Printf("[cycle] session %s skipped: %v", session.ID, execErr)
		}
	}

	report.DurationMs = time.Since(started).Milliseconds()
	cycleDuration.Observe(time.Since(started).Seconds())
	cyclePassesTotal.WithLabelValues("ok").Inc()
	log.Printf("[cycle] pass done: due=%d executed=%d ok=%d failed=%d expired=%d in %dms",
		report.Due, report.Executed, report.Successful, report.Failed, report.Expired, report.DurationMs)
	return report, nil
}

// executeOne isolates a single session's execution: a panic in one trade
// must not take down the rest of the pass.
func (s *CycleService) executeOne(ctx context.Context, sessionID uuid.UUID) (trade *domain.TradeRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle_service.executeOne: panic on session %s: %v", sessionID, r)
		}
	}()
	return s.trades.ExecuteTrade(ctx, sessionID)
}
