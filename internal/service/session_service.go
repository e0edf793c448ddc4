package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into SessionService to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// Broadcaster is the minimal interface SessionService needs from the WS hub.
// Implemented by ws.Hub.
type Broadcaster interface {
	BroadcastSessionUpdate(s *domain.TWAPSession)
	BroadcastTradeExecuted(s *domain.TWAPSession, t *domain.TradeRecord)
}

// ──────────────────────────────────────────────────────────────────────────────
// SessionService
// ──────────────────────────────────────────────────────────────────────────────

// SessionService owns the TWAP session lifecycle: creation, deposit
// confirmation, the user-facing pause/resume/cancel transitions, and the
// transactional fold of trade outcomes into session progress. It is the only
// writer of session state; the trade executor reports outcomes through
// RecordTrade and never touches rows directly.
type SessionService struct {
	db          *sqlx.DB
	sessionRepo *repository.SessionRepository
	tradeRepo   *repository.TradeRepository
	cfg         *config.Config
	executor    string      // executor wallet address shown in deposit instructions; "" = not configured
	broadcaster Broadcaster // injected after WS Hub is built
}

// NewSessionService creates a SessionService. executorAddress may be empty
// when no executor key is configured; creation then still works but deposit
// instructions carry no address and no trades execute.
func NewSessionService(
	db *sqlx.DB,
	sessionRepo *repository.SessionRepository,
	tradeRepo *repository.TradeRepository,
	cfg *config.Config,
	executorAddress string,
) *SessionService {
	return &SessionService{
		db:          db,
		sessionRepo: sessionRepo,
		tradeRepo:   tradeRepo,
		cfg:         cfg,
		executor:    executorAddress,
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *SessionService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// ExecutorAddress returns the deposit target address ("" when disabled).
func (s *SessionService) ExecutorAddress() string { return s.executor }

// ──────────────────────────────────────────────────────────────────────────────
// CreateSession
// ──────────────────────────────────────────────────────────────────────────────

// CreateSession validates the plan, enforces the one-open-session-per-user
// policy, and inserts a new awaiting_deposit session.
//
// When the user already has an open session the existing one is returned with
// created=false instead of an error: the client treats creation as
// idempotent and resumes the deposit flow against the session it gets back.
func (s *SessionService) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.TWAPSession, bool, error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if !common.IsHexAddress(req.UserAddress) {
		return nil, false, domain.ErrInvalidAddress
	}
	userAddress := common.HexToAddress(req.UserAddress).Hex()

	minTotal := decimal.NewFromFloat(s.cfg.Session.MinTotalAmount)
	maxTotal := decimal.NewFromFloat(s.cfg.Session.MaxTotalAmount)
	if req.TotalAmount.LessThan(minTotal) || req.TotalAmount.GreaterThan(maxTotal) {
		return nil, false, domain.ErrAmountOutOfRange
	}
	if req.NumTrades < 1 || req.NumTrades > s.cfg.Session.MaxTrades {
		return nil, false, domain.ErrTradesOutOfRange
	}
	if req.IntervalMinutes < s.cfg.Session.MinIntervalMinutes {
		return nil, false, domain.ErrIntervalTooShort
	}
	if req.SlippageBps < 1 || req.SlippageBps > s.cfg.Session.MaxSlippageBps {
		return nil, false, domain.ErrSlippageOutOfRange
	}

	// ── 2. One open session per user ─────────────────────────────────────────
	existing, err := s.sessionRepo.GetOpenByUser(ctx, userAddress)
	if err == nil {
		return existing, false, nil
	}
	if !domain.IsNotFound(err) {
		return nil, false, fmt.Errorf("session_service.CreateSession: check open: %w", err)
	}

	// ── 3. Insert ─────────────────────────────────────────────────────────────
	session := domain.NewSession(
		userAddress,
		req.TotalAmount,
		req.NumTrades,
		req.IntervalMinutes,
		req.SlippageBps,
		s.cfg.Session.ExpiryBuffer,
	)
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, false, fmt.Errorf("session_service.CreateSession: %w", err)
	}
	return session, true, nil
}

// DepositInstructions builds the funding instructions returned with a newly
// created session.
func (s *SessionService) DepositInstructions(session *domain.TWAPSession) domain.DepositInstructions {
	return domain.DepositInstructions{
		ExecutorAddress: s.executor,
		Token:           s.cfg.Chain.USDCAddress,
		Note: fmt.Sprintf("Send %s USDC to the executor address, then confirm with the transaction hash.",
			session.TotalAmount.String()),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetSessionByID loads a single session. Also the fresh-state read the trade
// executor performs before every execution.
func (s *SessionService) GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.TWAPSession, error) {
	return s.sessionRepo.GetByID(ctx, id)
}

// GetSession loads a session with its trade history. The caller proves
// ownership with their wallet address; requests without one are rejected.
func (s *SessionService) GetSession(ctx context.Context, id uuid.UUID, requesterAddress string) (*domain.SessionResponse, error) {
	if err := checkRequester(requesterAddress); err != nil {
		return nil, err
	}
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(session, requesterAddress); err != nil {
		return nil, err
	}
	return s.sessionWithTrades(ctx, session)
}

// AdminGetSession loads a session with its trade history for the backoffice,
// which authenticates operators rather than wallet owners.
func (s *SessionService) AdminGetSession(ctx context.Context, id uuid.UUID) (*domain.SessionResponse, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sessionWithTrades(ctx, session)
}

func (s *SessionService) sessionWithTrades(ctx context.Context, session *domain.TWAPSession) (*domain.SessionResponse, error) {
	trades, err := s.tradeRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("session_service.GetSession: trades: %w", err)
	}
	return &domain.SessionResponse{TWAPSession: session, Trades: trades}, nil
}

// ListByUser returns a user's sessions, newest first.
func (s *SessionService) ListByUser(ctx context.Context, userAddress string) ([]*domain.TWAPSession, error) {
	if !common.IsHexAddress(userAddress) {
		return nil, domain.ErrInvalidAddress
	}
	return s.sessionRepo.ListByUser(ctx, common.HexToAddress(userAddress).Hex())
}

// AdminList returns a paginated status-filtered slice for the backoffice.
func (s *SessionService) AdminList(ctx context.Context, limit, offset int, status string) ([]*domain.TWAPSession, int, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.sessionRepo.List(ctx, limit, offset, status)
}

// ──────────────────────────────────────────────────────────────────────────────
// Lifecycle transitions
// ──────────────────────────────────────────────────────────────────────────────

// ConfirmDeposit transitions awaiting_deposit → active after the user reports
// their USDC transfer. The hash is format-validated and stored; amount is the
// client's claimed transfer size, recorded as-is and defaulting to the plan
// total when zero — the executor's token balance is the operational source of
// truth either way, and a short deposit simply fails trades.
func (s *SessionService) ConfirmDeposit(ctx context.Context, id uuid.UUID, requesterAddress, txHash string, amount decimal.Decimal) (*domain.TWAPSession, error) {
	if !domain.IsValidTxHash(txHash) {
		return nil, domain.ErrInvalidTxHash
	}
	if err := checkRequester(requesterAddress); err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(session, requesterAddress); err != nil {
		return nil, err
	}

	if amount.IsZero() {
		amount = session.TotalAmount
	}
	now := time.Now().UTC()
	if err := session.ConfirmDeposit(txHash, amount, now); err != nil {
		return nil, err
	}
	// Guarded UPDATE: a racing confirm loses on WHERE status='awaiting_deposit'.
	if err := s.sessionRepo.ConfirmDeposit(ctx, session); err != nil {
		return nil, err
	}

	s.broadcast(session)
	return session, nil
}

// Pause halts an active session; its NextTradeAt is retained so the paused
// state is inspectable, but the due predicate excludes non-active sessions.
func (s *SessionService) Pause(ctx context.Context, id uuid.UUID, requesterAddress string) (*domain.TWAPSession, error) {
	return s.transition(ctx, id, requesterAddress, applyPause, domain.StatusActive)
}

// Resume reactivates a paused session and makes it immediately due.
func (s *SessionService) Resume(ctx context.Context, id uuid.UUID, requesterAddress string) (*domain.TWAPSession, error) {
	return s.transition(ctx, id, requesterAddress, applyResume, domain.StatusPaused)
}

// Cancel voids a non-terminal session. Funds already swapped stay with the
// user; the undrawn USDC remainder is recoverable via the treasury withdraw.
func (s *SessionService) Cancel(ctx context.Context, id uuid.UUID, requesterAddress string) (*domain.TWAPSession, error) {
	return s.transition(ctx, id, requesterAddress, applyCancel,
		domain.StatusAwaitingDeposit, domain.StatusActive, domain.StatusPaused)
}

// AdminPause, AdminResume and AdminCancel run the same transitions on behalf
// of an operator, skipping the wallet ownership check. These are reachable
// only through the authenticated backoffice, never the public API.

func (s *SessionService) AdminPause(ctx context.Context, id uuid.UUID) (*domain.TWAPSession, error) {
	return s.adminTransition(ctx, id, applyPause, domain.StatusActive)
}

func (s *SessionService) AdminResume(ctx context.Context, id uuid.UUID) (*domain.TWAPSession, error) {
	return s.adminTransition(ctx, id, applyResume, domain.StatusPaused)
}

func (s *SessionService) AdminCancel(ctx context.Context, id uuid.UUID) (*domain.TWAPSession, error) {
	return s.adminTransition(ctx, id, applyCancel,
		domain.StatusAwaitingDeposit, domain.StatusActive, domain.StatusPaused)
}

func applyPause(session *domain.TWAPSession, now time.Time) error  { return session.Pause(now) }
func applyResume(session *domain.TWAPSession, now time.Time) error { return session.Resume(now) }
func applyCancel(session *domain.TWAPSession, now time.Time) error { return session.Cancel(now) }

// transition runs an ownership-checked domain transition. The requester
// address is validated before anything is read so a request with no address
// never reaches the store.
func (s *SessionService) transition(
	ctx context.Context,
	id uuid.UUID,
	requesterAddress string,
	apply func(*domain.TWAPSession, time.Time) error,
	from ...domain.SessionStatus,
) (*domain.TWAPSession, error) {
	if err := checkRequester(requesterAddress); err != nil {
		return nil, err
	}
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(session, requesterAddress); err != nil {
		return nil, err
	}
	return s.persistTransition(ctx, session, apply, from...)
}

// adminTransition is transition without the ownership check.
func (s *SessionService) adminTransition(
	ctx context.Context,
	id uuid.UUID,
	apply func(*domain.TWAPSession, time.Time) error,
	from ...domain.SessionStatus,
) (*domain.TWAPSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.persistTransition(ctx, session, apply, from...)
}

// persistTransition applies the domain transition and persists it with a
// from-status-guarded UPDATE so racing transitions cannot both win.
func (s *SessionService) persistTransition(
	ctx context.Context,
	session *domain.TWAPSession,
	apply func(*domain.TWAPSession, time.Time) error,
	from ...domain.SessionStatus,
) (*domain.TWAPSession, error) {
	now := time.Now().UTC()
	if err := apply(session, now); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.UpdateStatus(ctx, session.ID, session.Status, session.NextTradeAt, from...); err != nil {
		return nil, err
	}

	s.broadcast(session)
	return session, nil
}

// checkRequester validates the caller-supplied wallet address. Every public
// entry point requires one; operator surfaces go through the Admin* methods.
func checkRequester(requesterAddress string) error {
	if !common.IsHexAddress(requesterAddress) {
		return domain.ErrInvalidAddress
	}
	return nil
}

// checkOwner enforces that the requester owns the session. The address has
// already passed checkRequester.
func (s *SessionService) checkOwner(session *domain.TWAPSession, requesterAddress string) error {
	if common.HexToAddress(requesterAddress) != common.HexToAddress(session.UserAddress) {
		return domain.ErrForbidden
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler-facing operations
// ──────────────────────────────────────────────────────────────────────────────

// DueSessions returns every session eligible for a trade right now, computed
// fresh against the store.
func (s *SessionService) DueSessions(ctx context.Context, now time.Time) ([]*domain.TWAPSession, error) {
	return s.sessionRepo.DueForExecution(ctx, now)
}

// CleanupExpiredSessions fails every session past its expiry window. Safe to
// run on every scheduler pass; already-terminal sessions are untouched.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return s.sessionRepo.MarkExpired(ctx, now)
}

// RecordTrade persists one trade outcome and folds it into the session's
// progress, atomically. The session row is locked FOR UPDATE for the duration
// so two executor invocations racing on the same session serialize here: the
// loser re-reads state that already advanced and this trade still lands as an
// audit record against the refreshed session.
//
// This is the exactly-once accounting point: the trade executor calls it a
// single time per attempt, whatever the outcome.
func (s *SessionService) RecordTrade(ctx context.Context, trade *domain.TradeRecord) (*domain.TWAPSession, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("session_service.RecordTrade: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err := s.sessionRepo.GetForUpdate(ctx, tx, trade.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session_service.RecordTrade: lock session: %w", err)
	}

	now := time.Now().UTC()
	session.ApplyTrade(trade, now)

	if err = s.tradeRepo.Insert(ctx, tx, trade); err != nil {
		return nil, fmt.Errorf("session_service.RecordTrade: insert trade: %w", err)
	}
	if err = s.sessionRepo.ApplyTrade(ctx, tx, session); err != nil {
		return nil, fmt.Errorf("session_service.RecordTrade: update session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("session_service.RecordTrade: commit: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastTradeExecuted(session, trade)
	}
	return session, nil
}

// broadcast pushes a session update to connected clients, if a hub is wired.
func (s *SessionService) broadcast(session *domain.TWAPSession) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSessionUpdate(session)
	}
}
