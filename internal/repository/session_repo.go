package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/buyback/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SessionRepository handles all database operations for TWAP sessions.
// The store is the single source of truth: no caller may cache session state
// across invocations. All per-session mutations go through row locks or
// guarded single-statement UPDATEs so a concurrent reader never observes a
// partial update.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// DB exposes the underlying handle for services that open transactions.
func (r *SessionRepository) DB() *sqlx.DB { return r.db }

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *domain.TWAPSession) error {
	query := `
		INSERT INTO twap_sessions
			(id, user_address, status, deposit_tx_hash, deposited_amount, deposit_confirmed,
			 total_amount, num_trades, amount_per_trade, interval_minutes, slippage_bps,
			 trades_completed, total_move_received, last_error,
			 next_trade_at, expires_at, created_at, started_at, updated_at)
		VALUES
			(:id, :user_address, :status, :deposit_tx_hash, :deposited_amount, :deposit_confirmed,
			 :total_amount, :num_trades, :amount_per_trade, :interval_minutes, :slippage_bps,
			 :trades_completed, :total_move_received, :last_error,
			 :next_trade_at, :expires_at, :created_at, :started_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, query, s)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrDuplicateSession
		}
		return fmt.Errorf("session_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a session by its primary key.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TWAPSession, error) {
	var s domain.TWAPSession
	err := r.db.GetContext(ctx, &s, `SELECT * FROM twap_sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("session_repo.GetByID: %w", err)
	}
	return &s, nil
}

// GetForUpdate loads a session inside tx with a FOR UPDATE row lock.
// Used by RecordTrade so concurrent executor invocations serialize on the row.
func (r *SessionRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.TWAPSession, error) {
	var s domain.TWAPSession
	err := tx.GetContext(ctx, &s, `SELECT * FROM twap_sessions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("session_repo.GetForUpdate: %w", err)
	}
	return &s, nil
}

// ListByUser returns all sessions for a wallet address, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userAddress string) ([]*domain.TWAPSession, error) {
	var sessions []*domain.TWAPSession
	err := r.db.SelectContext(ctx, &sessions,
		`SELECT * FROM twap_sessions WHERE user_address = $1 ORDER BY created_at DESC`,
		userAddress)
	if err != nil {
		return nil, fmt.Errorf("session_repo.ListByUser: %w", err)
	}
	return sessions, nil
}

// GetOpenByUser returns the user's session in awaiting_deposit or active
// state, if any. At most one exists (enforced by the lifecycle manager).
func (r *SessionRepository) GetOpenByUser(ctx context.Context, userAddress string) (*domain.TWAPSession, error) {
	var s domain.TWAPSession
	err := r.db.GetContext(ctx, &s,
		`SELECT * FROM twap_sessions
		 WHERE user_address = $1 AND status IN ('awaiting_deposit','active')
		 ORDER BY created_at DESC LIMIT 1`,
		userAddress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("session_repo.GetOpenByUser: %w", err)
	}
	return &s, nil
}

// List returns a paginated slice of sessions filtered by optional status.
// status="" returns all statuses. Returns (sessions, totalCount, error).
func (r *SessionRepository) List(ctx context.Context, limit, offset int, status string) ([]*domain.TWAPSession, int, error) {
	var sessions []*domain.TWAPSession
	var total int

	if status != "" {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM twap_sessions WHERE status = $1`, status); err != nil {
			return nil, 0, fmt.Errorf("session_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &sessions,
			`SELECT * FROM twap_sessions WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("session_repo.List select: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM twap_sessions`); err != nil {
			return nil, 0, fmt.Errorf("session_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &sessions,
			`SELECT * FROM twap_sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset); err != nil {
			return nil, 0, fmt.Errorf("session_repo.List select: %w", err)
		}
	}
	return sessions, total, nil
}

// DueForExecution returns every session eligible for a trade right now.
// This is the sole selection predicate the scheduler relies on and is always
// computed fresh against the store — never cached.
func (r *SessionRepository) DueForExecution(ctx context.Context, now time.Time) ([]*domain.TWAPSession, error) {
	var sessions []*domain.TWAPSession
	err := r.db.SelectContext(ctx, &sessions,
		`SELECT * FROM twap_sessions
		 WHERE status = 'active'
		   AND deposit_confirmed
		   AND next_trade_at IS NOT NULL
		   AND next_trade_at <= $1
		   AND trades_completed < num_trades
		   AND expires_at > $1
		 ORDER BY next_trade_at ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("session_repo.DueForExecution: %w", err)
	}
	return sessions, nil
}

// MarkExpired sweeps every non-terminal session past its expiry window,
// marking it failed. Returns the number of sessions affected; running it
// twice without time passing affects nothing the second time.
func (r *SessionRepository) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE twap_sessions
		SET status        = 'failed',
		    last_error    = $1,
		    next_trade_at = NULL,
		    updated_at    = now()
		WHERE expires_at < $2
		  AND status NOT IN ('completed','failed','cancelled')`,
		domain.ExpiredSessionError, now)
	if err != nil {
		return 0, fmt.Errorf("session_repo.MarkExpired: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ConfirmDeposit persists the awaiting_deposit → active transition. The
// WHERE clause doubles as the state guard: zero rows means the session was
// not awaiting a deposit (or does not exist).
func (r *SessionRepository) ConfirmDeposit(ctx context.Context, s *domain.TWAPSession) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE twap_sessions
		SET status            = 'active',
		    deposit_tx_hash   = $1,
		    deposited_amount  = $2,
		    deposit_confirmed = TRUE,
		    started_at        = $3,
		    next_trade_at     = $3,
		    updated_at        = now()
		WHERE id = $4 AND status = 'awaiting_deposit'`,
		s.DepositTxHash, s.DepositedAmount, s.StartedAt, s.ID)
	if err != nil {
		return fmt.Errorf("session_repo.ConfirmDeposit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// UpdateStatus persists a manual transition (pause/resume/cancel), guarded by
// the set of statuses the transition is legal from.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.SessionStatus, nextTradeAt *time.Time, from ...domain.SessionStatus) error {
	states := make(pq.StringArray, len(from))
	for i, st := range from {
		states[i] = string(st)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE twap_sessions
		SET status        = $1,
		    next_trade_at = $2,
		    updated_at    = now()
		WHERE id = $3 AND status = ANY($4)`,
		to, nextTradeAt, id, states)
	if err != nil {
		return fmt.Errorf("session_repo.UpdateStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// ApplyTrade persists the progress fields produced by domain.ApplyTrade,
// within the caller's transaction (which also inserted the trade record).
func (r *SessionRepository) ApplyTrade(ctx context.Context, tx *sqlx.Tx, s *domain.TWAPSession) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE twap_sessions
		SET status              = $1,
		    trades_completed    = $2,
		    total_move_received = $3,
		    last_error          = $4,
		    next_trade_at       = $5,
		    updated_at          = now()
		WHERE id = $6`,
		s.Status, s.TradesCompleted, s.TotalMoveReceived, s.LastError, s.NextTradeAt, s.ID)
	if err != nil {
		return fmt.Errorf("session_repo.ApplyTrade: %w", err)
	}
	return nil
}

// CountByStatus aggregates session counts for the backoffice dashboard.
func (r *SessionRepository) CountByStatus(ctx context.Context) (map[domain.SessionStatus]int, error) {
	type row struct {
		Status domain.SessionStatus `db:"status"`
		Count  int                  `db:"count"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM twap_sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session_repo.CountByStatus: %w", err)
	}
	counts := make(map[domain.SessionStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// VolumeStats holds aggregate USDC-in / MOVE-out totals for the dashboard.
type VolumeStats struct {
	TotalDeposited string `db:"total_deposited" json:"total_deposited"`
	TotalReceived  string `db:"total_received"  json:"total_received"`
	Completed      int    `db:"completed"       json:"completed_sessions"`
}

// GetVolumeStats aggregates deposit and buyback volume across all sessions.
// Values are kept as strings to preserve decimal precision for JSON.
func (r *SessionRepository) GetVolumeStats(ctx context.Context) (*VolumeStats, error) {
	var v VolumeStats
	err := r.db.GetContext(ctx, &v, `
		SELECT
			COALESCE(SUM(deposited_amount), 0)::text            AS total_deposited,
			COALESCE(SUM(total_move_received), 0)::text         AS total_received,
			COUNT(*) FILTER (WHERE status = 'completed')        AS completed
		FROM twap_sessions`)
	if err != nil {
		return nil, fmt.Errorf("session_repo.GetVolumeStats: %w", err)
	}
	return &v, nil
}
