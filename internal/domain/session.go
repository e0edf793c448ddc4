// Package domain defines the core business entities and types for the
// MOVE buyback TWAP execution engine.
package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// SessionStatus represents the lifecycle state of a TWAP session.
type SessionStatus string

const (
	StatusAwaitingDeposit SessionStatus = "awaiting_deposit" // created, waiting for the user's USDC transfer
	StatusActive          SessionStatus = "active"           // deposit confirmed, trades being executed
	StatusPaused          SessionStatus = "paused"           // manually halted by the user
	StatusCompleted       SessionStatus = "completed"        // all planned trades executed
	StatusFailed          SessionStatus = "failed"           // expired or unrecoverable
	StatusCancelled       SessionStatus = "cancelled"        // voided by the user; terminal
)

// IsTerminal returns true for statuses that can never transition again.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ExpiredSessionError is the lastError text written by the expiration sweep.
const ExpiredSessionError = "Session expired"

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsValidTxHash reports whether s is a 0x-prefixed 32-byte hex transaction hash.
func IsValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// ──────────────────────────────────────────────────────────────────────────────
// TWAPSession
// ──────────────────────────────────────────────────────────────────────────────

// TWAPSession is one user-initiated buyback plan: a fixed USDC total split
// into NumTrades equal swaps executed IntervalMinutes apart by the backend
// executor wallet.
type TWAPSession struct {
	ID          uuid.UUID     `json:"id"           db:"id"`
	UserAddress string        `json:"user_address" db:"user_address"`
	Status      SessionStatus `json:"status"       db:"status"`

	// Deposit
	DepositTxHash    *string         `json:"deposit_tx_hash"   db:"deposit_tx_hash"`
	DepositedAmount  decimal.Decimal `json:"deposited_amount"  db:"deposited_amount"`
	DepositConfirmed bool            `json:"deposit_confirmed" db:"deposit_confirmed"`

	// Plan — immutable after creation.
	TotalAmount     decimal.Decimal `json:"total_amount"     db:"total_amount"`
	NumTrades       int             `json:"num_trades"       db:"num_trades"`
	AmountPerTrade  decimal.Decimal `json:"amount_per_trade" db:"amount_per_trade"`
	IntervalMinutes int             `json:"interval_minutes" db:"interval_minutes"`
	SlippageBps     int             `json:"slippage_bps"     db:"slippage_bps"`

	// Progress — mutated only via ApplyTrade.
	TradesCompleted   int             `json:"trades_completed"    db:"trades_completed"`
	TotalMoveReceived decimal.Decimal `json:"total_move_received" db:"total_move_received"`
	LastError         *string         `json:"last_error"          db:"last_error"`

	// Scheduling
	NextTradeAt *time.Time `json:"next_trade_at" db:"next_trade_at"`
	ExpiresAt   time.Time  `json:"expires_at"    db:"expires_at"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at" db:"started_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// NewSession builds an awaiting_deposit session from a validated plan.
// AmountPerTrade is computed exactly once here and never recomputed.
func NewSession(userAddress string, totalAmount decimal.Decimal, numTrades, intervalMinutes, slippageBps int, expiryBuffer time.Duration) *TWAPSession {
	now := time.Now().UTC()
	planSpan := time.Duration(numTrades*intervalMinutes) * time.Minute
	return &TWAPSession{
		ID:                uuid.New(),
		UserAddress:       userAddress,
		Status:            StatusAwaitingDeposit,
		DepositedAmount:   decimal.Zero,
		TotalAmount:       totalAmount,
		NumTrades:         numTrades,
		AmountPerTrade:    totalAmount.Div(decimal.NewFromInt(int64(numTrades))),
		IntervalMinutes:   intervalMinutes,
		SlippageBps:       slippageBps,
		TotalMoveReceived: decimal.Zero,
		ExpiresAt:         now.Add(planSpan + expiryBuffer),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Interval returns the configured spacing between trades.
func (s *TWAPSession) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// IsOpen returns true while the session still holds (or awaits) user funds,
// i.e. it counts against the single-active-session-per-user policy.
func (s *TWAPSession) IsOpen() bool {
	return s.Status == StatusAwaitingDeposit || s.Status == StatusActive
}

// IsExpired reports whether the session has outlived its execution window.
func (s *TWAPSession) IsExpired(now time.Time) bool {
	return !s.Status.IsTerminal() && s.ExpiresAt.Before(now)
}

// IsDue is the execution predicate the scheduler relies on: active, funded,
// scheduled, within the window, and with trades remaining.
func (s *TWAPSession) IsDue(now time.Time) bool {
	return s.Status == StatusActive &&
		s.DepositConfirmed &&
		s.NextTradeAt != nil &&
		!s.NextTradeAt.After(now) &&
		s.TradesCompleted < s.NumTrades &&
		s.ExpiresAt.After(now)
}

// ConfirmDeposit transitions awaiting_deposit → active. The first trade is
// scheduled at now so the next scheduler pass picks it up immediately.
func (s *TWAPSession) ConfirmDeposit(txHash string, amount decimal.Decimal, now time.Time) error {
	if s.Status != StatusAwaitingDeposit {
		return ErrInvalidTransition
	}
	s.Status = StatusActive
	s.DepositTxHash = &txHash
	s.DepositedAmount = amount
	s.DepositConfirmed = true
	s.StartedAt = &now
	s.NextTradeAt = &now
	s.UpdatedAt = now
	return nil
}

// Pause transitions active → paused.
func (s *TWAPSession) Pause(now time.Time) error {
	if s.Status != StatusActive {
		return ErrInvalidTransition
	}
	s.Status = StatusPaused
	s.UpdatedAt = now
	return nil
}

// Resume transitions paused → active and makes the session immediately due.
func (s *TWAPSession) Resume(now time.Time) error {
	if s.Status != StatusPaused {
		return ErrInvalidTransition
	}
	s.Status = StatusActive
	s.NextTradeAt = &now
	s.UpdatedAt = now
	return nil
}

// Cancel transitions any non-terminal status to cancelled.
func (s *TWAPSession) Cancel(now time.Time) error {
	if s.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	s.Status = StatusCancelled
	s.NextTradeAt = nil
	s.UpdatedAt = now
	return nil
}

// Expire marks a non-terminal session failed with the canonical expiry error.
func (s *TWAPSession) Expire(now time.Time) error {
	if s.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	msg := ExpiredSessionError
	s.Status = StatusFailed
	s.LastError = &msg
	s.NextTradeAt = nil
	s.UpdatedAt = now
	return nil
}

// ApplyTrade folds one trade outcome into the session's progress fields.
//
// On success: TradesCompleted increments, AmountOut is added to
// TotalMoveReceived, LastError clears, and either the session completes
// (NextTradeAt=nil) or the next trade is scheduled one interval out.
//
// On failure: LastError is set and — when trades remain — NextTradeAt still
// advances by one interval, so a single failed trade neither stalls the
// schedule nor causes a tight retry loop.
//
// A trade landing on a session that went terminal mid-flight (e.g. a racing
// cancel) is tolerated: the record itself is persisted by the caller for
// audit, but progress fields are left untouched.
func (s *TWAPSession) ApplyTrade(trade *TradeRecord, now time.Time) {
	if s.Status.IsTerminal() {
		return
	}

	if trade.Status == TradeSuccess {
		s.TradesCompleted++
		s.TotalMoveReceived = s.TotalMoveReceived.Add(trade.AmountOut)
		s.LastError = nil

		if s.TradesCompleted >= s.NumTrades {
			s.Status = StatusCompleted
			s.NextTradeAt = nil
		} else {
			next := now.Add(s.Interval())
			s.NextTradeAt = &next
		}
	} else {
		if trade.Error != nil {
			s.LastError = trade.Error
		}
		if s.TradesCompleted < s.NumTrades {
			next := now.Add(s.Interval())
			s.NextTradeAt = &next
		}
	}
	s.UpdatedAt = now
}

// ──────────────────────────────────────────────────────────────────────────────
// Request / response value objects
// ──────────────────────────────────────────────────────────────────────────────

// CreateSessionRequest carries the validated inputs for opening a session.
type CreateSessionRequest struct {
	UserAddress     string
	TotalAmount     decimal.Decimal
	NumTrades       int
	IntervalMinutes int
	SlippageBps     int
}

// SessionResponse is the API-safe view of a session plus its trade history.
type SessionResponse struct {
	*TWAPSession
	Trades []*TradeRecord `json:"trades"`
}

// DepositInstructions tells the user where to send funds after creation.
type DepositInstructions struct {
	ExecutorAddress string `json:"executor_address"`
	Token           string `json:"token"`
	Note            string `json:"note"`
}
