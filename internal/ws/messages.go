// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs pushed to connected clients.
package ws

import (
	"time"

	"github.com/evetabi/buyback/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeSessionUpdate    MsgType = "session_update"
	MsgTypeTradeExecuted    MsgType = "trade_executed"
	MsgTypeSessionCompleted MsgType = "session_completed"
	MsgTypeError            MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// SessionUpdateMessage — pushed on every lifecycle transition.
// ──────────────────────────────────────────────────────────────────────────────

// SessionUpdateMessage carries the session's full state after a transition
// (deposit confirmed, pause, resume, cancel, expiry).
type SessionUpdateMessage struct {
	Type      MsgType             `json:"type"`
	Session   *domain.TWAPSession `json:"session"`
	Timestamp time.Time           `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// TradeExecutedMessage — pushed after every trade attempt, success or failure.
// ──────────────────────────────────────────────────────────────────────────────

// TradeExecutedMessage pairs the trade record with the session progress it
// produced, so clients can render both without a follow-up fetch.
type TradeExecutedMessage struct {
	Type              MsgType              `json:"type"`
	SessionID         uuid.UUID            `json:"session_id"`
	Trade             *domain.TradeRecord  `json:"trade"`
	SessionStatus     domain.SessionStatus `json:"session_status"`
	TradesCompleted   int                  `json:"trades_completed"`
	NumTrades         int                  `json:"num_trades"`
	TotalMoveReceived decimal.Decimal      `json:"total_move_received"`
	Timestamp         time.Time            `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// SessionCompletedMessage — pushed once when the final trade lands.
// ──────────────────────────────────────────────────────────────────────────────

// SessionCompletedMessage summarizes the finished buyback.
type SessionCompletedMessage struct {
	Type              MsgType         `json:"type"`
	SessionID         uuid.UUID       `json:"session_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TotalMoveReceived decimal.Decimal `json:"total_move_received"`
	TradesCompleted   int             `json:"trades_completed"`
	Timestamp         time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
