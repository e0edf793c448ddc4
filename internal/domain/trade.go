package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// TradeStatus is the final outcome of one attempted trade.
type TradeStatus string

const (
	TradePending TradeStatus = "pending"
	TradeSuccess TradeStatus = "success"
	TradeFailed  TradeStatus = "failed"
)

// TradeStage tracks how far the two-leg swap→transfer saga progressed.
// The swap and the proceeds transfer are independent on-chain transactions;
// the stage disambiguates a failure between them.
type TradeStage string

const (
	StageSwapPending     TradeStage = "swap_pending"
	StageSwapDone        TradeStage = "swap_done"
	StageTransferPending TradeStage = "transfer_pending"
	StageTransferDone    TradeStage = "transfer_done"
)

// ──────────────────────────────────────────────────────────────────────────────
// TradeRecord
// ──────────────────────────────────────────────────────────────────────────────

// TradeRecord is one attempted trade within a session. Append-only: after
// insertion the only permitted mutation is the pending → success|failed
// transition performed by the executor before the record is persisted.
//
// AmountOut is the MOVE produced by the swap leg. It is recorded even when
// the transfer leg fails (stage=swap_done, status=failed) so the accounting
// of stranded executor funds stays auditable — but it only counts toward the
// session's TotalMoveReceived on a fully successful trade, i.e. when the
// proceeds actually reached the user.
type TradeRecord struct {
	ID             uuid.UUID       `json:"id"               db:"id"`
	SessionID      uuid.UUID       `json:"session_id"       db:"session_id"`
	AmountIn       decimal.Decimal `json:"amount_in"        db:"amount_in"`
	AmountOut      decimal.Decimal `json:"amount_out"       db:"amount_out"`
	SwapTxHash     *string         `json:"swap_tx_hash"     db:"swap_tx_hash"`
	TransferTxHash *string         `json:"transfer_tx_hash" db:"transfer_tx_hash"`
	Status         TradeStatus     `json:"status"           db:"status"`
	Stage          TradeStage      `json:"stage"            db:"stage"`
	Error          *string         `json:"error"            db:"error"`
	CreatedAt      time.Time       `json:"created_at"       db:"created_at"`
}

// NewTradeRecord opens a pending record for one planned swap of amountIn USDC.
func NewTradeRecord(sessionID uuid.UUID, amountIn decimal.Decimal) *TradeRecord {
	return &TradeRecord{
		ID:        uuid.New(),
		SessionID: sessionID,
		AmountIn:  amountIn,
		AmountOut: decimal.Zero,
		Status:    TradePending,
		Stage:     StageSwapPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Fail finalizes the record as failed with the given leg error.
func (t *TradeRecord) Fail(msg string) {
	t.Status = TradeFailed
	t.Error = &msg
}

// Succeed finalizes the record after the proceeds transfer confirmed.
func (t *TradeRecord) Succeed(amountOut decimal.Decimal) {
	t.Status = TradeSuccess
	t.Stage = StageTransferDone
	t.AmountOut = amountOut
	t.Error = nil
}
