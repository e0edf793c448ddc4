package repository

import (
	"context"
	"fmt"

	"github.com/evetabi/buyback/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TradeRepository handles the append-only trade record table.
type TradeRepository struct {
	db *sqlx.DB
}

// NewTradeRepository creates a new TradeRepository.
func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Insert appends a finalized trade record within the caller's transaction.
// Records are never updated afterwards.
func (r *TradeRepository) Insert(ctx context.Context, tx *sqlx.Tx, t *domain.TradeRecord) error {
	query := `
		INSERT INTO twap_trades
			(id, session_id, amount_in, amount_out, swap_tx_hash, transfer_tx_hash, status, stage, error, created_at)
		VALUES
			(:id, :session_id, :amount_in, :amount_out, :swap_tx_hash, :transfer_tx_hash, :status, :stage, :error, :created_at)`
	_, err := tx.NamedExecContext(ctx, query, t)
	if err != nil {
		return fmt.Errorf("trade_repo.Insert: %w", err)
	}
	return nil
}

// ListBySession returns a session's trades in execution order.
func (r *TradeRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord
	err := r.db.SelectContext(ctx, &trades,
		`SELECT * FROM twap_trades WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("trade_repo.ListBySession: %w", err)
	}
	return trades, nil
}

// CountByStatus aggregates trade outcomes for the backoffice dashboard.
func (r *TradeRepository) CountByStatus(ctx context.Context) (map[domain.TradeStatus]int, error) {
	type row struct {
		Status domain.TradeStatus `db:"status"`
		Count  int                `db:"count"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM twap_trades GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("trade_repo.CountByStatus: %w", err)
	}
	counts := make(map[domain.TradeStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
