package service

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/evetabi/buyback/internal/chain"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into TradeService (all satisfied by the chain package;
// narrowed here so the saga is testable against fakes)
// ──────────────────────────────────────────────────────────────────────────────

// SessionGateway is the slice of SessionService the trade executor needs:
// a fresh pre-execution read and the exactly-once outcome sink.
type SessionGateway interface {
	GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.TWAPSession, error)
	RecordTrade(ctx context.Context, trade *domain.TradeRecord) (*domain.TWAPSession, error)
}

// QuoteFetcher is implemented by chain.QuoteClient.
type QuoteFetcher interface {
	GetQuote(ctx context.Context, params *chain.QuoteParams) (*chain.Quote, error)
}

// ChainExecutor is the slice of chain.Executor the saga uses.
type ChainExecutor interface {
	Address() common.Address
	ChainID() *big.Int
	SendCall(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (string, error)
	TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (string, error)
	WaitMined(ctx context.Context, txHash string) error
	SignDigest(digest []byte) ([]byte, error)
}

// CallSponsor is implemented by chain.Relayer. nil = executor self-pays gas.
type CallSponsor interface {
	SponsoredCall(ctx context.Context, chainID int64, target, data, user, signature string) (string, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// TradeService
// ──────────────────────────────────────────────────────────────────────────────

// TradeService executes a single trade as a two-leg saga: swap USDC→MOVE on
// the executor wallet, then transfer the proceeds to the session owner.
// Whatever happens, exactly one TradeRecord is written per attempt.
type TradeService struct {
	sessions SessionGateway
	quotes   QuoteFetcher
	executor ChainExecutor
	relayer  CallSponsor
	cfg      *config.Config
}

// NewTradeService creates a TradeService. relayer may be nil.
func NewTradeService(
	sessions SessionGateway,
	quotes QuoteFetcher,
	executor ChainExecutor,
	relayer CallSponsor,
	cfg *config.Config,
) *TradeService {
	return &TradeService{
		sessions: sessions,
		quotes:   quotes,
		executor: executor,
		relayer:  relayer,
		cfg:      cfg,
	}
}

// ExecuteTrade runs one trade attempt for the session. The session's
// eligibility is re-checked against fresh store state first: between the
// scheduler's due scan and this call the user may have paused or cancelled,
// or a concurrent pass may have executed already.
//
// The returned record's Status carries the outcome; a non-nil error means the
// attempt could not even be accounted (nothing was recorded only when the
// pre-checks failed, before any on-chain action).
func (s *TradeService) ExecuteTrade(ctx context.Context, sessionID uuid.UUID) (*domain.TradeRecord, error) {
	if s.executor == nil {
		return nil, domain.ErrExecutorNotConfigured
	}

	session, err := s.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("trade_service.ExecuteTrade: load session: %w", err)
	}
	if !session.IsDue(time.Now().UTC()) {
		return nil, domain.ErrSessionNotDue
	}

	trade := domain.NewTradeRecord(session.ID, tradeAmount(session))
	if sagaErr := s.runSaga(ctx, session, trade); sagaErr != nil {
		trade.Fail(sagaErr.Error())
		log.Printf("[trade] session=%s trade=%s stage=%s failed: %v",
			session.ID, trade.ID, trade.Stage, sagaErr)
	}

	if _, err := s.sessions.RecordTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("trade_service.ExecuteTrade: record: %w", err)
	}
	return trade, nil
}

// runSaga performs quote → swap → transfer, mutating trade as each leg
// completes. Returns nil only when the proceeds transfer confirmed.
func (s *TradeService) runSaga(ctx context.Context, session *domain.TWAPSession, trade *domain.TradeRecord) error {
	// ── 1. Quote ──────────────────────────────────────────────────────────────
	sellAmount := chain.ToBaseUnits(trade.AmountIn, s.cfg.Chain.USDCDecimals)
	quote, err := s.quotes.GetQuote(ctx, &chain.QuoteParams{
		SellToken:   s.cfg.Chain.USDCAddress,
		BuyToken:    s.cfg.Chain.MoveAddress,
		SellAmount:  sellAmount.String(),
		SlippageBps: session.SlippageBps,
		Taker:       s.executor.Address().Hex(),
	})
	if err != nil {
		return fmt.Errorf("quote leg: %w", err)
	}

	quotedOut, ok := new(big.Int).SetString(quote.BuyAmount, 10)
	if !ok || quotedOut.Sign() <= 0 {
		return fmt.Errorf("quote leg: bad buyAmount %q", quote.BuyAmount)
	}

	// ── 2. Swap ───────────────────────────────────────────────────────────────
	swapHash, err := s.submitCall(ctx, quote)
	if err != nil {
		return fmt.Errorf("swap leg: %w", err)
	}
	trade.SwapTxHash = &swapHash
	if s.relayer == nil {
		if err := s.executor.WaitMined(ctx, swapHash); err != nil {
			return fmt.Errorf("swap leg: %w", err)
		}
	}
	trade.Stage = domain.StageSwapDone
	// Even if the transfer below fails, the swap output is on record.
	trade.AmountOut = chain.FromBaseUnits(quotedOut, s.cfg.Chain.MoveDecimals)

	// ── 3. Transfer proceeds to the user ──────────────────────────────────────
	// A residual share stays on the executor to absorb positive slippage
	// rounding; it is recoverable via the treasury withdraw.
	userOut := trade.AmountOut.Mul(decimal.NewFromFloat(s.cfg.Session.ResidualFactor))
	transferUnits := chain.ToBaseUnits(userOut, s.cfg.Chain.MoveDecimals)
	moveToken := common.HexToAddress(s.cfg.Chain.MoveAddress)
	recipient := common.HexToAddress(session.UserAddress)

	trade.Stage = domain.StageTransferPending
	var transferHash string
	if s.relayer != nil {
		transferHash, err = s.sponsoredCall(ctx, moveToken, chain.TransferCalldata(recipient, transferUnits))
	} else {
		transferHash, err = s.executor.TransferToken(ctx, moveToken, recipient, transferUnits)
	}
	if err != nil {
		return fmt.Errorf("transfer leg: %w", err)
	}
	trade.TransferTxHash = &transferHash
	if s.relayer == nil {
		// Relayed calls settle before the relay returns; self-paid ones need
		// receipt confirmation.
		if err := s.executor.WaitMined(ctx, transferHash); err != nil {
			return fmt.Errorf("transfer leg: %w", err)
		}
	}

	trade.Succeed(userOut)
	return nil
}

// submitCall submits the quote's routing transaction, sponsored when a
// relayer is configured, self-paid otherwise.
func (s *TradeService) submitCall(ctx context.Context, quote *chain.Quote) (string, error) {
	target := common.HexToAddress(quote.To)
	data := common.FromHex(quote.Data)

	if s.relayer != nil {
		return s.sponsoredCall(ctx, target, data)
	}

	value := big.NewInt(0)
	if quote.Value != "" {
		if v, ok := new(big.Int).SetString(quote.Value, 10); ok {
			value = v
		}
	}
	var gasLimit uint64
	if quote.Gas != "" {
		if g, perr := strconv.ParseUint(quote.Gas, 10, 64); perr == nil {
			gasLimit = g
		}
	}
	return s.executor.SendCall(ctx, target, value, data, gasLimit)
}

// sponsoredCall signs the call digest with the executor key and routes the
// call through the gas-sponsorship relay. The returned hash is already
// settled on-chain.
func (s *TradeService) sponsoredCall(ctx context.Context, target common.Address, data []byte) (string, error) {
	digest := chain.CallDigest(s.executor.ChainID(), target, data)
	sig, err := s.executor.SignDigest(digest)
	if err != nil {
		return "", err
	}
	return s.relayer.SponsoredCall(ctx,
		s.executor.ChainID().Int64(),
		target.Hex(),
		hexutil.Encode(data),
		s.executor.Address().Hex(),
		hexutil.Encode(sig),
	)
}

// tradeAmount returns the USDC slice for the session's next trade. Every
// trade uses the precomputed per-trade amount except the last, which takes
// whatever remains so division truncation never strands a sliver.
func tradeAmount(session *domain.TWAPSession) decimal.Decimal {
	if session.TradesCompleted == session.NumTrades-1 {
		spent := session.AmountPerTrade.Mul(decimal.NewFromInt(int64(session.TradesCompleted)))
		return session.TotalAmount.Sub(spent)
	}
	return session.AmountPerTrade
}
