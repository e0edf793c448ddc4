package service_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evetabi/buyback/internal/chain"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes for the saga's injected interfaces
// ──────────────────────────────────────────────────────────────────────────────

type fakeSessions struct {
	session  *domain.TWAPSession
	loadErr  error
	recorded []*domain.TradeRecord
}

func (f *fakeSessions) GetSessionByID(_ context.Context, id uuid.UUID) (*domain.TWAPSession, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.session == nil || f.session.ID != id {
		return nil, domain.ErrSessionNotFound
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeSessions) RecordTrade(_ context.Context, trade *domain.TradeRecord) (*domain.TWAPSession, error) {
	f.recorded = append(f.recorded, trade)
	return f.session, nil
}

type fakeQuotes struct {
	quote      *chain.Quote
	err        error
	lastParams *chain.QuoteParams
}

func (f *fakeQuotes) GetQuote(_ context.Context, params *chain.QuoteParams) (*chain.Quote, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

type fakeExecutor struct {
	sendCalls     int
	transferCalls int
	waitCalls     []string

	sendErr     error
	transferErr error
	waitErrFor  string // txHash whose WaitMined fails
	waitErr     error

	lastTransferTo     common.Address
	lastTransferAmount *big.Int
}

func (f *fakeExecutor) Address() common.Address {
	return common.HexToAddress("0xEEEE000000000000000000000000000000000001")
}

func (f *fakeExecutor) ChainID() *big.Int { return big.NewInt(3073) }

func (f *fakeExecutor) SendCall(_ context.Context, _ common.Address, _ *big.Int, _ []byte, _ uint64) (string, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "0xswap", nil
}

func (f *fakeExecutor) TransferToken(_ context.Context, _ common.Address, to common.Address, amount *big.Int) (string, error) {
	f.transferCalls++
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.lastTransferTo = to
	f.lastTransferAmount = amount
	return "0xtransfer", nil
}

func (f *fakeExecutor) WaitMined(_ context.Context, txHash string) error {
	f.waitCalls = append(f.waitCalls, txHash)
	if f.waitErrFor != "" && txHash == f.waitErrFor {
		return f.waitErr
	}
	return nil
}

func (f *fakeExecutor) SignDigest(_ []byte) ([]byte, error) {
	return []byte{0x01, 0x02}, nil
}

type sponsoredArgs struct {
	target string
	data   string
	user   string
}

type fakeSponsor struct {
	calls []sponsoredArgs
	err   error
}

func (f *fakeSponsor) SponsoredCall(_ context.Context, _ int64, target, data, user, _ string) (string, error) {
	f.calls = append(f.calls, sponsoredArgs{target: target, data: data, user: user})
	if f.err != nil {
		return "", f.err
	}
	return "0xsponsored", nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		Chain: config.ChainConfig{
			USDCAddress:  "0xAAAA000000000000000000000000000000000001",
			MoveAddress:  "0xBBBB000000000000000000000000000000000002",
			USDCDecimals: 6,
			MoveDecimals: 8,
		},
		Session: config.SessionConfig{
			ResidualFactor: 0.999,
		},
	}
}

func dueSession(t *testing.T) *domain.TWAPSession {
	t.Helper()
	s := domain.NewSession(
		"0x2222222222222222222222222222222222222222",
		decimal.NewFromInt(5), 5, 1, 100, time.Hour,
	)
	if err := s.ConfirmDeposit(
		"0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc",
		s.TotalAmount, time.Now().UTC(),
	); err != nil {
		t.Fatalf("confirm deposit: %v", err)
	}
	return s
}

// goodQuote routes 1 USDC into 0.98 MOVE (8 decimals).
func goodQuote() *chain.Quote {
	return &chain.Quote{
		SellAmount: "1000000",
		BuyAmount:  "98000000",
		To:         "0xDDDD000000000000000000000000000000000003",
		Data:       "0x1234abcd",
		Value:      "0",
		Gas:        "450000",
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestExecuteTrade_SuccessSelfPaid(t *testing.T) {
	sess := dueSession(t)
	sessions := &fakeSessions{session: sess}
	quotes := &fakeQuotes{quote: goodQuote()}
	exec := &fakeExecutor{}

	svc := service.NewTradeService(sessions, quotes, exec, nil, testConfig())
	trade, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	if trade.Status != domain.TradeSuccess {
		t.Fatalf("status = %s, want success (error: %v)", trade.Status, trade.Error)
	}
	if trade.Stage != domain.StageTransferDone {
		t.Errorf("stage = %s, want transfer_done", trade.Stage)
	}
	if trade.SwapTxHash == nil || *trade.SwapTxHash != "0xswap" {
		t.Error("swap tx hash not recorded")
	}
	if trade.TransferTxHash == nil || *trade.TransferTxHash != "0xtransfer" {
		t.Error("transfer tx hash not recorded")
	}

	// 0.98 MOVE quoted, 0.999 residual factor kept for the user.
	wantOut := decimal.NewFromFloat(0.97902)
	if !trade.AmountOut.Equal(wantOut) {
		t.Errorf("amount out = %s, want %s", trade.AmountOut, wantOut)
	}
	if exec.lastTransferAmount == nil || exec.lastTransferAmount.String() != "97902000" {
		t.Errorf("transferred %v base units, want 97902000", exec.lastTransferAmount)
	}
	if exec.lastTransferTo != common.HexToAddress(sess.UserAddress) {
		t.Error("proceeds sent to the wrong recipient")
	}

	// Quote requested for the session's own terms.
	if quotes.lastParams.SellAmount != "1000000" {
		t.Errorf("quote sellAmount = %s, want 1000000", quotes.lastParams.SellAmount)
	}
	if quotes.lastParams.SlippageBps != 100 {
		t.Errorf("quote slippageBps = %d, want 100", quotes.lastParams.SlippageBps)
	}
	if quotes.lastParams.Taker != exec.Address().Hex() {
		t.Error("quote taker is not the executor wallet")
	}

	// Both legs self-paid: one swap call, one transfer, both mined.
	if exec.sendCalls != 1 || exec.transferCalls != 1 {
		t.Errorf("sendCalls=%d transferCalls=%d, want 1 and 1", exec.sendCalls, exec.transferCalls)
	}
	if len(exec.waitCalls) != 2 {
		t.Errorf("waitMined called %d times, want 2", len(exec.waitCalls))
	}
	if len(sessions.recorded) != 1 {
		t.Fatalf("recorded %d trades, want exactly 1", len(sessions.recorded))
	}
}

func TestExecuteTrade_SuccessSponsored(t *testing.T) {
	sess := dueSession(t)
	sessions := &fakeSessions{session: sess}
	quotes := &fakeQuotes{quote: goodQuote()}
	exec := &fakeExecutor{}
	sponsor := &fakeSponsor{}

	svc := service.NewTradeService(sessions, quotes, exec, sponsor, testConfig())
	trade, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	if trade.Status != domain.TradeSuccess {
		t.Fatalf("status = %s, want success (error: %v)", trade.Status, trade.Error)
	}
	// Both legs routed through the relay with the executor as signer.
	if len(sponsor.calls) != 2 {
		t.Fatalf("sponsored calls = %d, want 2", len(sponsor.calls))
	}
	for i, call := range sponsor.calls {
		if call.user != exec.Address().Hex() {
			t.Errorf("sponsored call %d user = %s, want executor address", i, call.user)
		}
	}
	if exec.sendCalls != 0 || exec.transferCalls != 0 {
		t.Error("sponsored trade must not submit self-paid transactions")
	}
	// Relayed calls settle before the relay returns; no receipt polling.
	if len(exec.waitCalls) != 0 {
		t.Errorf("waitCalls = %v, want none for relayed legs", exec.waitCalls)
	}
}

func TestExecuteTrade_QuoteFailure(t *testing.T) {
	sess := dueSession(t)
	sessions := &fakeSessions{session: sess}
	quotes := &fakeQuotes{err: errors.New("aggregator unavailable")}
	exec := &fakeExecutor{}

	svc := service.NewTradeService(sessions, quotes, exec, nil, testConfig())
	trade, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	if trade.Status != domain.TradeFailed {
		t.Fatalf("status = %s, want failed", trade.Status)
	}
	if trade.Stage != domain.StageSwapPending {
		t.Errorf("stage = %s, want swap_pending", trade.Stage)
	}
	if trade.SwapTxHash != nil {
		t.Error("no swap must be submitted without a quote")
	}
	if exec.sendCalls != 0 {
		t.Error("no on-chain call expected after a quote failure")
	}
	if len(sessions.recorded) != 1 {
		t.Fatalf("failed attempt must still be recorded exactly once, got %d", len(sessions.recorded))
	}
}

func TestExecuteTrade_SwapReverted(t *testing.T) {
	sess := dueSession(t)
	sessions := &fakeSessions{session: sess}
	quotes := &fakeQuotes{quote: goodQuote()}
	exec := &fakeExecutor{waitErrFor: "0xswap", waitErr: errors.New("tx reverted")}

	svc := service.NewTradeService(sessions, quotes, exec, nil, testConfig())
	trade, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	if trade.Status != domain.TradeFailed {
		t.Fatalf("status = %s, want failed", trade.Status)
	}
	if trade.Stage != domain.StageSwapPending {
		t.Errorf("stage = %s, want swap_pending", trade.Stage)
	}
	if trade.SwapTxHash == nil {
		t.Error("reverted swap hash must still be recorded for audit")
	}
	if !trade.AmountOut.IsZero() {
		t.Errorf("amount out = %s, want 0 for a reverted swap", trade.AmountOut)
	}
	if exec.transferCalls != 0 {
		t.Error("transfer must not run after a reverted swap")
	}
}

func TestExecuteTrade_TransferFailure(t *testing.T) {
	sess := dueSession(t)
	sessions := &fakeSessions{session: sess}
	quotes := &fakeQuotes{quote: goodQuote()}
	exec := &fakeExecutor{transferErr: errors.New("insufficient gas")}

	svc := service.NewTradeService(sessions, quotes, exec, nil, testConfig())
	trade, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	if trade.Status != domain.TradeFailed {
		t.Fatalf("status = %s, want failed", trade.Status)
	}
	if trade.Stage != domain.StageTransferPending {
		t.Errorf("stage = %s, want transfer_pending", trade.Stage)
	}
	// The swap output is stranded on the executor; accounting keeps it.
	want := decimal.NewFromFloat(0.98)
	if !trade.AmountOut.Equal(want) {
		t.Errorf("amount out = %s, want %s (swap leg output)", trade.AmountOut, want)
	}
	if trade.Error == nil {
		t.Error("failed trade must carry the leg error")
	}
}

func TestExecuteTrade_NotDue(t *testing.T) {
	sess := dueSession(t)
	if err := sess.Pause(time.Now().UTC()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	sessions := &fakeSessions{session: sess}

	svc := service.NewTradeService(sessions, &fakeQuotes{}, &fakeExecutor{}, nil, testConfig())
	_, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if !errors.Is(err, domain.ErrSessionNotDue) {
		t.Fatalf("error = %v, want ErrSessionNotDue", err)
	}
	if len(sessions.recorded) != 0 {
		t.Error("no trade record may be written when the session is not due")
	}
}

func TestExecuteTrade_NoExecutor(t *testing.T) {
	sess := dueSession(t)
	sessions := &fakeSessions{session: sess}

	svc := service.NewTradeService(sessions, &fakeQuotes{}, nil, nil, testConfig())
	_, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if !errors.Is(err, domain.ErrExecutorNotConfigured) {
		t.Fatalf("error = %v, want ErrExecutorNotConfigured", err)
	}
}

// TestExecuteTrade_LastTradeTakesRemainder: the final trade must sweep the
// exact remaining total, not the truncated per-trade slice.
func TestExecuteTrade_LastTradeTakesRemainder(t *testing.T) {
	sess := dueSession(t)
	sess.TotalAmount = decimal.NewFromInt(5)
	sess.NumTrades = 3
	sess.AmountPerTrade = decimal.NewFromFloat(1.66)
	sess.TradesCompleted = 2

	sessions := &fakeSessions{session: sess}
	quotes := &fakeQuotes{quote: goodQuote()}
	exec := &fakeExecutor{}

	svc := service.NewTradeService(sessions, quotes, exec, nil, testConfig())
	trade, err := svc.ExecuteTrade(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	// 5 - 2*1.66 = 1.68 USDC = 1680000 base units.
	if !trade.AmountIn.Equal(decimal.NewFromFloat(1.68)) {
		t.Errorf("amount in = %s, want 1.68", trade.AmountIn)
	}
	if quotes.lastParams.SellAmount != "1680000" {
		t.Errorf("quote sellAmount = %s, want 1680000", quotes.lastParams.SellAmount)
	}
}
