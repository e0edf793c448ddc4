package service_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evetabi/buyback/internal/chain"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/service"
	"github.com/shopspring/decimal"
)

type fakeTreasuryExecutor struct {
	balances map[common.Address]decimal.Decimal

	lastToken  common.Address
	lastTo     common.Address
	lastAmount *big.Int
}

func (f *fakeTreasuryExecutor) Address() common.Address {
	return common.HexToAddress("0xEEEE000000000000000000000000000000000001")
}

func (f *fakeTreasuryExecutor) NativeBalance(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeTreasuryExecutor) TokenBalance(ctx context.Context, token common.Address, decimals int) (decimal.Decimal, error) {
	return f.balances[token], nil
}

func (f *fakeTreasuryExecutor) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (string, error) {
	f.lastToken, f.lastTo, f.lastAmount = token, to, amount
	return "0xtransfer", nil
}

func (f *fakeTreasuryExecutor) WaitMined(ctx context.Context, txHash string) error { return nil }

func TestWithdraw_ReceiptReportsResolvedAmount(t *testing.T) {
	cfg := testConfig()
	usdc := common.HexToAddress(cfg.Chain.USDCAddress)
	exec := &fakeTreasuryExecutor{
		balances: map[common.Address]decimal.Decimal{
			usdc: decimal.RequireFromString("250.5"),
		},
	}
	svc := service.NewTreasuryService(exec, cfg)
	recipient := "0x7777777777777777777777777777777777777777"

	// Zero amount withdraws the full balance; the receipt must say how much
	// actually moved and to whom.
	receipt, err := svc.Withdraw(context.Background(), "USDC", recipient, decimal.Zero)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if receipt.TxHash != "0xtransfer" {
		t.Errorf("tx hash = %s, want 0xtransfer", receipt.TxHash)
	}
	if receipt.Token != "usdc" {
		t.Errorf("token = %s, want usdc", receipt.Token)
	}
	if !receipt.Amount.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("amount = %s, want the full 250.5 balance", receipt.Amount)
	}
	if receipt.Recipient != common.HexToAddress(recipient).Hex() {
		t.Errorf("recipient = %s, want normalized %s", receipt.Recipient, common.HexToAddress(recipient).Hex())
	}

	want := chain.ToBaseUnits(decimal.RequireFromString("250.5"), cfg.Chain.USDCDecimals)
	if exec.lastAmount.Cmp(want) != 0 {
		t.Errorf("transferred %s base units, want %s", exec.lastAmount, want)
	}
	if exec.lastTo != common.HexToAddress(recipient) {
		t.Errorf("transferred to %s, want %s", exec.lastTo.Hex(), recipient)
	}
}

func TestWithdraw_Validation(t *testing.T) {
	cfg := testConfig()
	usdc := common.HexToAddress(cfg.Chain.USDCAddress)
	recipient := "0x7777777777777777777777777777777777777777"

	newSvc := func() *service.TreasuryService {
		return service.NewTreasuryService(&fakeTreasuryExecutor{
			balances: map[common.Address]decimal.Decimal{usdc: decimal.NewFromInt(10)},
		}, cfg)
	}

	if _, err := newSvc().Withdraw(context.Background(), "usdc", "not-an-address", decimal.Zero); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Errorf("bad recipient: error = %v, want ErrInvalidAddress", err)
	}
	if _, err := newSvc().Withdraw(context.Background(), "usdc", recipient, decimal.NewFromInt(11)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("over balance: error = %v, want ErrInsufficientFunds", err)
	}
	if _, err := newSvc().Withdraw(context.Background(), "wbtc", recipient, decimal.NewFromInt(1)); err == nil {
		t.Error("unknown token must be rejected")
	}

	svc := service.NewTreasuryService(nil, cfg)
	if _, err := svc.Withdraw(context.Background(), "usdc", recipient, decimal.Zero); !errors.Is(err, domain.ErrExecutorNotConfigured) {
		t.Errorf("no executor: error = %v, want ErrExecutorNotConfigured", err)
	}
}
