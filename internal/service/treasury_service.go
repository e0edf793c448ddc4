package service

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evetabi/buyback/internal/chain"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/shopspring/decimal"
)

// TreasuryBalances is the executor wallet's current holdings.
type TreasuryBalances struct {
	ExecutorAddress string          `json:"executor_address"`
	NativeWei       string          `json:"native_wei"`
	USDC            decimal.Decimal `json:"usdc"`
	MOVE            decimal.Decimal `json:"move"`
}

// WithdrawReceipt reports a completed recovery withdrawal.
type WithdrawReceipt struct {
	TxHash    string          `json:"tx_hash"`
	Token     string          `json:"token"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// TreasuryExecutor is the slice of the chain executor the treasury needs.
// Implemented by chain.Executor.
type TreasuryExecutor interface {
	Address() common.Address
	NativeBalance(ctx context.Context) (*big.Int, error)
	TokenBalance(ctx context.Context, token common.Address, decimals int) (decimal.Decimal, error)
	TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (string, error)
	WaitMined(ctx context.Context, txHash string) error
}

// TreasuryService exposes the executor wallet to backoffice operators:
// balance inspection and recovery withdrawals of funds stranded on the
// executor (unswapped USDC from cancelled or expired sessions, and the MOVE
// residual retained on each trade).
type TreasuryService struct {
	executor TreasuryExecutor
	cfg      *config.Config
}

// NewTreasuryService creates a TreasuryService. executor may be nil.
func NewTreasuryService(executor TreasuryExecutor, cfg *config.Config) *TreasuryService {
	return &TreasuryService{executor: executor, cfg: cfg}
}

// Balances reads the executor's native, USDC, and MOVE balances.
func (s *TreasuryService) Balances(ctx context.Context) (*TreasuryBalances, error) {
	if s.executor == nil {
		return nil, domain.ErrExecutorNotConfigured
	}

	native, err := s.executor.NativeBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("treasury_service.Balances: %w", err)
	}
	usdc, err := s.executor.TokenBalance(ctx,
		common.HexToAddress(s.cfg.Chain.USDCAddress), s.cfg.Chain.USDCDecimals)
	if err != nil {
		return nil, fmt.Errorf("treasury_service.Balances: usdc: %w", err)
	}
	move, err := s.executor.TokenBalance(ctx,
		common.HexToAddress(s.cfg.Chain.MoveAddress), s.cfg.Chain.MoveDecimals)
	if err != nil {
		return nil, fmt.Errorf("treasury_service.Balances: move: %w", err)
	}

	return &TreasuryBalances{
		ExecutorAddress: s.executor.Address().Hex(),
		NativeWei:       native.String(),
		USDC:            usdc,
		MOVE:            move,
	}, nil
}

// Withdraw transfers token funds off the executor wallet to recipient and
// waits for confirmation. token is "usdc" or "move"; a zero amount withdraws
// the full balance. The receipt carries the amount actually sent.
func (s *TreasuryService) Withdraw(ctx context.Context, token, recipient string, amount decimal.Decimal) (*WithdrawReceipt, error) {
	if s.executor == nil {
		return nil, domain.ErrExecutorNotConfigured
	}
	if !common.IsHexAddress(recipient) {
		return nil, domain.ErrInvalidAddress
	}
	recipientAddr := common.HexToAddress(recipient)

	tokenKey := strings.ToLower(token)
	var tokenAddr common.Address
	var decimals int
	switch tokenKey {
	case "usdc":
		tokenAddr = common.HexToAddress(s.cfg.Chain.USDCAddress)
		decimals = s.cfg.Chain.USDCDecimals
	case "move":
		tokenAddr = common.HexToAddress(s.cfg.Chain.MoveAddress)
		decimals = s.cfg.Chain.MoveDecimals
	default:
		return nil, fmt.Errorf("treasury_service.Withdraw: unknown token %q", token)
	}

	balance, err := s.executor.TokenBalance(ctx, tokenAddr, decimals)
	if err != nil {
		return nil, fmt.Errorf("treasury_service.Withdraw: balance: %w", err)
	}
	if amount.IsZero() {
		amount = balance
	}
	if amount.IsZero() || amount.GreaterThan(balance) {
		return nil, domain.ErrInsufficientFunds
	}

	txHash, err := s.executor.TransferToken(ctx,
		tokenAddr, recipientAddr, chain.ToBaseUnits(amount, decimals))
	if err != nil {
		return nil, fmt.Errorf("treasury_service.Withdraw: transfer: %w", err)
	}
	if err := s.executor.WaitMined(ctx, txHash); err != nil {
		return nil, fmt.Errorf("treasury_service.Withdraw: confirm: %w", err)
	}

	log.Printf("[treasury] withdrew %s %s to %s (tx %s)", amount, strings.ToUpper(tokenKey), recipientAddr.Hex(), txHash)
	return &WithdrawReceipt{
		TxHash:    txHash,
		Token:     tokenKey,
		Recipient: recipientAddr.Hex(),
		Amount:    amount,
	}, nil
}
