package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func sessionConfig() *config.Config {
	return &config.Config{
		Chain: config.ChainConfig{
			USDCAddress: "0xAAAA000000000000000000000000000000000001",
		},
		Session: config.SessionConfig{
			MinTotalAmount:     1,
			MaxTotalAmount:     10000,
			MaxTrades:          100,
			MinIntervalMinutes: 1,
			MaxSlippageBps:     1000,
			ExpiryBuffer:       time.Hour,
		},
	}
}

func validCreateRequest() domain.CreateSessionRequest {
	return domain.CreateSessionRequest{
		UserAddress:     "0x4444444444444444444444444444444444444444",
		TotalAmount:     decimal.NewFromInt(100),
		NumTrades:       10,
		IntervalMinutes: 5,
		SlippageBps:     100,
	}
}

// TestCreateSession_Validation exercises the input guards, which all reject
// before any store access (the service is built with nil repositories).
func TestCreateSession_Validation(t *testing.T) {
	svc := service.NewSessionService(nil, nil, nil, sessionConfig(), "")

	cases := []struct {
		name    string
		mutate  func(*domain.CreateSessionRequest)
		wantErr error
	}{
		{
			name:    "bad address",
			mutate:  func(r *domain.CreateSessionRequest) { r.UserAddress = "not-an-address" },
			wantErr: domain.ErrInvalidAddress,
		},
		{
			name:    "amount below minimum",
			mutate:  func(r *domain.CreateSessionRequest) { r.TotalAmount = decimal.NewFromFloat(0.5) },
			wantErr: domain.ErrAmountOutOfRange,
		},
		{
			name:    "amount above maximum",
			mutate:  func(r *domain.CreateSessionRequest) { r.TotalAmount = decimal.NewFromInt(20000) },
			wantErr: domain.ErrAmountOutOfRange,
		},
		{
			name:    "zero trades",
			mutate:  func(r *domain.CreateSessionRequest) { r.NumTrades = 0 },
			wantErr: domain.ErrTradesOutOfRange,
		},
		{
			name:    "too many trades",
			mutate:  func(r *domain.CreateSessionRequest) { r.NumTrades = 101 },
			wantErr: domain.ErrTradesOutOfRange,
		},
		{
			name:    "interval below minimum",
			mutate:  func(r *domain.CreateSessionRequest) { r.IntervalMinutes = 0 },
			wantErr: domain.ErrIntervalTooShort,
		},
		{
			name:    "zero slippage",
			mutate:  func(r *domain.CreateSessionRequest) { r.SlippageBps = 0 },
			wantErr: domain.ErrSlippageOutOfRange,
		},
		{
			name:    "slippage above maximum",
			mutate:  func(r *domain.CreateSessionRequest) { r.SlippageBps = 1001 },
			wantErr: domain.ErrSlippageOutOfRange,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(&req)
			_, _, err := svc.CreateSession(context.Background(), req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
			if !domain.IsValidation(err) {
				t.Errorf("error %v must classify as a validation error", err)
			}
		})
	}
}

func TestDepositInstructions(t *testing.T) {
	executor := "0xEEEE000000000000000000000000000000000001"
	svc := service.NewSessionService(nil, nil, nil, sessionConfig(), executor)

	sess := domain.NewSession(
		"0x4444444444444444444444444444444444444444",
		decimal.NewFromInt(100), 10, 5, 100, time.Hour,
	)
	instr := svc.DepositInstructions(sess)

	if instr.ExecutorAddress != executor {
		t.Errorf("executor address = %s, want %s", instr.ExecutorAddress, executor)
	}
	if instr.Token != sessionConfig().Chain.USDCAddress {
		t.Errorf("token = %s, want the USDC contract", instr.Token)
	}
	if !strings.Contains(instr.Note, "100") {
		t.Errorf("note %q should mention the deposit amount", instr.Note)
	}
}

// TestTransitions_RequireRequesterAddress covers the ownership precondition
// on every public lifecycle entry point: a request with a missing or
// malformed wallet address is rejected before any store access (the service
// is built with nil repositories, so reaching the store would panic).
func TestTransitions_RequireRequesterAddress(t *testing.T) {
	svc := service.NewSessionService(nil, nil, nil, sessionConfig(), "")
	ctx := context.Background()
	id := uuid.New()
	hash := "0x" + strings.Repeat("c", 64)

	calls := map[string]func(requester string) error{
		"cancel": func(r string) error { _, err := svc.Cancel(ctx, id, r); return err },
		"pause":  func(r string) error { _, err := svc.Pause(ctx, id, r); return err },
		"resume": func(r string) error { _, err := svc.Resume(ctx, id, r); return err },
		"confirm_deposit": func(r string) error {
			_, err := svc.ConfirmDeposit(ctx, id, r, hash, decimal.Zero)
			return err
		},
		"get": func(r string) error { _, err := svc.GetSession(ctx, id, r); return err },
	}

	for name, call := range calls {
		for _, requester := range []string{"", "not-an-address"} {
			if err := call(requester); !errors.Is(err, domain.ErrInvalidAddress) {
				t.Errorf("%s with requester %q: error = %v, want ErrInvalidAddress", name, requester, err)
			}
		}
	}
}
