package config_test

import (
	"strings"
	"testing"

	"github.com/evetabi/buyback/internal/config"
)

// validConfig returns the minimum viable development configuration.
func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "development"},
		JWT:    config.JWTConfig{Secret: "dev-secret"},
		Session: config.SessionConfig{
			ResidualFactor: 0.999,
			MinTotalAmount: 1,
			MaxTotalAmount: 10000,
			MaxTrades:      100,
			MaxSlippageBps: 1000,
		},
	}
}

func TestValidate_DevMinimum(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("minimal dev config must validate, got: %v", err)
	}
}

func TestValidate_ProductionRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Env = "production"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("bare production config must fail validation")
	}
	for _, want := range []string{"ADMIN_PASSWORD", "DATABASE_DSN", "CRON_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error should mention %s, got: %v", want, err)
		}
	}

	cfg.JWT.AdminPassword = "hunter2"
	cfg.DB.DSN = "postgres://localhost/buyback"
	cfg.Cron.Secret = "cron-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("completed production config must validate, got: %v", err)
	}
}

func TestValidate_ResidualFactorBounds(t *testing.T) {
	for _, bad := range []float64{0, -0.1, 1.01} {
		cfg := validConfig()
		cfg.Session.ResidualFactor = bad
		if err := cfg.Validate(); err == nil {
			t.Errorf("residual factor %.2f must be rejected", bad)
		}
	}
	cfg := validConfig()
	cfg.Session.ResidualFactor = 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("residual factor 1.0 must be accepted, got: %v", err)
	}
}

func TestValidate_ExecutorRequiresChainSetup(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.ExecutorPrivateKey = "0x" + strings.Repeat("ab", 32)

	err := cfg.Validate()
	if err == nil {
		t.Fatal("executor key without token addresses must fail validation")
	}

	cfg.Chain.USDCAddress = "0xAAAA000000000000000000000000000000000001"
	cfg.Chain.MoveAddress = "0xBBBB000000000000000000000000000000000002"
	cfg.Quote.BaseURL = "https://quotes.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete chain setup must validate, got: %v", err)
	}
}

func TestValidate_RelayerRequiresBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Relayer.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled relayer without a base URL must fail validation")
	}
	cfg.Relayer.BaseURL = "https://relay.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("relayer with base URL must validate, got: %v", err)
	}
}
