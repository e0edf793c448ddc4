// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 60s; cron passes hold the connection
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds admin JWT signing settings for the backoffice.
type JWTConfig struct {
	Secret        string        // must be set
	AccessTTL     time.Duration // default 15m
	AdminUser     string        // backoffice login
	AdminPassword string        // backoffice login; must be set in production
}

// ChainConfig holds RPC endpoint and token settings for the EVM chain the
// executor operates on.
type ChainConfig struct {
	RPCURL             string        // JSON-RPC endpoint
	ChainID            int64         // EIP-155 chain id
	ExecutorPrivateKey string        // hex-encoded secp256k1 key; "" = executor disabled
	USDCAddress        string        // deposit/input token contract
	MoveAddress        string        // buyback/output token contract
	USDCDecimals       int           // default 6
	MoveDecimals       int           // default 8
	GasLimit           uint64        // default 600000 for swaps
	ConfirmTimeout     time.Duration // default 90s per transaction
	ConfirmPollEvery   time.Duration // default 3s
}

// QuoteConfig holds DEX-aggregator API settings.
type QuoteConfig struct {
	BaseURL      string        // aggregator endpoint
	APIKey       string        // optional
	FetchTimeout time.Duration // default 10s
}

// RelayerConfig holds gas sponsorship relay settings. When Enabled is false
// the executor self-pays gas.
type RelayerConfig struct {
	Enabled    bool
	BaseURL    string
	APIKey     string
	PollEvery  time.Duration // default 2s
	PollBudget time.Duration // default 60s; max wait for relay task settlement
}

// SessionConfig holds TWAP plan validation bounds and execution tunables.
type SessionConfig struct {
	MinTotalAmount     float64       // USDC, default 1
	MaxTotalAmount     float64       // USDC, default 10000
	MaxTrades          int           // default 100
	MinIntervalMinutes int           // default 1
	MaxSlippageBps     int           // default 1000 (10 %)
	ExpiryBuffer       time.Duration // appended to numTrades×interval, default 1h
	ResidualFactor     float64       // share of quoted output transferred to user, default 0.999
}

// CronConfig holds scheduler trigger settings.
type CronConfig struct {
	Secret        string        // bearer secret for the trigger endpoint
	TriggerHeader string        // value expected in X-Trigger (platform-internal signal)
	MinInterval   time.Duration // minimum spacing between passes, default 30s
	LoopEnabled   bool          // run the in-process ticker loop (self-hosted mode)
	LoopEvery     time.Duration // ticker period when LoopEnabled, default 1m
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	JWT     JWTConfig
	Chain   ChainConfig
	Quote   QuoteConfig
	Relayer RelayerConfig
	Session SessionConfig
	Cron    CronConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.IsProd() && c.JWT.AdminPassword == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD must be set in production"))
	}
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}
	if c.IsProd() && c.Cron.Secret == "" && c.Cron.TriggerHeader == "" {
		errs = append(errs, errors.New("CRON_SECRET or CRON_TRIGGER_HEADER must be set in production"))
	}

	if c.Session.ResidualFactor <= 0 || c.Session.ResidualFactor > 1 {
		errs = append(errs, fmt.Errorf(
			"SESSION_RESIDUAL_FACTOR must be in (0, 1], got %.4f", c.Session.ResidualFactor))
	}
	if c.Session.MinTotalAmount <= 0 || c.Session.MaxTotalAmount < c.Session.MinTotalAmount {
		errs = append(errs, fmt.Errorf(
			"session amount bounds invalid: min=%.4f max=%.4f",
			c.Session.MinTotalAmount, c.Session.MaxTotalAmount))
	}
	if c.Session.MaxTrades < 1 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_TRADES must be >= 1, got %d", c.Session.MaxTrades))
	}
	if c.Session.MaxSlippageBps < 1 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_SLIPPAGE_BPS must be >= 1, got %d", c.Session.MaxSlippageBps))
	}

	if c.Chain.ExecutorPrivateKey != "" {
		if c.Chain.USDCAddress == "" || c.Chain.MoveAddress == "" {
			errs = append(errs, errors.New("USDC_ADDRESS and MOVE_ADDRESS must be set when the executor key is configured"))
		}
		if c.Quote.BaseURL == "" {
			errs = append(errs, errors.New("QUOTE_BASE_URL must be set when the executor key is configured"))
		}
	}
	if c.Relayer.Enabled && c.Relayer.BaseURL == "" {
		errs = append(errs, errors.New("RELAYER_BASE_URL must be set when RELAYER_ENABLED=true"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "evetabi_buyback"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT / admin ───────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		Secret:        getEnv("JWT_SECRET", ""),
		AccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		AdminUser:     getEnv("ADMIN_USER", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
	}

	// ── Chain ─────────────────────────────────────────────────────────────────
	chainID, err := getInt("CHAIN_ID", 1)
	if err != nil {
		return nil, fmt.Errorf("CHAIN_ID: %w", err)
	}
	usdcDec, err := getInt("USDC_DECIMALS", 6)
	if err != nil {
		return nil, fmt.Errorf("USDC_DECIMALS: %w", err)
	}
	moveDec, err := getInt("MOVE_DECIMALS", 8)
	if err != nil {
		return nil, fmt.Errorf("MOVE_DECIMALS: %w", err)
	}
	gasLimit, err := getInt("CHAIN_GAS_LIMIT", 600000)
	if err != nil {
		return nil, fmt.Errorf("CHAIN_GAS_LIMIT: %w", err)
	}

	cfg.Chain = ChainConfig{
		RPCURL:             getEnv("CHAIN_RPC_URL", "http://localhost:8545"),
		ChainID:            int64(chainID),
		ExecutorPrivateKey: getEnv("EXECUTOR_PRIVATE_KEY", ""),
		USDCAddress:        getEnv("USDC_ADDRESS", ""),
		MoveAddress:        getEnv("MOVE_ADDRESS", ""),
		USDCDecimals:       usdcDec,
		MoveDecimals:       moveDec,
		GasLimit:           uint64(gasLimit),
		ConfirmTimeout:     getDuration("CHAIN_CONFIRM_TIMEOUT", 90*time.Second),
		ConfirmPollEvery:   getDuration("CHAIN_CONFIRM_POLL", 3*time.Second),
	}

	// ── Quote aggregator ──────────────────────────────────────────────────────
	cfg.Quote = QuoteConfig{
		BaseURL:      getEnv("QUOTE_BASE_URL", ""),
		APIKey:       getEnv("QUOTE_API_KEY", ""),
		FetchTimeout: getDuration("QUOTE_FETCH_TIMEOUT", 10*time.Second),
	}

	// ── Relayer ───────────────────────────────────────────────────────────────
	cfg.Relayer = RelayerConfig{
		Enabled:    getEnv("RELAYER_ENABLED", "false") == "true",
		BaseURL:    getEnv("RELAYER_BASE_URL", ""),
		APIKey:     getEnv("RELAYER_API_KEY", ""),
		PollEvery:  getDuration("RELAYER_POLL_EVERY", 2*time.Second),
		PollBudget: getDuration("RELAYER_POLL_BUDGET", 60*time.Second),
	}

	// ── Session bounds ────────────────────────────────────────────────────────
	minTotal, err := getFloat("SESSION_MIN_TOTAL", 1)
	if err != nil {
		return nil, fmt.Errorf("SESSION_MIN_TOTAL: %w", err)
	}
	maxTotal, err := getFloat("SESSION_MAX_TOTAL", 10000)
	if err != nil {
		return nil, fmt.Errorf("SESSION_MAX_TOTAL: %w", err)
	}
	maxTrades, err := getInt("SESSION_MAX_TRADES", 100)
	if err != nil {
		return nil, fmt.Errorf("SESSION_MAX_TRADES: %w", err)
	}
	minInterval, err := getInt("SESSION_MIN_INTERVAL_MINUTES", 1)
	if err != nil {
		return nil, fmt.Errorf("SESSION_MIN_INTERVAL_MINUTES: %w", err)
	}
	maxSlippage, err := getInt("SESSION_MAX_SLIPPAGE_BPS", 1000)
	if err != nil {
		return nil, fmt.Errorf("SESSION_MAX_SLIPPAGE_BPS: %w", err)
	}
	residual, err := getFloat("SESSION_RESIDUAL_FACTOR", 0.999)
	if err != nil {
		return nil, fmt.Errorf("SESSION_RESIDUAL_FACTOR: %w", err)
	}

	cfg.Session = SessionConfig{
		MinTotalAmount:     minTotal,
		MaxTotalAmount:     maxTotal,
		MaxTrades:          maxTrades,
		MinIntervalMinutes: minInterval,
		MaxSlippageBps:     maxSlippage,
		ExpiryBuffer:       getDuration("SESSION_EXPIRY_BUFFER", time.Hour),
		ResidualFactor:     residual,
	}

	// ── Cron ──────────────────────────────────────────────────────────────────
	cfg.Cron = CronConfig{
		Secret:        getEnv("CRON_SECRET", ""),
		TriggerHeader: getEnv("CRON_TRIGGER_HEADER", ""),
		MinInterval:   getDuration("CRON_MIN_INTERVAL", 30*time.Second),
		LoopEnabled:   getEnv("CRON_LOOP_ENABLED", "false") == "true",
		LoopEvery:     getDuration("CRON_LOOP_EVERY", time.Minute),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Log warning and fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
