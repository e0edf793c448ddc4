// Package main is the entry point for the buyback backoffice: the operator
// API serving the dashboard, session oversight, executor treasury
// operations, and Prometheus metrics. It runs as a separate process so the
// admin surface can live on a private network segment.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/buyback/internal/backoffice"
	"github.com/evetabi/buyback/internal/chain"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/repository"
	"github.com/evetabi/buyback/internal/service"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting buyback backoffice", "env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── 2. Database ───────────────────────────────────────────────────────────
	// Migrations run in the API server; the backoffice only reads and issues
	// treasury transactions.
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	// ── 3. Repositories + chain ───────────────────────────────────────────────
	sessionRepo := repository.NewSessionRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	schedRepo := repository.NewSchedulerStateRepository(db)

	executor, err := chain.NewExecutor(&cfg.Chain)
	if err != nil {
		logger.Error("executor setup failed", "err", err)
		os.Exit(1)
	}
	var executorAddress string
	var treasuryExec service.TreasuryExecutor
	if executor != nil {
		executorAddress = executor.Address().Hex()
		treasuryExec = executor
	}

	// ── 4. Services ───────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(cfg)
	sessionSvc := service.NewSessionService(db, sessionRepo, tradeRepo, cfg, executorAddress)
	treasurySvc := service.NewTreasuryService(treasuryExec, cfg)

	// ── 5. Router + server ────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:     authSvc,
		SessionSvc:  sessionSvc,
		TreasurySvc: treasurySvc,
		SessionRepo: sessionRepo,
		TradeRepo:   tradeRepo,
		SchedRepo:   schedRepo,
		Cfg:         cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("backoffice listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	db.Close()
	logger.Info("backoffice stopped cleanly")
}
