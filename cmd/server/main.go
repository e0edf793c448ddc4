// Package main is the entry point for the evetabi MOVE buyback API server.
// It wires together repositories, chain clients, and services, then starts
// the HTTP server alongside the WebSocket hub and the optional in-process
// scheduler loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/evetabi/buyback/internal/api"
	"github.com/evetabi/buyback/internal/chain"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/repository"
	"github.com/evetabi/buyback/internal/scheduler"
	"github.com/evetabi/buyback/internal/service"
	"github.com/evetabi/buyback/internal/ws"
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

	logger.Info("starting evetabi buyback server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Repositories ───────────────────────────────────────────────────────
	sessionRepo := repository.NewSessionRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	schedRepo := repository.NewSchedulerStateRepository(db)

	// ── 5. Chain clients ──────────────────────────────────────────────────────
	executor, err := chain.NewExecutor(&cfg.Chain)
	if err != nil {
		logger.Error("executor setup failed", "err", err)
		os.Exit(1)
	}
	var executorAddress string
	if executor != nil {
		executorAddress = executor.Address().Hex()
		logger.Info("executor wallet loaded", "address", executorAddress, "chain_id", cfg.Chain.ChainID)
	} else {
		logger.Warn("no executor key configured: deposits and trades are disabled")
	}

	quoteClient := chain.NewQuoteClient(&cfg.Quote)
	relayer := chain.NewRelayer(&cfg.Relayer)
	if relayer != nil {
		logger.Info("gas sponsorship relay enabled", "url", cfg.Relayer.BaseURL)
	}

	// ── 6. Services ───────────────────────────────────────────────────────────
	sessionSvc := service.NewSessionService(db, sessionRepo, tradeRepo, cfg, executorAddress)

	// A nil *chain.Executor must stay a nil interface inside TradeService.
	var chainExec service.ChainExecutor
	if executor != nil {
		chainExec = executor
	}
	var sponsor service.CallSponsor
	if relayer != nil {
		sponsor = relayer
	}
	tradeSvc := service.NewTradeService(sessionSvc, quoteClient, chainExec, sponsor, cfg)

	cycleSvc := service.NewCycleService(schedRepo, sessionSvc, tradeSvc, executor != nil, cfg)

	// ── 7. WebSocket Hub ──────────────────────────────────────────────────────
	var allowedOrigins []string
	if ori := os.Getenv("WS_ALLOWED_ORIGINS"); ori != "" {
		for _, o := range strings.Split(ori, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}
	hub := ws.NewHub(allowedOrigins)
	sessionSvc.SetBroadcaster(hub)

	// ── 8. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	logger.Info("websocket hub started")

	// ── 9. Optional in-process scheduler loop ─────────────────────────────────
	sched := scheduler.NewScheduler(cycleSvc, cfg, logger)
	sched.Start(ctx)

	// ── 10. HTTP Router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		SessionSvc: sessionSvc,
		CycleSvc:   cycleSvc,
		Hub:        hub,
		Cfg:        cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 11. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 12. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
