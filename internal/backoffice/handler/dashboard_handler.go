package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/repository"
	"github.com/evetabi/buyback/internal/service"
	"github.com/evetabi/buyback/internal/ws"
	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	sessionRepo *repository.SessionRepository
	tradeRepo   *repository.TradeRepository
	schedRepo   *repository.SchedulerStateRepository
	treasurySvc *service.TreasuryService
	hub         *ws.Hub
	cfg         *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	sessionRepo *repository.SessionRepository,
	tradeRepo *repository.TradeRepository,
	schedRepo *repository.SchedulerStateRepository,
	treasurySvc *service.TreasuryService,
	hub *ws.Hub,
	cfg *config.Config,
) *DashboardHandler {
	return &DashboardHandler{
		sessionRepo: sessionRepo,
		tradeRepo:   tradeRepo,
		schedRepo:   schedRepo,
		treasurySvc: treasurySvc,
		hub:         hub,
		cfg:         cfg,
	}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Session counts ───────────────────────────────────────────────────────
	sessionCounts, err := h.sessionRepo.CountByStatus(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	// ── Trade counts ─────────────────────────────────────────────────────────
	tradeCounts, err := h.tradeRepo.CountByStatus(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	// ── Volume ───────────────────────────────────────────────────────────────
	volume, err := h.sessionRepo.GetVolumeStats(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	// ── Scheduler freshness ───────────────────────────────────────────────────
	var lastRun *time.Time
	var staleness string
	if t, lrErr := h.schedRepo.LastRun(ctx); lrErr == nil {
		lastRun = &t
		staleness = time.Since(t).Truncate(time.Second).String()
	}

	// ── Executor balances (degrade gracefully when the RPC is down) ──────────
	var balances *service.TreasuryBalances
	if h.treasurySvc != nil {
		balances, _ = h.treasurySvc.Balances(ctx)
	}

	// ── WS connections ────────────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"sessions":           sessionCounts,
		"trades":             tradeCounts,
		"volume":             volume,
		"scheduler_last_run": lastRun,
		"scheduler_stale":    staleness,
		"executor_balances":  balances,
		"ws_connections":     wsConnections,
		"generated_at":       time.Now().UTC(),
	})
}
