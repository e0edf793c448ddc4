package handler

import (
	"net/http"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionHandler serves the public /api/sessions endpoints.
type SessionHandler struct {
	sessionSvc *service.SessionService
	cfg        *config.Config
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessionSvc *service.SessionService, cfg *config.Config) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc, cfg: cfg}
}

// ──────────────────────────────────────────────────────────────────────────────
// Request bodies
// ──────────────────────────────────────────────────────────────────────────────

// createSessionBody is the POST /api/sessions payload.
type createSessionBody struct {
	UserAddress     string `json:"user_address"     binding:"required"`
	TotalAmount     string `json:"total_amount"     binding:"required"` // decimal string, USDC
	NumTrades       int    `json:"num_trades"       binding:"required"`
	IntervalMinutes int    `json:"interval_minutes" binding:"required"`
	SlippageBps     int    `json:"slippage_bps"     binding:"required"`
}

// sessionActionBody is the PATCH /api/sessions/:id payload. Amount is the
// claimed deposit size for confirm_deposit; empty means the plan total.
type sessionActionBody struct {
	Action string `json:"action" binding:"required,oneof=confirm_deposit pause resume cancel"`
	TxHash string `json:"tx_hash"`
	Amount string `json:"amount"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────────────────────────────────

// Create handles POST /api/sessions.
// Returns 201 with deposit instructions for a new session, or 200 with the
// user's existing open session (creation is idempotent per wallet).
func (h *SessionHandler) Create(c *gin.Context) {
	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	totalAmount, err := decimal.NewFromString(body.TotalAmount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "total_amount must be a decimal string")
		return
	}

	session, created, err := h.sessionSvc.CreateSession(c.Request.Context(), domain.CreateSessionRequest{
		UserAddress:     body.UserAddress,
		TotalAmount:     totalAmount,
		NumTrades:       body.NumTrades,
		IntervalMinutes: body.IntervalMinutes,
		SlippageBps:     body.SlippageBps,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondSuccess(c, status, gin.H{
		"session":              session,
		"deposit_instructions": h.sessionSvc.DepositInstructions(session),
		"created":              created,
	})
}

// GetByID handles GET /api/sessions/:id.
// The caller proves ownership with the `address` query parameter; requests
// without one are rejected.
func (h *SessionHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	resp, err := h.sessionSvc.GetSession(c.Request.Context(), id, c.Query("address"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// ListByUser handles GET /api/sessions?address=0x...
func (h *SessionHandler) ListByUser(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "address query parameter is required")
		return
	}

	sessions, err := h.sessionSvc.ListByUser(c.Request.Context(), address)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, sessions, len(sessions), 1, len(sessions))
}

// Action handles PATCH /api/sessions/:id with a lifecycle action. The caller
// proves ownership with the `address` query parameter; it is required here.
func (h *SessionHandler) Action(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	var body sessionActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	requester := c.Query("address")

	amount := decimal.Zero
	if body.Amount != "" {
		parsed, err := decimal.NewFromString(body.Amount)
		if err != nil || parsed.IsNegative() {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", "amount must be a non-negative decimal string")
			return
		}
		amount = parsed
	}

	var session *domain.TWAPSession
	switch body.Action {
	case "confirm_deposit":
		session, err = h.sessionSvc.ConfirmDeposit(c.Request.Context(), id, requester, body.TxHash, amount)
	case "pause":
		session, err = h.sessionSvc.Pause(c.Request.Context(), id, requester)
	case "resume":
		session, err = h.sessionSvc.Resume(c.Request.Context(), id, requester)
	case "cancel":
		session, err = h.sessionSvc.Cancel(c.Request.Context(), id, requester)
	}
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, session)
}

// Cancel handles DELETE /api/sessions/:id — an alias for the cancel action.
func (h *SessionHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	session, err := h.sessionSvc.Cancel(c.Request.Context(), id, c.Query("address"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, session)
}

// Executor handles GET /api/executor: where to send deposits.
func (h *SessionHandler) Executor(c *gin.Context) {
	address := h.sessionSvc.ExecutorAddress()
	if address == "" {
		respondError(c, http.StatusServiceUnavailable, "EXECUTOR_UNAVAILABLE",
			domain.ErrExecutorNotConfigured.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"executor_address": address,
		"usdc_address":     h.cfg.Chain.USDCAddress,
		"move_address":     h.cfg.Chain.MoveAddress,
		"chain_id":         h.cfg.Chain.ChainID,
	})
}
