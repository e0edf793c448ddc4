package handler

import (
	"errors"
	"net/http"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TreasuryHandler exposes executor wallet operations to operators.
type TreasuryHandler struct {
	treasurySvc *service.TreasuryService
	cfg         *config.Config
}

// NewTreasuryHandler creates a TreasuryHandler.
func NewTreasuryHandler(treasurySvc *service.TreasuryService, cfg *config.Config) *TreasuryHandler {
	return &TreasuryHandler{treasurySvc: treasurySvc, cfg: cfg}
}

// Balances godoc
// GET /admin/treasury/balances
func (h *TreasuryHandler) Balances(c *gin.Context) {
	balances, err := h.treasurySvc.Balances(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrExecutorNotConfigured) {
			respondError(c, http.StatusServiceUnavailable, "EXECUTOR_UNAVAILABLE", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, balances)
}

// withdrawBody is the POST /admin/treasury/withdraw payload. An empty amount
// withdraws the full token balance.
type withdrawBody struct {
	Token     string `json:"token"     binding:"required,oneof=usdc move"`
	Recipient string `json:"recipient" binding:"required"`
	Amount    string `json:"amount"`
}

// Withdraw godoc
// POST /admin/treasury/withdraw
func (h *TreasuryHandler) Withdraw(c *gin.Context) {
	var body withdrawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	amount := decimal.Zero
	if body.Amount != "" {
		parsed, err := decimal.NewFromString(body.Amount)
		if err != nil || parsed.IsNegative() {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", "amount must be a non-negative decimal string")
			return
		}
		amount = parsed
	}

	receipt, err := h.treasurySvc.Withdraw(c.Request.Context(), body.Token, body.Recipient, amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrExecutorNotConfigured):
			respondError(c, http.StatusServiceUnavailable, "EXECUTOR_UNAVAILABLE", err.Error())
		case errors.Is(err, domain.ErrInvalidAddress):
			respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		case errors.Is(err, domain.ErrInsufficientFunds):
			respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		}
		return
	}
	respondSuccess(c, http.StatusOK, receipt)
}
