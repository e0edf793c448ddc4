package handler

import (
	"errors"
	"net/http"

	"github.com/evetabi/buyback/internal/domain"
	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondDomainError translates a domain error into the matching HTTP status.
// Unknown errors become an opaque 500 so internals never leak to clients.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "CONFLICT", err.Error())
	case domain.IsAuthError(err):
		status := http.StatusUnauthorized
		if errors.Is(err, domain.ErrForbidden) {
			status = http.StatusForbidden
		}
		respondError(c, status, "AUTH", err.Error())
	case errors.Is(err, domain.ErrExecutorNotConfigured):
		respondError(c, http.StatusServiceUnavailable, "EXECUTOR_UNAVAILABLE", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
