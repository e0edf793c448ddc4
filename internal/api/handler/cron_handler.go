package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/evetabi/buyback/internal/service"
	"github.com/gin-gonic/gin"
)

// CronHandler serves the scheduler trigger endpoint. The actual work happens
// in CycleService; this handler only translates outcomes to HTTP.
type CronHandler struct {
	cycleSvc *service.CycleService
}

// NewCronHandler creates a CronHandler.
func NewCronHandler(cycleSvc *service.CycleService) *CronHandler {
	return &CronHandler{cycleSvc: cycleSvc}
}

// Execute handles GET and POST /api/cron/execute. GET is what hosted cron
// platforms emit; POST is kept for manual and scripted triggers.
//
// 429 with a Retry-After header means a pass ran too recently; 503 means the
// executor wallet is not configured. Both are expected operational states,
// not failures.
func (h *CronHandler) Execute(c *gin.Context) {
	report, err := h.cycleSvc.Run(c.Request.Context())
	if err != nil {
		var rle *service.RateLimitedError
		if errors.As(err, &rle) {
			c.Header("Retry-After", fmt.Sprintf("%.0f", rle.RetryAfter.Seconds()))
			respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", rle.Error())
			return
		}
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, report)
}
