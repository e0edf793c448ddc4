package handler

import (
	"net/http"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/evetabi/buyback/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionAdminHandler exposes session oversight to operators: listing,
// inspection, and forced transitions on behalf of users (support cases).
type SessionAdminHandler struct {
	sessionSvc *service.SessionService
	cfg        *config.Config
}

// NewSessionAdminHandler creates a SessionAdminHandler.
func NewSessionAdminHandler(sessionSvc *service.SessionService, cfg *config.Config) *SessionAdminHandler {
	return &SessionAdminHandler{sessionSvc: sessionSvc, cfg: cfg}
}

// List godoc
// GET /admin/sessions?status=active&page=1&limit=50
func (h *SessionAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	status := c.Query("status")

	sessions, total, err := h.sessionSvc.AdminList(c.Request.Context(), limit, (page-1)*limit, status)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	respondList(c, sessions, total, page, limit)
}

// Detail godoc
// GET /admin/sessions/:id
func (h *SessionAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	resp, err := h.sessionSvc.AdminGetSession(c.Request.Context(), id)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// forceAction runs a lifecycle transition without ownership checks.
func (h *SessionAdminHandler) forceAction(c *gin.Context, action func(*gin.Context, uuid.UUID) (*domain.TWAPSession, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}

	session, err := action(c, id)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		case domain.IsConflict(err):
			respondError(c, http.StatusConflict, "CONFLICT", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		}
		return
	}
	respondSuccess(c, http.StatusOK, session)
}

// Pause godoc
// POST /admin/sessions/:id/pause
func (h *SessionAdminHandler) Pause(c *gin.Context) {
	h.forceAction(c, func(c *gin.Context, id uuid.UUID) (*domain.TWAPSession, error) {
		return h.sessionSvc.AdminPause(c.Request.Context(), id)
	})
}

// Resume godoc
// POST /admin/sessions/:id/resume
func (h *SessionAdminHandler) Resume(c *gin.Context) {
	h.forceAction(c, func(c *gin.Context, id uuid.UUID) (*domain.TWAPSession, error) {
		return h.sessionSvc.AdminResume(c.Request.Context(), id)
	})
}

// Cancel godoc
// POST /admin/sessions/:id/cancel
func (h *SessionAdminHandler) Cancel(c *gin.Context) {
	h.forceAction(c, func(c *gin.Context, id uuid.UUID) (*domain.TWAPSession, error) {
		return h.sessionSvc.AdminCancel(c.Request.Context(), id)
	})
}
