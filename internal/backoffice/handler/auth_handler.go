package handler

import (
	"net/http"

	"github.com/evetabi/buyback/internal/service"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves the backoffice login endpoint.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

type loginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// POST /admin/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	token, err := h.authSvc.Login(body.Username, body.Password)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "AUTH", "invalid username or password")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"access_token": token})
}
