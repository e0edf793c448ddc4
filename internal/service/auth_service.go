package service

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AdminClaims extends jwt.RegisteredClaims with the operator role.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService issues and validates the backoffice operator's JWT. The public
// API has no user accounts — session ownership is proven by wallet address —
// so the only credential in the system is the admin login.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// Login validates the operator credentials and returns a signed access token.
// ADMIN_PASSWORD may be stored as a bcrypt hash ("$2..." prefix) or, for dev
// convenience, as plaintext compared in constant time.
func (s *AuthService) Login(username, password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.JWT.AdminUser)) != 1 {
		return "", domain.ErrInvalidCredentials
	}

	stored := s.cfg.JWT.AdminPassword
	if stored == "" {
		return "", domain.ErrInvalidCredentials
	}
	if strings.HasPrefix(stored, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
			return "", domain.ErrInvalidCredentials
		}
	} else if subtle.ConstantTimeCompare([]byte(password), []byte(stored)) != 1 {
		return "", domain.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTTL)),
		},
		Role: "admin",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("auth_service.Login: sign: %w", err)
	}
	return token, nil
}

// ParseAccessToken validates signature, algorithm, and expiry. Exported for
// use by the backoffice JWT middleware.
func (s *AuthService) ParseAccessToken(tokenString string) (*AdminClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AdminClaims)
	if !ok || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
