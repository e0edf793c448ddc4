package backoffice

import (
	"net/http"
	"strings"

	"github.com/evetabi/buyback/internal/backoffice/handler"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/repository"
	"github.com/evetabi/buyback/internal/service"
	"github.com/evetabi/buyback/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc     *service.AuthService
	SessionSvc  *service.SessionService
	TreasurySvc *service.TreasuryService
	SessionRepo *repository.SessionRepository
	TradeRepo   *repository.TradeRepository
	SchedRepo   *repository.SchedulerStateRepository
	Hub         *ws.Hub
	Cfg         *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine (default port 8081).
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	authH := handler.NewAuthHandler(deps.AuthSvc)
	dashH := handler.NewDashboardHandler(deps.SessionRepo, deps.TradeRepo, deps.SchedRepo, deps.TreasurySvc, deps.Hub, deps.Cfg)
	sessionH := handler.NewSessionAdminHandler(deps.SessionSvc, deps.Cfg)
	treasuryH := handler.NewTreasuryHandler(deps.TreasurySvc, deps.Cfg)

	// ── Metrics (scraped inside the private network; IP whitelist applies) ────
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ── Login (public within the whitelist) ───────────────────────────────────
	r.POST("/admin/login", authH.Login)

	jwtMW := adminJWTMiddleware(deps.AuthSvc)

	admin := r.Group("/admin")
	admin.Use(jwtMW)
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Sessions
		s := admin.Group("/sessions")
		{
			s.GET("", sessionH.List)
			s.GET("/:id", sessionH.Detail)
			s.POST("/:id/pause", sessionH.Pause)
			s.POST("/:id/resume", sessionH.Resume)
			s.POST("/:id/cancel", sessionH.Cancel)
		}

		// Treasury
		t := admin.Group("/treasury")
		{
			t.GET("/balances", treasuryH.Balances)
			t.POST("/withdraw", treasuryH.Withdraw)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowed[clientIP] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: your IP is not whitelisted",
			})
			return
		}
		c.Next()
	}
}

// ── Admin JWT middleware ──────────────────────────────────────────────────────

// adminJWTMiddleware validates the operator JWT issued by /admin/login.
func adminJWTMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := authSvc.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil || claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("adminUser", claims.Subject)
		c.Next()
	}
}
