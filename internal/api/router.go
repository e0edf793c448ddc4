package api

import (
	"net/http"

	"github.com/evetabi/buyback/internal/api/handler"
	"github.com/evetabi/buyback/internal/api/middleware"
	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/service"
	"github.com/evetabi/buyback/internal/ws"
	"github.com/gin-gonic/gin"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	SessionSvc *service.SessionService
	CycleSvc   *service.CycleService
	Hub        *ws.Hub
	Cfg        *config.Config
}

// SetupRouter creates and configures the public Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	sessionH := handler.NewSessionHandler(deps.SessionSvc, deps.Cfg)
	cronH := handler.NewCronHandler(deps.CycleSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	writeRL := middleware.RateLimitMiddleware(5, "write") // 5 req/s per IP for mutations
	readRL := middleware.RateLimitMiddleware(30, "read") // 30 req/s per IP for reads

	api := r.Group("/api")
	{
		// ── Sessions ──────────────────────────────────────────────────────────
		sessions := api.Group("/sessions")
		{
			sessions.POST("", writeRL, sessionH.Create)
			sessions.GET("", readRL, sessionH.ListByUser)
			sessions.GET("/:id", readRL, sessionH.GetByID)
			sessions.PATCH("/:id", writeRL, sessionH.Action)
			sessions.DELETE("/:id", writeRL, sessionH.Cancel)
		}

		// ── Executor info ─────────────────────────────────────────────────────
		api.GET("/executor", readRL, sessionH.Executor)

		// ── Scheduler trigger ─────────────────────────────────────────────────
		// The per-pass spacing is enforced in the store, not here; this rate
		// limit only sheds abusive unauthenticated traffic.
		cron := api.Group("/cron")
		cron.Use(middleware.CronAuthMiddleware(deps.Cfg))
		{
			cron.GET("/execute", cronH.Execute)
			cron.POST("/execute", cronH.Execute)
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := map[string]bool{
				"https://buyback.evetabi.com": true,
				"https://evetabi.com":         true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Trigger")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
