package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/evetabi/buyback/internal/config"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// CronAuthMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// CronAuthMiddleware guards the scheduler trigger endpoint. A request is
// accepted when either credential matches:
//
//   - the X-Trigger header equals CRON_TRIGGER_HEADER (set by the hosting
//     platform's internal cron signal), or
//   - the Authorization header carries "Bearer <CRON_SECRET>".
//
// With neither configured the endpoint is open — acceptable only in dev,
// which config.Validate enforces.
func CronAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		trigger := cfg.Cron.TriggerHeader
		secret := cfg.Cron.Secret

		if trigger == "" && secret == "" {
			c.Next()
			return
		}

		if trigger != "" {
			if got := c.GetHeader("X-Trigger"); got != "" &&
				subtle.ConstantTimeCompare([]byte(got), []byte(trigger)) == 1 {
				c.Next()
				return
			}
		}
		if secret != "" {
			header := c.GetHeader("Authorization")
			if strings.HasPrefix(header, "Bearer ") &&
				subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, "Bearer ")), []byte(secret)) == 1 {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   domain.ErrUnauthorized.Error(),
			"code":    "AUTH",
		})
	}
}
