package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var throttledRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "buyback_http_throttled_total",
	Help: "Requests rejected by the public API rate limiter.",
}, []string{"scope"})

// A caller is one IP's refill state. tokens is fractional: a caller that
// just exhausted its budget earns requests back continuously rather than in
// whole-second steps.
type caller struct {
	tokens   float64
	lastSeen time.Time
}

// throttle is a token-bucket limiter keyed by client IP. A single mutex
// guards the map; buckets refill lazily on access and idle entries are swept
// inline during allow, so there is no background goroutine to stop.
type throttle struct {
	mu        sync.Mutex
	callers   map[string]*caller
	rps       float64
	burst     float64
	lastSweep time.Time
}

const (
	sweepEvery = 5 * time.Minute
	idleAfter  = 10 * time.Minute
)

func newThrottle(rps int) *throttle {
	return &throttle{
		callers:   make(map[string]*caller),
		rps:       float64(rps),
		burst:     float64(rps),
		lastSweep: time.Now(),
	}
}

// allow deducts one token from key's bucket, refilling first. New callers
// start with a full burst.
func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.lastSweep) > sweepEvery {
		t.sweep(now)
	}

	c, ok := t.callers[key]
	if !ok {
		c = &caller{tokens: t.burst}
		t.callers[key] = c
	} else {
		c.tokens += now.Sub(c.lastSeen).Seconds() * t.rps
		if c.tokens > t.burst {
			c.tokens = t.burst
		}
	}
	c.lastSeen = now

	if c.tokens < 1 {
		return false
	}
	c.tokens--
	return true
}

// sweep drops callers idle long enough to have refilled completely anyway.
// Caller holds t.mu.
func (t *throttle) sweep(now time.Time) {
	cutoff := now.Add(-idleAfter)
	for key, c := range t.callers {
		if c.lastSeen.Before(cutoff) {
			delete(t.callers, key)
		}
	}
	t.lastSweep = now
}

// RateLimitMiddleware enforces a per-IP budget of rps requests per second
// (with an equal burst) on the route group it is attached to. Rejections get
// 429 with a Retry-After hint; scope labels the throttle metric.
func RateLimitMiddleware(rps int, scope string) gin.HandlerFunc {
	t := newThrottle(rps)
	rejected := throttledRequests.WithLabelValues(scope)

	return func(c *gin.Context) {
		if !t.allow(c.ClientIP()) {
			rejected.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, slow down",
				"code":    "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
