package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func throttledRouter(rps int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RateLimitMiddleware(rps, "test"), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func ping(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenThrottle(t *testing.T) {
	r := throttledRouter(3)

	for i := 0; i < 3; i++ {
		if w := ping(r, "192.0.2.1:1000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := ping(r, "192.0.2.1:1000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-budget request: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response must carry a Retry-After hint")
	}
}

func TestRateLimit_BucketsArePerClient(t *testing.T) {
	r := throttledRouter(1)

	if w := ping(r, "192.0.2.1:1000"); w.Code != http.StatusOK {
		t.Fatalf("first client: status = %d, want 200", w.Code)
	}
	if w := ping(r, "192.0.2.1:1000"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client repeat: status = %d, want 429", w.Code)
	}
	// A different IP has its own untouched bucket.
	if w := ping(r, "198.51.100.7:2000"); w.Code != http.StatusOK {
		t.Fatalf("second client: status = %d, want 200", w.Code)
	}
}
