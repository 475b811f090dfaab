package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterRejectsAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := gin.New()
	router.Use(RateLimiter(ctx, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Error("Expected Retry-After header on 429")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected third request to be limited, got %d", codes[2])
	}

	// A different client has its own bucket
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", w.Code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	router := gin.New()
	router.Use(RateLimiter(context.Background(), RateLimitConfig{}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	router := gin.New()
	router.Use(Timeout(time.Second))
	router.GET("/ping", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected deadline on request context, got %d", w.Code)
	}
}
