package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMiddlewareCountsRequests(t *testing.T) {
	router := gin.New()
	router.Use(Middleware())
	router.GET("/api/things/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/things/:id", "200"))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/things/7", nil))
	}

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/things/:id", "200"))
	if after-before != 3 {
		t.Errorf("Expected 3 counted requests, got %v", after-before)
	}
}

func TestObserveHelpers(t *testing.T) {
	before := testutil.ToFloat64(permissionChecks.WithLabelValues("Direct"))
	ObservePermissionCheck("Direct")
	if got := testutil.ToFloat64(permissionChecks.WithLabelValues("Direct")); got != before+1 {
		t.Errorf("Expected permission check counter to increment, got %v", got)
	}

	before = testutil.ToFloat64(storeErrors.WithLabelValues("effective_grants"))
	ObserveStoreError("effective_grants")
	if got := testutil.ToFloat64(storeErrors.WithLabelValues("effective_grants")); got != before+1 {
		t.Errorf("Expected store error counter to increment, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveStoreError("probe")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "empaccess_store_errors_total") {
		t.Error("Expected store error metric in output")
	}
}
