// Package metrics exposes Prometheus collectors for the HTTP API and the
// permission engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "empaccess_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "empaccess_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	permissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "empaccess_permission_checks_total",
			Help: "Permission checks answered, by assignment source",
		},
		[]string{"source"},
	)

	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "empaccess_store_errors_total",
			Help: "Backing store failures, by operation",
		},
		[]string{"op"},
	)
)

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePermissionCheck counts a resolved check by its assignment source.
func ObservePermissionCheck(source string) {
	permissionChecks.WithLabelValues(source).Inc()
}

// ObserveStoreError counts a failed store operation.
func ObserveStoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}
