// Package middleware provides TinyOlly's HTTP-layer cross-cutting
// concerns: request IDs, structured request logging, panic recovery, and
// Prometheus metrics. Grounded on the teacher's
// internal/transport/http/middleware/middleware.go, minus its JWT/API-key
// auth and rate-limit middleware — TinyOlly's Query API and OpAMP REST
// surface have no auth model (spec has no multi-tenant concept).
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tinyolly/pkg/ulid"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinyolly_http_requests_total",
			Help: "Total number of HTTP requests served by the OTLP/HTTP ingest and Query API listeners",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tinyolly_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RequestID assigns each request a ULID, reusing one supplied via
// X-Request-ID if the caller already has one (e.g. a proxy upstream).
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = ulid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// Logger logs each completed request at Debug (Error for 5xx responses),
// mirroring the teacher's structured-field request log but through slog
// instead of logrus.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		requestID, _ := c.Get("request_id")

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
			"request_id", requestID,
		}

		if status >= http.StatusInternalServerError {
			logger.Error("HTTP request", fields...)
		} else {
			logger.Debug("HTTP request", fields...)
		}
	}
}

// Recovery recovers from panics in downstream handlers, logging the stack
// and returning a 500 rather than letting the connection die silently.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID, _ := c.Get("request_id")
		logger.Error("panic recovered",
			"error", recovered,
			"stack", string(debug.Stack()),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", requestID,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "internal server error",
			"request_id": requestID,
		})
	})
}

// Metrics records per-route Prometheus counters/histograms, exposed on
// /metrics (never /api/*, per the self-filter invariant: these are
// process-level self-instrumentation counters, not telemetry data).
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}
