package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tinyolly/internal/transport/http/middleware"
)

func baseEngine(corsOrigins []string, logger *slog.Logger) *gin.Engine {
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(logger))
	engine.Use(middleware.Recovery(logger))
	engine.Use(middleware.Metrics())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = corsOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Content-Encoding", "Accept"}
	engine.Use(cors.New(corsConfig))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})

	return engine
}

// newIngestRouter builds the engine for the OTLP/HTTP ingestion listener
// (spec §4.4, default port 4318): POST /v1/{traces,logs,metrics}, plus
// liveness and the self-instrumentation Prometheus exposition.
func newIngestRouter(corsOrigins []string, otlp *OTLPHandler, health gin.HandlerFunc, logger *slog.Logger) *gin.Engine {
	engine := baseEngine(corsOrigins, logger)

	engine.GET("/health", health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.POST("/traces", otlp.HandleTraces)
		v1.POST("/logs", otlp.HandleLogs)
		v1.POST("/metrics", otlp.HandleMetrics)
	}

	return engine
}

// newQueryRouter builds the engine for the Query API listener (spec §4.6,
// default port 5005).
func newQueryRouter(corsOrigins []string, query *QueryHandlers, logger *slog.Logger) *gin.Engine {
	engine := baseEngine(corsOrigins, logger)

	engine.GET("/health", query.Health)

	api := engine.Group("/api")
	{
		api.GET("/traces", query.ListTraces)
		api.GET("/traces/:id", query.GetTrace)
		api.GET("/spans", query.ListSpans)
		api.GET("/logs", query.ListLogs)
		api.GET("/metrics", query.ListMetrics)
		api.GET("/metrics/:name", query.GetMetric)
		api.GET("/service-catalog", query.ServiceCatalog)
		api.GET("/service-map", query.ServiceMap)
		api.GET("/stats", query.Stats)
	}

	return engine
}
