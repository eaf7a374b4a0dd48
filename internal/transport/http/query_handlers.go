package http

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	domain "tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/core/services/telemetry"
	"tinyolly/internal/store"
	"tinyolly/pkg/response"
)

const (
	defaultTraceLimit = 50
	defaultSpanLimit  = 50
	defaultLogLimit   = 100
)

// QueryHandlers serves the read side of spec §4.6's Query API: traces,
// spans, logs, metrics and the three derived aggregation views, all
// rendered directly off the Store and AggregationService rather than any
// materialized query layer.
type QueryHandlers struct {
	store           store.Store
	agg             *telemetry.AggregationService
	started         time.Time
	logger          *slog.Logger
	selfServiceName string
}

func NewQueryHandlers(s store.Store, agg *telemetry.AggregationService, started time.Time, selfServiceName string, logger *slog.Logger) *QueryHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandlers{store: s, agg: agg, started: started, selfServiceName: selfServiceName, logger: logger}
}

// isSelfService reports whether name is this process's own instrumentation
// service — its telemetry is ingested like any other agent's but must
// never appear in query responses, or the backend would observe and
// re-report its own activity indefinitely (§8, §9).
func (h *QueryHandlers) isSelfService(name string) bool {
	return h.selfServiceName != "" && name == h.selfServiceName
}

func limitParam(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// ListTraces serves GET /api/traces?limit=
func (h *QueryHandlers) ListTraces(c *gin.Context) {
	limit := limitParam(c, defaultTraceLimit)
	results, err := h.store.RecentTraces(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	dtos := make([]traceSummaryDTO, 0, len(results))
	for _, r := range results {
		if h.isSelfService(r.RootService) {
			continue
		}
		dtos = append(dtos, toTraceSummaryDTO(r))
	}
	response.SuccessWithCount(c, dtos, len(dtos))
}

// GetTrace serves GET /api/traces/:id
func (h *QueryHandlers) GetTrace(c *gin.Context) {
	traceID, err := domain.TraceIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid trace id", err.Error())
		return
	}

	trace, err := h.store.Trace(c.Request.Context(), traceID)
	if err != nil {
		response.Error(c, err)
		return
	}

	spans := make([]spanDTO, 0, len(trace.Spans))
	for _, span := range trace.Spans {
		resource, _ := h.store.ResolveResource(c.Request.Context(), span.ResourceRef)
		if h.isSelfService(resource.ServiceName()) {
			continue
		}
		scope, _ := h.store.ResolveScope(c.Request.Context(), span.ScopeRef)
		spans = append(spans, toSpanDTO(span, resource, scope))
	}

	response.Success(c, gin.H{
		"trace_id": trace.TraceID.Hex(),
		"spans":    spans,
	})
}

// ListSpans serves GET /api/spans?service=&limit=
func (h *QueryHandlers) ListSpans(c *gin.Context) {
	service := c.Query("service")
	limit := limitParam(c, defaultSpanLimit)

	results, err := h.store.RecentSpans(c.Request.Context(), service, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	dtos := make([]spanDTO, 0, len(results))
	for _, r := range results {
		if h.isSelfService(r.Resource.ServiceName()) {
			continue
		}
		dtos = append(dtos, toSpanDTO(r.Span, r.Resource, r.Scope))
	}
	response.SuccessWithCount(c, dtos, len(dtos))
}

// ListLogs serves GET /api/logs?trace_id=&severity=&limit=
func (h *QueryHandlers) ListLogs(c *gin.Context) {
	limit := limitParam(c, defaultLogLimit)

	var traceIDPtr *domain.TraceID
	if raw := c.Query("trace_id"); raw != "" {
		id, err := domain.TraceIDFromHex(raw)
		if err != nil {
			response.BadRequest(c, "invalid trace id", err.Error())
			return
		}
		traceIDPtr = &id
	}

	var minSeverity domain.SeverityNumber
	if raw := c.Query("severity"); raw != "" {
		minSeverity = severityFromName(raw)
	}

	results, err := h.store.RecentLogs(c.Request.Context(), traceIDPtr, minSeverity, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	dtos := make([]logDTO, 0, len(results))
	for _, r := range results {
		if h.isSelfService(r.Resource.ServiceName()) {
			continue
		}
		dtos = append(dtos, toLogDTO(r))
	}
	response.SuccessWithCount(c, dtos, len(dtos))
}

func severityFromName(name string) domain.SeverityNumber {
	switch strings.ToUpper(name) {
	case "TRACE":
		return 1
	case "DEBUG":
		return 5
	case "INFO":
		return 9
	case "WARN":
		return 13
	case "ERROR":
		return 17
	case "FATAL":
		return 21
	default:
		return 0
	}
}

// ListMetrics serves GET /api/metrics, the catalog of known metric names.
func (h *QueryHandlers) ListMetrics(c *gin.Context) {
	entries, err := h.store.MetricCatalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	dtos := make([]metricCatalogDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toMetricCatalogDTO(e))
	}
	response.SuccessWithCount(c, dtos, len(dtos))
}

// GetMetric serves GET /api/metrics/:name, optionally filtered by
// resource.* query parameters matched against each series' resolved
// Resource attributes. The response carries both the filtered series and
// the metric's cardinality analysis (§4.5) in one payload, since §4.6's
// route table names no separate endpoint for it.
func (h *QueryHandlers) GetMetric(c *gin.Context) {
	name := c.Param("name")

	results, err := h.store.MetricSeries(c.Request.Context(), name)
	if err != nil {
		response.Error(c, err)
		return
	}

	filters := resourceFilters(c)
	dtos := make([]seriesDTO, 0, len(results))
	for _, r := range results {
		if !matchesResourceFilters(r.Resource, filters) {
			continue
		}
		dtos = append(dtos, toSeriesDTO(r))
	}

	cardinality, err := h.agg.CardinalityAnalysis(c.Request.Context(), name)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"series":      dtos,
		"cardinality": cardinality,
	})
}

// resourceFilters extracts resource.* query params into a plain
// key→value map, keyed on the attribute name with the "resource." prefix
// stripped (e.g. ?resource.host.name=foo filters on Resource attribute
// "host.name").
func resourceFilters(c *gin.Context) map[string]string {
	filters := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) == 0 {
			continue
		}
		if attr, ok := strings.CutPrefix(key, "resource."); ok {
			filters[attr] = values[0]
		}
	}
	return filters
}

func matchesResourceFilters(resource domain.Resource, filters map[string]string) bool {
	for attr, want := range filters {
		got, ok := resource.Attributes.GetString(attr)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// ServiceCatalog serves GET /api/service-catalog
func (h *QueryHandlers) ServiceCatalog(c *gin.Context) {
	entries, err := h.agg.ServiceCatalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	filtered := entries[:0]
	for _, e := range entries {
		if h.isSelfService(e.ServiceName) {
			continue
		}
		filtered = append(filtered, e)
	}
	response.SuccessWithCount(c, filtered, len(filtered))
}

// ServiceMap serves GET /api/service-map?limit=
func (h *QueryHandlers) ServiceMap(c *gin.Context) {
	limit := limitParam(c, 0)
	sm, err := h.agg.ServiceMap(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	nodes := sm.Nodes[:0]
	for _, n := range sm.Nodes {
		if h.isSelfService(n.Name) {
			continue
		}
		nodes = append(nodes, n)
	}
	edges := sm.Edges[:0]
	for _, e := range sm.Edges {
		if h.isSelfService(e.From) || h.isSelfService(e.To) {
			continue
		}
		edges = append(edges, e)
	}
	sm.Nodes, sm.Edges = nodes, edges
	response.Success(c, sm)
}

// Stats serves GET /api/stats
func (h *QueryHandlers) Stats(c *gin.Context) {
	stats := h.store.Stats(c.Request.Context())
	response.Success(c, gin.H{
		"uptime_seconds":        stats.Uptime.Seconds(),
		"span_count":            stats.SpanCount,
		"trace_count":           stats.TraceCount,
		"log_count":             stats.LogCount,
		"metric_count":          stats.MetricCount,
		"series_count":          stats.SeriesCount,
		"distinct_metric_names": stats.DistinctMetricNames,
		"metrics_dropped":       stats.MetricsDropped,
		"bytes_used":            stats.BytesUsed,
	})
}

// Health serves GET /health, a liveness probe that never touches the
// Store's lock — grounded on the teacher's health handler, which keeps
// liveness independent of whatever the data plane is doing.
func (h *QueryHandlers) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":          "ok",
		"uptime_seconds":  time.Since(h.started).Seconds(),
	})
}
