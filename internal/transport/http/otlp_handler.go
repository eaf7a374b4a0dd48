package http

import (
	"compress/gzip"
	"io"
	"strings"

	"log/slog"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"tinyolly/internal/core/services/telemetry"
	"tinyolly/internal/transport/ingestlimiter"
	"tinyolly/pkg/response"
)

// OTLPHandler serves POST /v1/traces|logs|metrics, accepting both
// application/x-protobuf and application/json (OTLP's protojson mapping)
// bodies, grounded on the teacher's handlers/observability/otlp.go but
// converging straight onto the Normalizer instead of a dedup+stream
// pipeline (spec §4.4).
type OTLPHandler struct {
	normalizer *telemetry.Normalizer
	limiter    *ingestlimiter.Limiter
	logger     *slog.Logger
}

func NewOTLPHandler(normalizer *telemetry.Normalizer, limiter *ingestlimiter.Limiter, logger *slog.Logger) *OTLPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OTLPHandler{normalizer: normalizer, limiter: limiter, logger: logger}
}

// readBody reads (and gzip-decompresses, if indicated) the request body,
// admitting its size against the shared ingest limiter first. The release
// func must be called once the request is fully processed.
func (h *OTLPHandler) readBody(c *gin.Context) (body []byte, release func(), ok bool) {
	contentLength := c.Request.ContentLength
	if contentLength < 0 {
		contentLength = 0
	}

	release, err := h.limiter.Admit(c.Request.Context(), contentLength)
	if err != nil {
		c.Header("Retry-After", h.limiter.RetryAfter().String())
		response.ServiceUnavailable(c, "ingest capacity exceeded, retry later")
		return nil, nil, false
	}

	body, err = io.ReadAll(c.Request.Body)
	if err != nil {
		release()
		response.BadRequest(c, "invalid request", "failed to read request body")
		return nil, nil, false
	}

	if strings.Contains(c.GetHeader("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(strings.NewReader(string(body)))
		if err != nil {
			release()
			response.BadRequest(c, "invalid encoding", "failed to decompress gzip body")
			return nil, nil, false
		}
		defer gz.Close()

		decompressed, err := io.ReadAll(gz)
		if err != nil {
			release()
			response.BadRequest(c, "invalid encoding", "failed to read decompressed body")
			return nil, nil, false
		}
		body = decompressed
	}

	return body, release, true
}

func (h *OTLPHandler) isJSON(c *gin.Context) bool {
	return !strings.Contains(c.GetHeader("Content-Type"), "application/x-protobuf")
}

// HandleTraces serves POST /v1/traces.
func (h *OTLPHandler) HandleTraces(c *gin.Context) {
	body, release, ok := h.readBody(c)
	if !ok {
		return
	}
	defer release()

	var req coltracepb.ExportTraceServiceRequest
	var err error
	if h.isJSON(c) {
		err = protojson.Unmarshal(body, &req)
	} else {
		err = proto.Unmarshal(body, &req)
	}
	if err != nil {
		response.BadRequest(c, "invalid OTLP trace payload", err.Error())
		return
	}

	if len(req.ResourceSpans) == 0 {
		response.BadRequest(c, "empty request", "OTLP request must contain at least one resource span")
		return
	}

	result := h.normalizer.NormalizeTraces(c.Request.Context(), req.ResourceSpans)
	h.logger.Debug("HTTP trace export", "accepted", result.Accepted, "rejected", result.Rejected)
	response.Success(c, gin.H{"accepted": result.Accepted, "rejected": result.Rejected})
}

// HandleLogs serves POST /v1/logs.
func (h *OTLPHandler) HandleLogs(c *gin.Context) {
	body, release, ok := h.readBody(c)
	if !ok {
		return
	}
	defer release()

	var req collogspb.ExportLogsServiceRequest
	var err error
	if h.isJSON(c) {
		err = protojson.Unmarshal(body, &req)
	} else {
		err = proto.Unmarshal(body, &req)
	}
	if err != nil {
		response.BadRequest(c, "invalid OTLP log payload", err.Error())
		return
	}

	if len(req.ResourceLogs) == 0 {
		response.BadRequest(c, "empty request", "OTLP request must contain at least one resource log")
		return
	}

	result := h.normalizer.NormalizeLogs(c.Request.Context(), req.ResourceLogs)
	h.logger.Debug("HTTP logs export", "accepted", result.Accepted, "rejected", result.Rejected)
	response.Success(c, gin.H{"accepted": result.Accepted, "rejected": result.Rejected})
}

// HandleMetrics serves POST /v1/metrics.
func (h *OTLPHandler) HandleMetrics(c *gin.Context) {
	body, release, ok := h.readBody(c)
	if !ok {
		return
	}
	defer release()

	var req colmetricspb.ExportMetricsServiceRequest
	var err error
	if h.isJSON(c) {
		err = protojson.Unmarshal(body, &req)
	} else {
		err = proto.Unmarshal(body, &req)
	}
	if err != nil {
		response.BadRequest(c, "invalid OTLP metric payload", err.Error())
		return
	}

	if len(req.ResourceMetrics) == 0 {
		response.BadRequest(c, "empty request", "OTLP request must contain at least one resource metric")
		return
	}

	result := h.normalizer.NormalizeMetrics(c.Request.Context(), req.ResourceMetrics)
	h.logger.Debug("HTTP metrics export", "accepted", result.Accepted, "rejected", result.Rejected)
	response.Success(c, gin.H{"accepted": result.Accepted, "rejected": result.Rejected})
}
