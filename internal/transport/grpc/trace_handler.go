package grpc

import (
	"context"

	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"tinyolly/internal/core/services/telemetry"
)

// TraceHandler implements the OTLP TraceService gRPC server, grounded on
// the teacher's OTLPHandler but calling the Normalizer directly rather than
// publishing to a stream for async processing.
type TraceHandler struct {
	coltracepb.UnimplementedTraceServiceServer

	normalizer *telemetry.Normalizer
	logger     *slog.Logger
}

func NewTraceHandler(normalizer *telemetry.Normalizer, logger *slog.Logger) *TraceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceHandler{normalizer: normalizer, logger: logger}
}

func (h *TraceHandler) Export(
	ctx context.Context,
	req *coltracepb.ExportTraceServiceRequest,
) (*coltracepb.ExportTraceServiceResponse, error) {
	if len(req.ResourceSpans) == 0 {
		return nil, status.Error(codes.InvalidArgument, "OTLP request must contain at least one resource span")
	}

	result := h.normalizer.NormalizeTraces(ctx, req.ResourceSpans)

	resp := &coltracepb.ExportTraceServiceResponse{}
	if result.Rejected > 0 {
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: result.Rejected,
			ErrorMessage:  "one or more spans failed validation",
		}
	}

	h.logger.Debug("gRPC trace export",
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return resp, nil
}
