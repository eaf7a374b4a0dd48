package grpc

import (
	"context"

	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"

	"tinyolly/internal/core/services/telemetry"
)

// MetricsHandler implements the OTLP MetricsService gRPC server.
type MetricsHandler struct {
	colmetricspb.UnimplementedMetricsServiceServer

	normalizer *telemetry.Normalizer
	logger     *slog.Logger
}

func NewMetricsHandler(normalizer *telemetry.Normalizer, logger *slog.Logger) *MetricsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsHandler{normalizer: normalizer, logger: logger}
}

func (h *MetricsHandler) Export(
	ctx context.Context,
	req *colmetricspb.ExportMetricsServiceRequest,
) (*colmetricspb.ExportMetricsServiceResponse, error) {
	if len(req.ResourceMetrics) == 0 {
		return nil, status.Error(codes.InvalidArgument, "OTLP request must contain at least one resource metric")
	}

	result := h.normalizer.NormalizeMetrics(ctx, req.ResourceMetrics)

	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if result.Rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: result.Rejected,
			ErrorMessage:       "one or more metric points failed validation",
		}
	}

	h.logger.Debug("gRPC metrics export",
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return resp, nil
}
