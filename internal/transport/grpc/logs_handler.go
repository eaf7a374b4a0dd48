package grpc

import (
	"context"

	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"

	"tinyolly/internal/core/services/telemetry"
)

// LogsHandler implements the OTLP LogsService gRPC server.
type LogsHandler struct {
	collogspb.UnimplementedLogsServiceServer

	normalizer *telemetry.Normalizer
	logger     *slog.Logger
}

func NewLogsHandler(normalizer *telemetry.Normalizer, logger *slog.Logger) *LogsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogsHandler{normalizer: normalizer, logger: logger}
}

func (h *LogsHandler) Export(
	ctx context.Context,
	req *collogspb.ExportLogsServiceRequest,
) (*collogspb.ExportLogsServiceResponse, error) {
	if len(req.ResourceLogs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "OTLP request must contain at least one resource log")
	}

	result := h.normalizer.NormalizeLogs(ctx, req.ResourceLogs)

	resp := &collogspb.ExportLogsServiceResponse{}
	if result.Rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: result.Rejected,
			ErrorMessage:       "one or more log records failed validation",
		}
	}

	h.logger.Debug("gRPC logs export",
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return resp, nil
}
