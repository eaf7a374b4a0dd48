// Package grpc hosts TinyOlly's OTLP gRPC ingestion endpoint: the three
// collector services (trace, logs, metrics), each converting its batch
// straight into internal/core/services/telemetry.Normalizer calls and
// writing synchronously to the Store. Grounded on the teacher's
// internal/transport/grpc package, minus its auth interceptor, Redis
// deduplication, and stream-producer fan-out, which support the teacher's
// multi-tenant async pipeline and have no counterpart in a single-tenant,
// synchronous-write local backend (spec §4.4).
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"tinyolly/internal/transport/ingestlimiter"
)

// Server wraps a *grpc.Server with lifecycle management.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *slog.Logger
	port       int
}

// NewServer builds the gRPC OTLP receiver with all three Export services
// registered, a recv size cap, and the shared ingest limiter wired into the
// interceptor chain ahead of every handler.
func NewServer(
	port int,
	maxRecvMsgSize int,
	traceHandler *TraceHandler,
	logsHandler *LogsHandler,
	metricsHandler *MetricsHandler,
	limiter *ingestlimiter.Limiter,
	logger *slog.Logger,
) *Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			BackpressureInterceptor(limiter),
			LoggingInterceptor(logger),
		),
		grpc.MaxRecvMsgSize(maxRecvMsgSize),
		grpc.MaxSendMsgSize(maxRecvMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    1 * time.Minute,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	coltracepb.RegisterTraceServiceServer(grpcServer, traceHandler)
	collogspb.RegisterLogsServiceServer(grpcServer, logsHandler)
	colmetricspb.RegisterMetricsServiceServer(grpcServer, metricsHandler)

	return &Server{grpcServer: grpcServer, logger: logger, port: port}
}

// Start begins listening and serving (blocking).
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	s.listener = lis

	s.logger.Info("starting gRPC OTLP receiver", "port", s.port)
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, forcing a stop if ctx expires
// first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping gRPC OTLP receiver")

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timeout, forcing stop")
		s.grpcServer.Stop()
		return ctx.Err()
	case <-stopped:
		s.logger.Info("gRPC OTLP receiver stopped")
		return nil
	}
}
