package grpc

import (
	"context"
	"time"

	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"tinyolly/internal/transport/ingestlimiter"
	apperrors "tinyolly/pkg/errors"
)

// LoggingInterceptor logs every unary RPC with timing and outcome, same
// shape as the teacher's interceptor of the same name.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			logger.Error("gRPC request failed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
				"error", err,
			)
		} else {
			logger.Debug("gRPC request completed",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
			)
		}

		return resp, err
	}
}

// BackpressureInterceptor reserves in-flight ingest budget for the
// request's encoded size before calling the handler, releasing it once the
// handler returns. Adapted from the teacher's MemoryLimiterInterceptor:
// same "check, then maybe reject before doing any work" shape, but the
// quantity checked is request bytes + Store usage (ingestlimiter.Limiter)
// rather than process RSS, since spec §4.4 backpressure is about the
// Store's own memory bound, not this process's.
func BackpressureInterceptor(limiter *ingestlimiter.Limiter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var size int64
		if msg, ok := req.(proto.Message); ok {
			size = int64(proto.Size(msg))
		}

		release, err := limiter.Admit(ctx, size)
		if err != nil {
			appErr, _ := apperrors.IsAppError(err)
			md := metadata.Pairs("retry-after", limiter.RetryAfter().String())
			_ = grpc.SetHeader(ctx, md)
			// Oversize single requests are a size-limit violation
			// (ResourceExhausted); everything else ingestlimiter rejects is
			// Store/concurrency backpressure (Unavailable), per spec §7.
			if size > limiter.MaxInFlightBytes() {
				return nil, status.Error(codes.ResourceExhausted, appErr.Error())
			}
			return nil, status.Error(codes.Unavailable, appErr.Error())
		}
		defer release()

		return handler(ctx, req)
	}
}
