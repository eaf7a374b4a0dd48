package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"tinyolly/internal/core/services/telemetry"
	"tinyolly/internal/store/memstore"
)

func TestTraceHandler_Export_RejectsEmptyBatch(t *testing.T) {
	s := memstore.New(30*time.Minute, 1000, nil)
	defer s.Close()
	h := NewTraceHandler(telemetry.NewNormalizer(s, nil), testLogger())

	_, err := h.Export(context.Background(), &coltracepb.ExportTraceServiceRequest{})
	require.Error(t, err)
}

func TestTraceHandler_Export_AcceptsValidBatch(t *testing.T) {
	s := memstore.New(30*time.Minute, 1000, nil)
	defer s.Close()
	h := NewTraceHandler(telemetry.NewNormalizer(s, nil), testLogger())

	traceID := make([]byte, 16)
	traceID[0] = 9
	spanID := make([]byte, 8)
	spanID[0] = 1

	resp, err := h.Export(context.Background(), &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{
				{Key: "service.name", Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "svc"}}},
			}},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{},
				Spans: []*tracepb.Span{{
					TraceId:           traceID,
					SpanId:            spanID,
					Name:              "op",
					StartTimeUnixNano: 1,
					EndTimeUnixNano:   2,
					Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
				}},
			}},
		}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.PartialSuccess)
}
