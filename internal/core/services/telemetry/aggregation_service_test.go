package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"tinyolly/internal/store/memstore"
)

func idBytes(n int, seed byte) []byte {
	b := make([]byte, n)
	b[0] = seed
	return b
}

func aggSpan(traceSeed, spanSeed byte, parent []byte, kind tracepb.Span_SpanKind, code tracepb.Status_StatusCode, startNano, endNano uint64) *tracepb.Span {
	sp := &tracepb.Span{
		TraceId:           idBytes(16, traceSeed),
		SpanId:            idBytes(8, spanSeed),
		Name:              "op",
		Kind:              kind,
		StartTimeUnixNano: startNano,
		EndTimeUnixNano:   endNano,
		Status:            &tracepb.Status{Code: code},
	}
	if parent != nil {
		sp.ParentSpanId = parent
	}
	return sp
}

func TestServiceCatalog_ComputesRateAndPercentiles(t *testing.T) {
	n, s := newTestNormalizer()
	ctx := context.Background()

	var spans []*tracepb.Span
	for i := 0; i < 10; i++ {
		code := tracepb.Status_STATUS_CODE_OK
		if i == 0 {
			code = tracepb.Status_STATUS_CODE_ERROR
		}
		spans = append(spans, aggSpan(byte(i+1), byte(i+1), nil, tracepb.Span_SPAN_KIND_SERVER, code, uint64(i)*1e9, uint64(i)*1e9+uint64(10+i)*1e6))
	}

	result := n.NormalizeTraces(ctx, []*tracepb.ResourceSpans{{
		Resource: testResource("checkout"),
		ScopeSpans: []*tracepb.ScopeSpans{{
			Scope: &commonpb.InstrumentationScope{},
			Spans: spans,
		}},
	}})
	require.Equal(t, int64(10), result.Accepted)

	agg := NewAggregationService(s, nil)
	catalog, err := agg.ServiceCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 1)

	entry := catalog[0]
	assert.Equal(t, "checkout", entry.ServiceName)
	assert.Equal(t, 10, entry.SpanCount)
	assert.Equal(t, 10, entry.TraceCount)
	assert.InDelta(t, 10, entry.ErrorRatePercent, 0.01)
	assert.Greater(t, entry.P99Millis, entry.P50Millis)
}

func TestServiceCatalog_PrefersHistogramOverRawSamples(t *testing.T) {
	n, s := newTestNormalizer()
	ctx := context.Background()

	// Raw span durations are all ~1ms, which would put every percentile
	// near 1 if percentileFromSamples were used.
	var spans []*tracepb.Span
	for i := 0; i < 3; i++ {
		spans = append(spans, aggSpan(byte(i+1), byte(i+1), nil, tracepb.Span_SPAN_KIND_SERVER, tracepb.Status_STATUS_CODE_OK, uint64(i)*1e9, uint64(i)*1e9+1e6))
	}
	result := n.NormalizeTraces(ctx, []*tracepb.ResourceSpans{{
		Resource: testResource("api"),
		ScopeSpans: []*tracepb.ScopeSpans{{
			Scope: &commonpb.InstrumentationScope{},
			Spans: spans,
		}},
	}})
	require.Equal(t, int64(3), result.Accepted)

	// A spanmetrics-style duration histogram for the same service, with
	// every sample parked in the 50ms+ overflow bucket, so the merged
	// histogram pulls percentiles well above the raw span samples.
	metricResult := n.NormalizeMetrics(ctx, []*metricspb.ResourceMetrics{{
		Resource: testResource("api"),
		ScopeMetrics: []*metricspb.ScopeMetrics{{
			Scope: &commonpb.InstrumentationScope{},
			Metrics: []*metricspb.Metric{{
				Name: "duration",
				Unit: "ms",
				Data: &metricspb.Metric_Histogram{Histogram: &metricspb.Histogram{
					DataPoints: []*metricspb.HistogramDataPoint{{
						Count:          5,
						BucketCounts:   []uint64{0, 0, 5},
						ExplicitBounds: []float64{10, 50},
						TimeUnixNano:   uint64(time.Now().UnixNano()),
					}},
				}},
			}},
		}},
	}})
	require.Equal(t, int64(1), metricResult.Accepted)

	agg := NewAggregationService(s, nil)
	catalog, err := agg.ServiceCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 1)

	entry := catalog[0]
	assert.Equal(t, "api", entry.ServiceName)
	assert.InDelta(t, 50, entry.P50Millis, 0.01)
	assert.InDelta(t, 50, entry.P99Millis, 0.01)
}

func TestServiceMap_InfersNodeTypesFromEdges(t *testing.T) {
	n, s := newTestNormalizer()
	ctx := context.Background()

	parentID := idBytes(8, 1)
	childID := idBytes(8, 2)

	result := n.NormalizeTraces(ctx, []*tracepb.ResourceSpans{
		{
			Resource: testResource("frontend"),
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{},
				Spans: []*tracepb.Span{aggSpan(1, 1, nil, tracepb.Span_SPAN_KIND_SERVER, tracepb.Status_STATUS_CODE_OK, 0, 1e6)},
			}},
		},
		{
			Resource: testResource("backend"),
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{},
				Spans: []*tracepb.Span{aggSpan(1, 2, parentID, tracepb.Span_SPAN_KIND_CLIENT, tracepb.Status_STATUS_CODE_OK, 1e6, 2e6)},
			}},
		},
	})
	require.Equal(t, int64(2), result.Accepted)
	_ = childID

	agg := NewAggregationService(s, nil)
	sm, err := agg.ServiceMap(ctx, 0)
	require.NoError(t, err)

	require.Len(t, sm.Edges, 1)
	assert.Equal(t, "frontend", sm.Edges[0].From)
	assert.Equal(t, "backend", sm.Edges[0].To)
	assert.Equal(t, 1, sm.Edges[0].CallCount)

	nodeTypes := make(map[string]string)
	for _, node := range sm.Nodes {
		nodeTypes[node.Name] = node.Type
	}
	assert.Equal(t, "Client", nodeTypes["frontend"])
	assert.Equal(t, "External", nodeTypes["backend"])
}

func TestCardinalityAnalysis_TabulatesLabelsAndActiveSeries(t *testing.T) {
	n, s := newTestNormalizer()
	ctx := context.Background()

	nowNano := uint64(time.Now().UnixNano())
	staleNano := uint64(time.Now().Add(-2 * time.Hour).UnixNano())

	metric := func(route string, ts uint64) *metricspb.Metric {
		return &metricspb.Metric{
			Name: "http.requests",
			Data: &metricspb.Metric_Sum{Sum: &metricspb.Sum{
				DataPoints: []*metricspb.NumberDataPoint{{
					Attributes:   []*commonpb.KeyValue{strAttr("route", route)},
					Value:        &metricspb.NumberDataPoint_AsInt{AsInt: 1},
					TimeUnixNano: ts,
				}},
			}},
		}
	}

	result := n.NormalizeMetrics(ctx, []*metricspb.ResourceMetrics{{
		Resource: testResource("api"),
		ScopeMetrics: []*metricspb.ScopeMetrics{{
			Scope: &commonpb.InstrumentationScope{},
			Metrics: []*metricspb.Metric{
				metric("/a", nowNano),
				metric("/b", staleNano),
			},
		}},
	}})
	require.Equal(t, int64(2), result.Accepted)

	agg := NewAggregationService(s, nil)
	analysis, err := agg.CardinalityAnalysis(ctx, "http.requests")
	require.NoError(t, err)

	assert.Equal(t, 2, analysis.TotalSeries)
	assert.Equal(t, 1, analysis.ActiveSeries)
	assert.Contains(t, analysis.LabelDimensions, "route")
	assert.Equal(t, 2, analysis.LabelCardinality["route"])
}

func TestCardinalityAnalysis_UnknownMetricReturnsEmpty(t *testing.T) {
	s := memstore.New(30*time.Minute, 1000, nil)
	agg := NewAggregationService(s, nil)
	analysis, err := agg.CardinalityAnalysis(context.Background(), "does.not.exist")
	require.NoError(t, err)
	assert.Equal(t, 0, analysis.TotalSeries)
}
