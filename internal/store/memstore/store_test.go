package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyolly/internal/core/domain/telemetry"
	appErrors "tinyolly/pkg/errors"
)

func newTestStore() *Store {
	return New(30*time.Minute, 1000, nil)
}

func mustIntern(t *testing.T, s *Store, serviceName string) telemetry.ResourceRef {
	t.Helper()
	res := telemetry.Resource{Attributes: telemetry.Attributes{
		{Key: "service.name", Value: telemetry.AttributeValue{Kind: telemetry.AttrKindString, Str: serviceName}},
	}}
	ref, err := s.InternResource(context.Background(), uint64(len(serviceName))+1, res)
	require.NoError(t, err)
	return ref
}

func TestPutSpanAndTrace(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	resRef := mustIntern(t, s, "checkout")

	traceID := telemetry.TraceID{1, 2, 3}
	rootID := telemetry.SpanID{1}
	childID := telemetry.SpanID{2}

	root := &telemetry.Span{
		TraceID: traceID, SpanID: rootID, Name: "root", ResourceRef: resRef,
		StartTimeNano: 1000, EndTimeNano: 5000, IngestTimeNano: time.Now().UnixNano(),
	}
	child := &telemetry.Span{
		TraceID: traceID, SpanID: childID, ParentSpanID: &rootID, Name: "child", ResourceRef: resRef,
		StartTimeNano: 2000, EndTimeNano: 3000, IngestTimeNano: time.Now().UnixNano(),
	}

	require.NoError(t, s.PutSpan(ctx, root))
	require.NoError(t, s.PutSpan(ctx, child))

	trace, err := s.Trace(ctx, traceID)
	require.NoError(t, err)
	assert.Len(t, trace.Spans, 2)
	require.NotNil(t, trace.Root)
	assert.Equal(t, rootID, trace.Root.SpanID)
	assert.Equal(t, "root", trace.Spans[0].Name)
	assert.Equal(t, "child", trace.Spans[1].Name)
}

func TestTrace_NotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.Trace(context.Background(), telemetry.TraceID{9, 9, 9})
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestRecentTraces_OrderedNewestFirst(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	for i := 0; i < 3; i++ {
		tid := telemetry.TraceID{byte(i + 1)}
		span := &telemetry.Span{
			TraceID: tid, SpanID: telemetry.SpanID{byte(i + 1)}, Name: "op", ResourceRef: resRef,
			StartTimeNano: uint64(i), EndTimeNano: uint64(i + 1), IngestTimeNano: int64(i),
		}
		require.NoError(t, s.PutSpan(ctx, span))
	}

	traces, err := s.RecentTraces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, traces, 3)
	assert.Equal(t, telemetry.TraceID{3}, traces[0].TraceID)
	assert.Equal(t, telemetry.TraceID{1}, traces[2].TraceID)
}

func TestRecentSpans_FilteredByService(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	checkoutRef := mustIntern(t, s, "checkout")
	billingRef := mustIntern(t, s, "billing")

	require.NoError(t, s.PutSpan(ctx, &telemetry.Span{
		TraceID: telemetry.TraceID{1}, SpanID: telemetry.SpanID{1}, Name: "a", ResourceRef: checkoutRef,
	}))
	require.NoError(t, s.PutSpan(ctx, &telemetry.Span{
		TraceID: telemetry.TraceID{2}, SpanID: telemetry.SpanID{2}, Name: "b", ResourceRef: billingRef,
	}))

	spans, err := s.RecentSpans(ctx, "checkout", 10)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "a", spans[0].Span.Name)
}

func TestPutLogAndRecentLogs(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	resRef := mustIntern(t, s, "worker")

	trace := telemetry.TraceID{7}
	require.NoError(t, s.PutLog(ctx, &telemetry.Log{
		Body: telemetry.AttributeValue{Kind: telemetry.AttrKindString, Str: "oops"},
		TraceID: &trace, ResourceRef: resRef, SeverityNumber: 17, IngestTimeNano: time.Now().UnixNano(),
	}))
	require.NoError(t, s.PutLog(ctx, &telemetry.Log{
		Body: telemetry.AttributeValue{Kind: telemetry.AttrKindString, Str: "info message"},
		ResourceRef: resRef, SeverityNumber: 9, IngestTimeNano: time.Now().UnixNano(),
	}))

	logs, err := s.RecentLogs(ctx, nil, 0, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	filtered, err := s.RecentLogs(ctx, &trace, 0, 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "oops", filtered[0].Log.Body.Str)
}

func TestPutSeriesPoint_CardinalityLimit(t *testing.T) {
	s := New(30*time.Minute, 1, nil)
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	entryA := telemetry.MetricCatalogEntry{Name: "metric.a", Kind: telemetry.MetricKindGauge}
	entryB := telemetry.MetricCatalogEntry{Name: "metric.b", Kind: telemetry.MetricKindGauge}
	seriesA := telemetry.Series{Fingerprint: 1, ResourceRef: resRef, LastUpdateNano: 1}
	seriesB := telemetry.Series{Fingerprint: 2, ResourceRef: resRef, LastUpdateNano: 1}

	require.NoError(t, s.PutSeriesPoint(ctx, entryA, seriesA, telemetry.DataPoint{Value: 1, TimestampNano: 1}))
	err := s.PutSeriesPoint(ctx, entryB, seriesB, telemetry.DataPoint{Value: 2, TimestampNano: 1})
	require.Error(t, err)
	appErr, ok := appErrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.CardinalityExceeded, appErr.Type)

	stats := s.Stats(ctx)
	assert.Equal(t, int64(1), stats.MetricsDropped)
}

func TestPutSeriesPoint_KindConflict(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	entry := telemetry.MetricCatalogEntry{Name: "metric.a", Kind: telemetry.MetricKindGauge}
	series := telemetry.Series{Fingerprint: 1, ResourceRef: resRef, LastUpdateNano: 1}
	require.NoError(t, s.PutSeriesPoint(ctx, entry, series, telemetry.DataPoint{Value: 1, TimestampNano: 1}))

	conflicting := telemetry.MetricCatalogEntry{Name: "metric.a", Kind: telemetry.MetricKindSum}
	err := s.PutSeriesPoint(ctx, conflicting, series, telemetry.DataPoint{Value: 2, TimestampNano: 2})
	require.Error(t, err)
	appErr, ok := appErrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.MetricKindConflict, appErr.Type)
}

func TestMetricSeries_ReturnsOnlySameMetric(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	entryA := telemetry.MetricCatalogEntry{Name: "metric.a", Kind: telemetry.MetricKindGauge}
	entryB := telemetry.MetricCatalogEntry{Name: "metric.b", Kind: telemetry.MetricKindGauge}
	seriesA := telemetry.Series{Fingerprint: 1, ResourceRef: resRef, LastUpdateNano: time.Now().UnixNano()}
	seriesB := telemetry.Series{Fingerprint: 2, ResourceRef: resRef, LastUpdateNano: time.Now().UnixNano()}

	require.NoError(t, s.PutSeriesPoint(ctx, entryA, seriesA, telemetry.DataPoint{Value: 1, TimestampNano: uint64(time.Now().UnixNano())}))
	require.NoError(t, s.PutSeriesPoint(ctx, entryB, seriesB, telemetry.DataPoint{Value: 2, TimestampNano: uint64(time.Now().UnixNano())}))

	results, err := s.MetricSeries(ctx, "metric.a")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, telemetry.SeriesFingerprint(1), results[0].Series.Fingerprint)
}

func TestMetricSeries_UnknownMetric(t *testing.T) {
	s := newTestStore()
	_, err := s.MetricSeries(context.Background(), "does.not.exist")
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestSweep_ReclaimsExpiredSpans(t *testing.T) {
	s := New(1*time.Millisecond, 1000, nil)
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	past := time.Now().Add(-time.Hour).UnixNano()
	require.NoError(t, s.PutSpan(ctx, &telemetry.Span{
		TraceID: telemetry.TraceID{1}, SpanID: telemetry.SpanID{1}, Name: "stale", ResourceRef: resRef,
		IngestTimeNano: past,
	}))

	result := s.Sweep(ctx, time.Now())
	assert.Equal(t, 1, result.SpansReclaimed)

	stats := s.Stats(ctx)
	assert.Equal(t, 0, stats.SpanCount)
}

func TestStats_BytesUsedTracksPutAndSweep(t *testing.T) {
	s := New(1*time.Millisecond, 1000, nil)
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	assert.Zero(t, s.Stats(ctx).BytesUsed)

	past := time.Now().Add(-time.Hour).UnixNano()
	require.NoError(t, s.PutSpan(ctx, &telemetry.Span{
		TraceID: telemetry.TraceID{1}, SpanID: telemetry.SpanID{1}, Name: "stale", ResourceRef: resRef,
		IngestTimeNano: past,
	}))
	require.NoError(t, s.PutLog(ctx, &telemetry.Log{
		Body: telemetry.AttributeValue{Kind: telemetry.AttrKindString, Str: "hi"}, ResourceRef: resRef,
		IngestTimeNano: past,
	}))

	afterPut := s.Stats(ctx).BytesUsed
	assert.Greater(t, afterPut, int64(0))

	s.Sweep(ctx, time.Now())
	afterSweep := s.Stats(ctx).BytesUsed
	assert.Less(t, afterSweep, afterPut)
}

func TestPutSpan_ReplacingSameKeyDoesNotDoubleCountBytes(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	span := &telemetry.Span{
		TraceID: telemetry.TraceID{1}, SpanID: telemetry.SpanID{1}, Name: "op", ResourceRef: resRef,
		IngestTimeNano: time.Now().UnixNano(),
	}
	require.NoError(t, s.PutSpan(ctx, span))
	once := s.Stats(ctx).BytesUsed

	require.NoError(t, s.PutSpan(ctx, span))
	twice := s.Stats(ctx).BytesUsed

	assert.Equal(t, once, twice)
}

func TestWalkSpans_VisitsEveryLiveSpan(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	resRef := mustIntern(t, s, "svc")

	for i := 0; i < 5; i++ {
		require.NoError(t, s.PutSpan(ctx, &telemetry.Span{
			TraceID: telemetry.TraceID{byte(i)}, SpanID: telemetry.SpanID{byte(i)}, Name: "op", ResourceRef: resRef,
		}))
	}

	count := 0
	require.NoError(t, s.WalkSpans(ctx, func(*telemetry.Span) bool {
		count++
		return true
	}))
	assert.Equal(t, 5, count)
}
