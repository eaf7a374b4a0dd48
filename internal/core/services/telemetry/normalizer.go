// Package telemetry converts OTLP wire messages into TinyOlly's internal
// record model and derives read-time aggregation views from the Store,
// grounded on the teacher's otlp_converter.go / otlp_metrics_converter.go /
// otlp_logs_converter.go — restructured to route OTLP straight into
// TinyOlly's own record types and to intern Resource/Scope by content hash
// instead of the teacher's ULID-per-row model.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	domain "tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
)

// Normalizer implements spec §4.3: it is the only writer path into the
// Store, converting OTLP ResourceSpans/ResourceLogs/ResourceMetrics
// batches into internal records.
type Normalizer struct {
	store  store.Store
	logger *slog.Logger
}

func NewNormalizer(s store.Store, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{store: s, logger: logger}
}

// BatchResult carries per-subtype counters back to the ingestion endpoint,
// which folds them into the OTLP partial-success response and its own
// self-instrumentation counters (§4.4).
type BatchResult struct {
	Accepted int64
	Rejected int64
}

// NormalizeTraces converts one ExportTraceServiceRequest. Each
// ResourceSpans/ScopeSpans/Span is normalized and written on its own: a
// malformed or store-rejected span is dropped and counted without aborting
// its siblings, and spans written earlier in the same request stay stored.
// A request is therefore not applied all-or-nothing.
func (n *Normalizer) NormalizeTraces(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) BatchResult {
	var result BatchResult
	for _, rs := range resourceSpans {
		resRef, err := n.internResource(ctx, rs.GetResource())
		if err != nil {
			n.logger.Warn("failed to intern resource", "error", err)
			result.Rejected += countSpans(rs)
			continue
		}
		for _, ss := range rs.GetScopeSpans() {
			scopeRef, err := n.internScope(ctx, ss.GetScope())
			if err != nil {
				n.logger.Warn("failed to intern scope", "error", err)
				result.Rejected += int64(len(ss.GetSpans()))
				continue
			}
			for _, sp := range ss.GetSpans() {
				span, err := convertSpan(sp, resRef, scopeRef)
				if err != nil {
					n.logger.Warn("dropping invalid span", "error", err)
					result.Rejected++
					continue
				}
				span.IngestTimeNano = time.Now().UnixNano()
				if err := n.store.PutSpan(ctx, span); err != nil {
					n.logger.Warn("store rejected span", "error", err)
					result.Rejected++
					continue
				}
				result.Accepted++
			}
		}
	}
	return result
}

// NormalizeLogs converts one ExportLogsServiceRequest (§4.3 step 4).
func (n *Normalizer) NormalizeLogs(ctx context.Context, resourceLogs []*logspb.ResourceLogs) BatchResult {
	var result BatchResult
	for _, rl := range resourceLogs {
		resRef, err := n.internResource(ctx, rl.GetResource())
		if err != nil {
			n.logger.Warn("failed to intern resource", "error", err)
			result.Rejected += countLogs(rl)
			continue
		}
		for _, sl := range rl.GetScopeLogs() {
			scopeRef, err := n.internScope(ctx, sl.GetScope())
			if err != nil {
				n.logger.Warn("failed to intern scope", "error", err)
				result.Rejected += int64(len(sl.GetLogRecords()))
				continue
			}
			for _, lr := range sl.GetLogRecords() {
				log := convertLog(lr, resRef, scopeRef)
				log.IngestTimeNano = time.Now().UnixNano()
				if err := n.store.PutLog(ctx, log); err != nil {
					n.logger.Warn("store rejected log", "error", err)
					result.Rejected++
					continue
				}
				result.Accepted++
			}
		}
	}
	return result
}

// NormalizeMetrics converts one ExportMetricsServiceRequest (§4.3 step 5/6).
func (n *Normalizer) NormalizeMetrics(ctx context.Context, resourceMetrics []*metricspb.ResourceMetrics) BatchResult {
	var result BatchResult
	for _, rm := range resourceMetrics {
		resRef, err := n.internResource(ctx, rm.GetResource())
		if err != nil {
			n.logger.Warn("failed to intern resource", "error", err)
			result.Rejected += countDataPoints(rm)
			continue
		}
		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				accepted, rejected := n.normalizeMetric(ctx, m, resRef)
				result.Accepted += accepted
				result.Rejected += rejected
			}
		}
	}
	return result
}

func (n *Normalizer) normalizeMetric(ctx context.Context, m *metricspb.Metric, resRef domain.ResourceRef) (accepted, rejected int64) {
	entry := domain.MetricCatalogEntry{Name: m.GetName(), Unit: m.GetUnit(), Description: m.GetDescription()}

	points := metricDataPoints(m, &entry)
	for _, mp := range points {
		series := domain.Series{
			Fingerprint:    hashSeriesFingerprint(mp.attrs),
			Attributes:     mp.attrs,
			ResourceRef:    resRef,
			LastUpdateNano: int64(mp.point.TimestampNano),
		}
		if err := n.store.PutSeriesPoint(ctx, entry, series, mp.point); err != nil {
			n.logger.Warn("store rejected metric point", "metric", entry.Name, "error", err)
			rejected++
			continue
		}
		accepted++
	}
	return accepted, rejected
}

func (n *Normalizer) internResource(ctx context.Context, pbRes *resourcepb.Resource) (domain.ResourceRef, error) {
	res := convertResource(pbRes)
	return n.store.InternResource(ctx, hashResource(res), res)
}

func (n *Normalizer) internScope(ctx context.Context, pbScope *commonpb.InstrumentationScope) (domain.ScopeRef, error) {
	scope := convertScope(pbScope)
	return n.store.InternScope(ctx, hashScope(scope), scope)
}

func countSpans(rs *tracepb.ResourceSpans) int64 {
	var n int64
	for _, ss := range rs.GetScopeSpans() {
		n += int64(len(ss.GetSpans()))
	}
	return n
}

func countLogs(rl *logspb.ResourceLogs) int64 {
	var n int64
	for _, sl := range rl.GetScopeLogs() {
		n += int64(len(sl.GetLogRecords()))
	}
	return n
}

func countDataPoints(rm *metricspb.ResourceMetrics) int64 {
	var n int64
	for _, sm := range rm.GetScopeMetrics() {
		for _, m := range sm.GetMetrics() {
			var entry domain.MetricCatalogEntry
			n += int64(len(metricDataPoints(m, &entry)))
		}
	}
	return n
}

var errInvalidID = fmt.Errorf("invalid id length")
