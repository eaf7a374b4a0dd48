// Package memstore is TinyOlly's default Store backend: an in-process,
// sharded-lock map with background TTL reclamation. It never talks
// to a durable database — restart loses everything, by design (spec §3's
// ephemeral-only ownership model).
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"tinyolly/internal/codec"
	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
	"tinyolly/pkg/ulid"
)

// Store is memstore's Store implementation.
type Store struct {
	logger *slog.Logger

	resources *internTable[telemetry.ResourceRef, telemetry.Resource]
	scopes    *internTable[telemetry.ScopeRef, telemetry.Scope]

	spansByID *shardedMap[*telemetry.Span]
	traces    *shardedMap[*traceState]
	logs      *shardedMap[*telemetry.Log]

	spanTimeIndex *timeIndex
	traceTimeIndex *timeIndex
	logTimeIndex  *timeIndex

	metricCatalog *shardedMap[*telemetry.MetricCatalogEntry]
	series        *shardedMap[*seriesRecord]
	seriesPoints  *shardedMap[[]telemetry.DataPoint]

	cardinality *cardinalityGuard

	ttl       time.Duration
	startedAt time.Time

	metricsDropped int64
	// bytesUsed is an estimate of the encoded size of every live span, log,
	// and metric data point, kept current on every Put and every reclaim.
	// memstore stores native structs rather than codec frames, so this
	// reuses codec's encoders purely as a size ruler — never for storage.
	bytesUsed int64
}

// traceState is the mutable value behind a trace's timeIndex entry: the
// running set of span ids seen for the trace so far, built up as PutSpan is
// called once per span rather than requiring a whole batch up front.
type traceState struct {
	summary telemetry.TraceID
	spanIDs []telemetry.SpanID
	root    *telemetry.SpanID
	firstSeenNano int64
	lastSeenNano  int64
}

// New constructs an empty memstore with the given retention TTL and
// cardinality limit.
func New(ttl time.Duration, maxMetricCardinality int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:         logger,
		resources:      newInternTable[telemetry.ResourceRef, telemetry.Resource](),
		scopes:         newInternTable[telemetry.ScopeRef, telemetry.Scope](),
		spansByID:      newShardedMap[*telemetry.Span](),
		traces:         newShardedMap[*traceState](),
		logs:           newShardedMap[*telemetry.Log](),
		spanTimeIndex:  newTimeIndex(),
		traceTimeIndex: newTimeIndex(),
		logTimeIndex:   newTimeIndex(),
		metricCatalog:  newShardedMap[*telemetry.MetricCatalogEntry](),
		series:         newShardedMap[*seriesRecord](),
		seriesPoints:   newShardedMap[[]telemetry.DataPoint](),
		cardinality:    newCardinalityGuard(maxMetricCardinality),
		ttl:            ttl,
		startedAt:      time.Now(),
	}
}

func spanKey(traceID telemetry.TraceID, spanID telemetry.SpanID) string {
	return traceID.Hex() + ":" + spanID.Hex()
}

func seriesKey(metricName string, fp telemetry.SeriesFingerprint) string {
	return fmt.Sprintf("%s\x00%016x", metricName, uint64(fp))
}

func (s *Store) InternResource(_ context.Context, hash uint64, res telemetry.Resource) (telemetry.ResourceRef, error) {
	ref := telemetry.ResourceRef(hash)
	s.resources.intern(ref, res)
	return ref, nil
}

func (s *Store) InternScope(_ context.Context, hash uint64, scope telemetry.Scope) (telemetry.ScopeRef, error) {
	ref := telemetry.ScopeRef(hash)
	s.scopes.intern(ref, scope)
	return ref, nil
}

func (s *Store) ResolveResource(_ context.Context, ref telemetry.ResourceRef) (telemetry.Resource, bool) {
	return s.resources.resolve(ref)
}

func (s *Store) ResolveScope(_ context.Context, ref telemetry.ScopeRef) (telemetry.Scope, bool) {
	return s.scopes.resolve(ref)
}

func (s *Store) Stats(_ context.Context) store.Stats {
	return store.Stats{
		Uptime:              time.Since(s.startedAt),
		SpanCount:           s.spansByID.Len(),
		LogCount:            s.logs.Len(),
		TraceCount:          s.traces.Len(),
		MetricCount:         s.metricCatalog.Len(),
		SeriesCount:         s.series.Len(),
		DistinctMetricNames: s.cardinality.used(),
		MetricsDropped:      atomic.LoadInt64(&s.metricsDropped),
		BytesUsed:           atomic.LoadInt64(&s.bytesUsed),
	}
}

func (s *Store) Close() error { return nil }

// newLogKey mints a unique key for a log record, which (unlike spans and
// series) has no natural identifier in the OTLP data model.
func newLogKey() string {
	return ulid.New().String()
}

func nowNano() int64 { return time.Now().UnixNano() }

func nanoToTime(nano int64) time.Time { return time.Unix(0, nano) }

// spanByteSize, logByteSize, and pointByteSize estimate a record's footprint
// by running it through the codec's encoder and measuring the resulting
// frame, without persisting the result — memstore keeps the native struct,
// this is bookkeeping only for Stats().BytesUsed.
func spanByteSize(span *telemetry.Span) int64 { return int64(len(codec.EncodeSpan(span))) }

func logByteSize(log *telemetry.Log) int64 { return int64(len(codec.EncodeLog(log))) }

func pointByteSize(p *telemetry.DataPoint) int64 { return int64(len(codec.EncodeDataPoint(p))) }

var _ store.Store = (*Store)(nil)

// sortSpanIDsByStart sorts a trace's member span ids by their recorded
// start time, resolving each id through the spansByID table.
func (s *Store) sortSpanIDsByStart(ids []telemetry.SpanID, traceID telemetry.TraceID) []telemetry.SpanID {
	sorted := make([]telemetry.SpanID, len(ids))
	copy(sorted, ids)
	starts := make(map[telemetry.SpanID]uint64, len(ids))
	for _, id := range ids {
		if sp, ok := s.spansByID.Get(spanKey(traceID, id)); ok {
			starts[id] = sp.StartTimeNano
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return starts[sorted[i]] < starts[sorted[j]] })
	return sorted
}
