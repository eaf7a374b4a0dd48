// Package store defines the contract for TinyOlly's ephemeral,
// time-indexed telemetry storage. Two backends satisfy it: memstore, an
// in-process sharded map, and redisstore, a Redis-backed implementation for
// when the local process shouldn't hold the working set in its own heap.
package store

import (
	"context"
	"time"

	"tinyolly/internal/core/domain/telemetry"
)

// Store is the storage contract every query and ingestion path depends on.
// Implementations must honor §4.2's write/read contracts: put is idempotent
// for identical (key, record); reads return a consistent snapshot of what
// was present at call time; writes past the configured TTL are reclaimed
// lazily or by a background sweep, never synchronously on the write path.
type Store interface {
	// InternResource stores res under the content hash the normalizer
	// computed for it if not already present, and returns its ref. Interning
	// is content-addressed so repeated resources across a batch (or across
	// batches from the same agent) collapse to a single stored copy.
	InternResource(ctx context.Context, hash uint64, res telemetry.Resource) (telemetry.ResourceRef, error)
	// InternScope is InternResource's counterpart for instrumentation scopes.
	InternScope(ctx context.Context, hash uint64, scope telemetry.Scope) (telemetry.ScopeRef, error)
	// ResolveResource looks up a previously interned resource.
	ResolveResource(ctx context.Context, ref telemetry.ResourceRef) (telemetry.Resource, bool)
	// ResolveScope looks up a previously interned scope.
	ResolveScope(ctx context.Context, ref telemetry.ScopeRef) (telemetry.Scope, bool)

	// PutSpan admits a span, interning its resource/scope beforehand is the
	// caller's (normalizer's) responsibility. Idempotent on (trace, span id).
	PutSpan(ctx context.Context, span *telemetry.Span) error
	// PutLog admits a log record.
	PutLog(ctx context.Context, log *telemetry.Log) error
	// PutSeriesPoint admits one data point for a metric series, creating the
	// series and the metric's catalog entry if they don't yet exist. Returns
	// CardinalityExceeded (dropped, not stored) if admitting a brand new
	// metric name would exceed the configured limit.
	PutSeriesPoint(ctx context.Context, entry telemetry.MetricCatalogEntry, series telemetry.Series, point telemetry.DataPoint) error

	// RecentTraces returns the most recent N trace summaries, newest first.
	RecentTraces(ctx context.Context, limit int) ([]TraceResult, error)
	// Trace returns the full set of spans for one trace, ordered by start
	// time, or ErrNotFound if the trace id is unknown or has expired.
	Trace(ctx context.Context, id telemetry.TraceID) (*telemetry.Trace, error)
	// RecentSpans returns the most recent N spans, optionally filtered by
	// service name, newest first.
	RecentSpans(ctx context.Context, service string, limit int) ([]SpanResult, error)
	// RecentLogs returns the most recent N logs, optionally filtered by
	// trace id and/or minimum severity.
	RecentLogs(ctx context.Context, traceID *telemetry.TraceID, minSeverity telemetry.SeverityNumber, limit int) ([]LogResult, error)

	// MetricCatalog returns every known metric's catalog entry.
	MetricCatalog(ctx context.Context) ([]telemetry.MetricCatalogEntry, error)
	// MetricSeries returns every series (and their points within the
	// retention window) for one metric name.
	MetricSeries(ctx context.Context, metricName string) ([]SeriesResult, error)

	// WalkSpans streams every live span to fn, for the aggregation engine's
	// service catalog / service map passes. Implementations must honor
	// §4.5: never materialize the whole store — fn is called inline as
	// entries are visited, with the shard lock released between calls.
	WalkSpans(ctx context.Context, fn func(*telemetry.Span) bool) error

	// Stats reports counters for /api/stats.
	Stats(ctx context.Context) Stats

	// Sweep reclaims everything past its TTL. Called by a background
	// goroutine on SweepInterval, and safe to call concurrently with all
	// other methods.
	Sweep(ctx context.Context, now time.Time) SweepResult

	Close() error
}

// TraceResult is RecentTraces' per-row value: a trace summary plus its
// resolved service name (from the root span's resource) for display.
type TraceResult struct {
	FirstSeen time.Time
	LastSeen  time.Time
	TraceID   telemetry.TraceID
	RootName  string
	RootService string
	SpanCount int
	DurationNano uint64
	HasError  bool
}

// SpanResult pairs a span with its resolved resource and scope, since
// callers (the Query API) render service.name and scope.name directly.
type SpanResult struct {
	Span     telemetry.Span
	Resource telemetry.Resource
	Scope    telemetry.Scope
}

// LogResult pairs a log with its resolved resource.
type LogResult struct {
	Log      telemetry.Log
	Resource telemetry.Resource
}

// SeriesResult pairs a series with its resolved resource and its points
// within the retention window, ordered by timestamp ascending.
type SeriesResult struct {
	Series   telemetry.Series
	Resource telemetry.Resource
	Points   []telemetry.DataPoint
}

// Stats is the /api/stats payload's storage-side contribution.
type Stats struct {
	Uptime            time.Duration
	SpanCount         int
	LogCount          int
	TraceCount        int
	MetricCount       int
	SeriesCount       int
	DistinctMetricNames int
	MetricsDropped    int64
	BytesUsed         int64
}

// SweepResult reports how many entries a Sweep pass reclaimed, for
// structured logging.
type SweepResult struct {
	SpansReclaimed   int
	LogsReclaimed    int
	TracesReclaimed  int
	SeriesReclaimed  int
	PointsReclaimed  int
}

// ErrOutOfCapacity and ErrNotFound are returned via the typed AppError
// constructors in tinyolly/pkg/errors (NewOutOfCapacityError,
// NewNotFoundError) — callers should use errors.IsAppError /
// errors.IsNotFound rather than comparing sentinel values, since every
// Store method wraps failures in that taxonomy already.
