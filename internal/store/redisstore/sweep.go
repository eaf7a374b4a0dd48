package redisstore

import (
	"context"
	"strconv"
	"time"

	"tinyolly/internal/store"
)

// Sweep trims every time-ordered index down to its TTL window. The record
// keys themselves expire natively (each Set/ZAdd pair carries an Expire),
// so Sweep's job is narrower than memstore's: drop index members whose
// score has aged out, so Recent* queries don't keep returning stale
// pointers to keys Redis has already expired.
func (s *Store) Sweep(ctx context.Context, now time.Time) store.SweepResult {
	cutoff := float64(now.Add(-s.ttl).UnixNano())

	var result store.SweepResult
	if n, err := s.rdb.ZRemRangeByScore(ctx, keySpansByTime, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64)).Result(); err == nil {
		result.SpansReclaimed = int(n)
	}
	if n, err := s.rdb.ZRemRangeByScore(ctx, keyTracesByTime, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64)).Result(); err == nil {
		result.TracesReclaimed = int(n)
	}
	if n, err := s.rdb.ZRemRangeByScore(ctx, keyLogsByTime, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64)).Result(); err == nil {
		result.LogsReclaimed = int(n)
	}

	s.logger.Debug("redisstore sweep complete",
		"spans_reclaimed", result.SpansReclaimed,
		"traces_reclaimed", result.TracesReclaimed,
		"logs_reclaimed", result.LogsReclaimed,
	)
	return result
}

func (s *Store) Stats(ctx context.Context) store.Stats {
	spanCount, _ := s.rdb.ZCard(ctx, keySpansByTime).Result()
	logCount, _ := s.rdb.ZCard(ctx, keyLogsByTime).Result()
	traceCount, _ := s.rdb.ZCard(ctx, keyTracesByTime).Result()
	metricCount, _ := s.rdb.HLen(ctx, keyMetricCatalog).Result()
	distinctNames, _ := s.rdb.SCard(ctx, keyCardinality).Result()
	dropped, _ := s.rdb.Get(ctx, keyMetricsDropped).Int64()

	return store.Stats{
		Uptime:              time.Since(s.startedAt),
		SpanCount:           int(spanCount),
		LogCount:            int(logCount),
		TraceCount:          int(traceCount),
		MetricCount:         int(metricCount),
		DistinctMetricNames: int(distinctNames),
		MetricsDropped:      dropped,
		BytesUsed:           s.usedMemoryBytes(ctx),
	}
}
