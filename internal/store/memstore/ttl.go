package memstore

import (
	"context"
	"sync/atomic"
	"time"

	"tinyolly/internal/store"
)

// Sweep reclaims every span, trace, log, and stale metric series past the
// configured TTL. It is safe to call concurrently with all read/write
// paths: each shard is locked only for the duration of its own pass.
func (s *Store) Sweep(_ context.Context, now time.Time) store.SweepResult {
	ttlNano := s.ttl.Nanoseconds()
	nowN := now.UnixNano()

	var result store.SweepResult

	for _, key := range s.spanTimeIndex.Sweep(nowN, ttlNano) {
		if span, ok := s.spansByID.Get(key); ok {
			atomic.AddInt64(&s.bytesUsed, -spanByteSize(span))
		}
		s.spansByID.Delete(key)
		result.SpansReclaimed++
	}
	for _, key := range s.traceTimeIndex.Sweep(nowN, ttlNano) {
		s.traces.Delete(key)
		result.TracesReclaimed++
	}
	for _, key := range s.logTimeIndex.Sweep(nowN, ttlNano) {
		if log, ok := s.logs.Get(key); ok {
			atomic.AddInt64(&s.bytesUsed, -logByteSize(log))
		}
		s.logs.Delete(key)
		result.LogsReclaimed++
	}

	result.SeriesReclaimed = s.series.Sweep(nowN, ttlNano)
	s.metricCatalog.Sweep(nowN, ttlNano)

	result.PointsReclaimed = s.pruneExpiredPoints(nowN, ttlNano)

	s.logger.Debug("memstore sweep complete",
		"spans_reclaimed", result.SpansReclaimed,
		"traces_reclaimed", result.TracesReclaimed,
		"logs_reclaimed", result.LogsReclaimed,
		"series_reclaimed", result.SeriesReclaimed,
		"points_reclaimed", result.PointsReclaimed,
	)
	return result
}

// pruneExpiredPoints trims expired data points out of otherwise-live
// series, so a long-lived series doesn't carry its entire history forever.
func (s *Store) pruneExpiredPoints(nowNano, ttlNano int64) int {
	cutoff := nowNano - ttlNano
	reclaimed := 0
	for i := range s.seriesPoints.shards {
		sh := &s.seriesPoints.shards[i]
		sh.mu.Lock()
		for key, e := range sh.data {
			live := e.value[:0]
			for _, p := range e.value {
				if int64(p.TimestampNano) >= cutoff {
					live = append(live, p)
				} else {
					point := p
					atomic.AddInt64(&s.bytesUsed, -pointByteSize(&point))
					reclaimed++
				}
			}
			e.value = live
			sh.data[key] = e
		}
		sh.mu.Unlock()
	}
	return reclaimed
}
