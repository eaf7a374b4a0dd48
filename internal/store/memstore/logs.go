package memstore

import (
	"context"
	"sync/atomic"

	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
)

func (s *Store) PutLog(_ context.Context, log *telemetry.Log) error {
	key := newLogKey()
	atomic.AddInt64(&s.bytesUsed, logByteSize(log))
	s.logs.Put(key, log, log.IngestTimeNano)
	var traceHex string
	if log.TraceID != nil {
		traceHex = log.TraceID.Hex()
	}
	s.logTimeIndex.Append(timeEntry{key: key, service: traceHex, ingestTimeNano: log.IngestTimeNano})
	return nil
}

func (s *Store) RecentLogs(_ context.Context, traceID *telemetry.TraceID, minSeverity telemetry.SeverityNumber, limit int) ([]store.LogResult, error) {
	if limit <= 0 {
		limit = 100
	}
	var wantTrace string
	if traceID != nil {
		wantTrace = traceID.Hex()
	}
	match := func(e timeEntry) bool {
		if wantTrace != "" && e.service != wantTrace {
			return false
		}
		return true
	}
	keys := s.logTimeIndex.Recent(limit*4, match) // over-fetch; severity isn't denormalized into the index
	out := make([]store.LogResult, 0, limit)
	for _, key := range keys {
		if len(out) >= limit {
			break
		}
		log, ok := s.logs.Get(key)
		if !ok {
			continue
		}
		if minSeverity > 0 && log.SeverityNumber < minSeverity {
			continue
		}
		res, _ := s.resources.resolve(log.ResourceRef)
		out = append(out, store.LogResult{Log: *log, Resource: res})
	}
	return out, nil
}
