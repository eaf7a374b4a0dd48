package memstore

import (
	"context"
	"sync/atomic"

	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
	"tinyolly/pkg/errors"
)

func (s *Store) PutSpan(_ context.Context, span *telemetry.Span) error {
	key := spanKey(span.TraceID, span.SpanID)
	newSize := spanByteSize(span)
	old, existed := s.spansByID.Get(key)
	if existed {
		atomic.AddInt64(&s.bytesUsed, newSize-spanByteSize(old))
	} else {
		atomic.AddInt64(&s.bytesUsed, newSize)
	}
	s.spansByID.Put(key, span, span.IngestTimeNano)

	traceKey := span.TraceID.Hex()
	s.traces.Update(traceKey, span.IngestTimeNano, func(old *traceState, existed bool) *traceState {
		var ts *traceState
		if existed && old != nil {
			ts = old
		} else {
			ts = &traceState{summary: span.TraceID, firstSeenNano: span.IngestTimeNano}
			s.traceTimeIndex.Append(timeEntry{key: traceKey, ingestTimeNano: span.IngestTimeNano})
		}
		if !existed {
			ts.spanIDs = append(ts.spanIDs, span.SpanID)
		}
		if span.ParentSpanID == nil && ts.root == nil {
			id := span.SpanID
			ts.root = &id
		}
		if span.IngestTimeNano > ts.lastSeenNano {
			ts.lastSeenNano = span.IngestTimeNano
		}
		return ts
	})

	service := s.resolveServiceName(span.ResourceRef)
	if !existed {
		s.spanTimeIndex.Append(timeEntry{key: key, service: service, ingestTimeNano: span.IngestTimeNano})
	}
	return nil
}

func (s *Store) resolveServiceName(ref telemetry.ResourceRef) string {
	if res, ok := s.resources.resolve(ref); ok {
		return res.ServiceName()
	}
	return "unknown_service"
}

func (s *Store) RecentTraces(ctx context.Context, limit int) ([]store.TraceResult, error) {
	if limit <= 0 {
		limit = 50
	}
	keys := s.traceTimeIndex.Recent(limit, nil)
	out := make([]store.TraceResult, 0, len(keys))
	for _, key := range keys {
		ts, ok := s.traces.Get(key)
		if !ok {
			continue
		}
		out = append(out, s.traceResultFromState(ts))
	}
	return out, nil
}

func (s *Store) traceResultFromState(ts *traceState) store.TraceResult {
	res := store.TraceResult{
		TraceID:   ts.summary,
		SpanCount: len(ts.spanIDs),
	}
	res.FirstSeen = nanoToTime(ts.firstSeenNano)
	res.LastSeen = nanoToTime(ts.lastSeenNano)

	var minStart, maxEnd uint64
	first := true
	for _, id := range ts.spanIDs {
		span, ok := s.spansByID.Get(spanKey(ts.summary, id))
		if !ok {
			continue
		}
		if first || span.StartTimeNano < minStart {
			minStart = span.StartTimeNano
		}
		if first || span.EndTimeNano > maxEnd {
			maxEnd = span.EndTimeNano
		}
		first = false
		if span.Status.Code == telemetry.StatusCodeError {
			res.HasError = true
		}
		if ts.root != nil && span.SpanID == *ts.root {
			res.RootName = span.Name
			res.RootService = s.resolveServiceName(span.ResourceRef)
		}
	}
	if maxEnd > minStart {
		res.DurationNano = maxEnd - minStart
	}
	if res.RootService == "" && len(ts.spanIDs) > 0 {
		if span, ok := s.spansByID.Get(spanKey(ts.summary, ts.spanIDs[0])); ok {
			res.RootName = span.Name
			res.RootService = s.resolveServiceName(span.ResourceRef)
		}
	}
	return res
}

func (s *Store) Trace(_ context.Context, id telemetry.TraceID) (*telemetry.Trace, error) {
	ts, ok := s.traces.Get(id.Hex())
	if !ok {
		return nil, errors.NewNotFoundError("trace")
	}
	ordered := s.sortSpanIDsByStart(ts.spanIDs, id)
	trace := &telemetry.Trace{TraceID: id, Spans: make([]telemetry.Span, 0, len(ordered))}
	for _, spanID := range ordered {
		span, ok := s.spansByID.Get(spanKey(id, spanID))
		if !ok {
			continue
		}
		trace.Spans = append(trace.Spans, *span)
		if ts.root != nil && spanID == *ts.root {
			sp := *span
			trace.Root = &sp
		}
	}
	if trace.Root == nil && len(trace.Spans) > 0 {
		trace.Root = &trace.Spans[0]
	}
	return trace, nil
}

func (s *Store) RecentSpans(_ context.Context, service string, limit int) ([]store.SpanResult, error) {
	if limit <= 0 {
		limit = 50
	}
	match := func(e timeEntry) bool {
		return service == "" || e.service == service
	}
	keys := s.spanTimeIndex.Recent(limit, match)
	out := make([]store.SpanResult, 0, len(keys))
	for _, key := range keys {
		span, ok := s.spansByID.Get(key)
		if !ok {
			continue
		}
		res, _ := s.resources.resolve(span.ResourceRef)
		scope, _ := s.scopes.resolve(span.ScopeRef)
		out = append(out, store.SpanResult{Span: *span, Resource: res, Scope: scope})
	}
	return out, nil
}

func (s *Store) WalkSpans(_ context.Context, fn func(*telemetry.Span) bool) error {
	stop := false
	s.spansByID.Walk(func(span *telemetry.Span) bool {
		if stop {
			return false
		}
		if !fn(span) {
			stop = true
			return false
		}
		return true
	})
	return nil
}
