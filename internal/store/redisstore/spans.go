package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tinyolly/internal/codec"
	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
	appErrors "tinyolly/pkg/errors"
)

func (s *Store) PutSpan(ctx context.Context, span *telemetry.Span) error {
	dataKey := spanDataKey(span.TraceID, span.SpanID)
	traceHex := span.TraceID.Hex()
	service := s.resolveServiceName(ctx, span.ResourceRef)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, dataKey, codec.EncodeSpan(span), s.ttl)
	pipe.ZAdd(ctx, keySpansByTime, redis.Z{Score: float64(span.IngestTimeNano), Member: dataKey})
	pipe.ZAdd(ctx, keySpansByService+service, redis.Z{Score: float64(span.StartTimeNano), Member: dataKey})
	pipe.Expire(ctx, keySpansByService+service, s.ttl)
	pipe.ZAdd(ctx, keyTraceSpans+traceHex, redis.Z{Score: float64(span.StartTimeNano), Member: span.SpanID.Hex()})
	pipe.Expire(ctx, keyTraceSpans+traceHex, s.ttl)
	pipe.ZAddArgs(ctx, keyTracesByTime, redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: float64(span.IngestTimeNano), Member: traceHex}}})
	if span.ParentSpanID == nil {
		pipe.SetNX(ctx, keyTraceRoot+traceHex, span.SpanID.Hex(), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisstore: put span: %w", err)
	}
	return nil
}

func (s *Store) resolveServiceName(ctx context.Context, ref telemetry.ResourceRef) string {
	if res, ok := s.ResolveResource(ctx, ref); ok {
		return res.ServiceName()
	}
	return "unknown_service"
}

func (s *Store) RecentTraces(ctx context.Context, limit int) ([]store.TraceResult, error) {
	if limit <= 0 {
		limit = 50
	}
	traceHexes, err := s.rdb.ZRevRange(ctx, keyTracesByTime, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: recent traces: %w", err)
	}
	out := make([]store.TraceResult, 0, len(traceHexes))
	for _, hex := range traceHexes {
		traceID, err := telemetry.TraceIDFromHex(hex)
		if err != nil {
			continue
		}
		res, err := s.traceResult(ctx, traceID)
		if err != nil {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Store) traceResult(ctx context.Context, traceID telemetry.TraceID) (store.TraceResult, error) {
	spanHexes, err := s.rdb.ZRange(ctx, keyTraceSpans+traceID.Hex(), 0, -1).Result()
	if err != nil || len(spanHexes) == 0 {
		return store.TraceResult{}, appErrors.NewNotFoundError("trace")
	}
	rootHex, _ := s.rdb.Get(ctx, keyTraceRoot+traceID.Hex()).Result()

	res := store.TraceResult{TraceID: traceID, SpanCount: len(spanHexes)}
	var minStart, maxEnd uint64
	first := true
	for _, spanHex := range spanHexes {
		spanID, err := telemetry.SpanIDFromHex(spanHex)
		if err != nil {
			continue
		}
		raw, err := s.rdb.Get(ctx, spanDataKey(traceID, spanID)).Bytes()
		if err != nil {
			continue
		}
		span, err := codec.DecodeSpan(raw)
		if err != nil {
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
		if spanHex == rootHex || res.RootName == "" {
			res.RootName = span.Name
			res.RootService = s.resolveServiceName(ctx, span.ResourceRef)
		}
	}
	if maxEnd > minStart {
		res.DurationNano = maxEnd - minStart
	}
	return res, nil
}

func (s *Store) Trace(ctx context.Context, id telemetry.TraceID) (*telemetry.Trace, error) {
	spanHexes, err := s.rdb.ZRange(ctx, keyTraceSpans+id.Hex(), 0, -1).Result()
	if err != nil || len(spanHexes) == 0 {
		return nil, appErrors.NewNotFoundError("trace")
	}
	rootHex, _ := s.rdb.Get(ctx, keyTraceRoot+id.Hex()).Result()

	trace := &telemetry.Trace{TraceID: id, Spans: make([]telemetry.Span, 0, len(spanHexes))}
	for _, spanHex := range spanHexes {
		spanID, err := telemetry.SpanIDFromHex(spanHex)
		if err != nil {
			continue
		}
		raw, err := s.rdb.Get(ctx, spanDataKey(id, spanID)).Bytes()
		if err != nil {
			continue
		}
		span, err := codec.DecodeSpan(raw)
		if err != nil {
			continue
		}
		trace.Spans = append(trace.Spans, *span)
		if spanHex == rootHex {
			sp := *span
			trace.Root = &sp
		}
	}
	if trace.Root == nil && len(trace.Spans) > 0 {
		trace.Root = &trace.Spans[0]
	}
	return trace, nil
}

func (s *Store) RecentSpans(ctx context.Context, service string, limit int) ([]store.SpanResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		keys []string
		err  error
	)
	if service != "" {
		keys, err = s.rdb.ZRevRange(ctx, keySpansByService+service, 0, int64(limit-1)).Result()
	} else {
		keys, err = s.rdb.ZRevRange(ctx, keySpansByTime, 0, int64(limit-1)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: recent spans: %w", err)
	}
	out := make([]store.SpanResult, 0, len(keys))
	for _, key := range keys {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		span, err := codec.DecodeSpan(raw)
		if err != nil {
			continue
		}
		res, _ := s.ResolveResource(ctx, span.ResourceRef)
		scope, _ := s.ResolveScope(ctx, span.ScopeRef)
		out = append(out, store.SpanResult{Span: *span, Resource: res, Scope: scope})
	}
	return out, nil
}

// WalkSpans scans the global time index in pages rather than issuing KEYS,
// per spec §4.5's "never materialize the whole store" cost bound.
func (s *Store) WalkSpans(ctx context.Context, fn func(*telemetry.Span) bool) error {
	const page = 500
	var offset int64
	for {
		keys, err := s.rdb.ZRange(ctx, keySpansByTime, offset, offset+page-1).Result()
		if err != nil {
			return fmt.Errorf("redisstore: walk spans: %w", err)
		}
		if len(keys) == 0 {
			return nil
		}
		for _, key := range keys {
			raw, err := s.rdb.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			span, err := codec.DecodeSpan(raw)
			if err != nil {
				continue
			}
			if !fn(span) {
				return nil
			}
		}
		if len(keys) < page {
			return nil
		}
		offset += page
	}
}
