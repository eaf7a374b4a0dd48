package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tinyolly/internal/codec"
	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
	"tinyolly/pkg/ulid"
)

func (s *Store) PutLog(ctx context.Context, log *telemetry.Log) error {
	id := ulid.New().String()
	dataKey := logDataKey(id)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, dataKey, codec.EncodeLog(log), s.ttl)
	pipe.ZAdd(ctx, keyLogsByTime, redis.Z{Score: float64(log.IngestTimeNano), Member: dataKey})
	if log.TraceID != nil {
		traceKey := keyLogsByTrace + log.TraceID.Hex()
		pipe.ZAdd(ctx, traceKey, redis.Z{Score: float64(log.IngestTimeNano), Member: dataKey})
		pipe.Expire(ctx, traceKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisstore: put log: %w", err)
	}
	return nil
}

func (s *Store) RecentLogs(ctx context.Context, traceID *telemetry.TraceID, minSeverity telemetry.SeverityNumber, limit int) ([]store.LogResult, error) {
	if limit <= 0 {
		limit = 100
	}
	indexKey := keyLogsByTime
	if traceID != nil {
		indexKey = keyLogsByTrace + traceID.Hex()
	}

	const fetchMultiplier = 4
	keys, err := s.rdb.ZRevRange(ctx, indexKey, 0, int64(limit*fetchMultiplier-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: recent logs: %w", err)
	}
	out := make([]store.LogResult, 0, limit)
	for _, key := range keys {
		if len(out) >= limit {
			break
		}
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		log, err := codec.DecodeLog(raw)
		if err != nil {
			continue
		}
		if minSeverity > 0 && log.SeverityNumber < minSeverity {
			continue
		}
		res, _ := s.ResolveResource(ctx, log.ResourceRef)
		out = append(out, store.LogResult{Log: *log, Resource: res})
	}
	return out, nil
}
