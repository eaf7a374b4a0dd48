package redisstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"tinyolly/internal/codec"
	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
	appErrors "tinyolly/pkg/errors"
)

func (s *Store) PutSeriesPoint(ctx context.Context, entry telemetry.MetricCatalogEntry, series telemetry.Series, point telemetry.DataPoint) error {
	existingRaw, err := s.rdb.HGet(ctx, keyMetricCatalog, entry.Name).Bytes()
	if err == nil {
		existing, decErr := codec.DecodeMetricCatalogEntry(existingRaw)
		if decErr == nil && existing.Kind != entry.Kind {
			return appErrors.NewMetricKindConflictError(entry.Name, existing.Kind.String(), entry.Kind.String())
		}
	} else {
		admitted, aerr := s.admitMetricName(ctx, entry.Name)
		if aerr != nil {
			return aerr
		}
		if !admitted {
			s.rdb.Incr(ctx, keyMetricsDropped)
			s.logger.Warn("metric cardinality limit exceeded, dropping series", "metric", entry.Name)
			return appErrors.NewCardinalityExceededError(entry.Name)
		}
		s.rdb.HSet(ctx, keyMetricCatalog, entry.Name, codec.EncodeMetricCatalogEntry(&entry))
	}

	seriesKey := seriesDataKey(entry.Name, series.Fingerprint)
	pointsKey := keyPointsByTime + seriesKey

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, seriesKey, codec.EncodeSeries(&series), s.ttl)
	pipe.SAdd(ctx, keySeriesIndex+entry.Name, seriesKey)
	pipe.Expire(ctx, keySeriesIndex+entry.Name, s.ttl)
	pipe.ZAdd(ctx, pointsKey, redis.Z{Score: float64(point.TimestampNano), Member: codec.EncodeDataPoint(&point)})
	pipe.Expire(ctx, pointsKey, s.ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisstore: put series point: %w", err)
	}
	return nil
}

// admitMetricName applies the cardinality guard using a Redis set as the
// distinct-name ledger: SCard gives the current count, SAdd is the atomic
// admission. A small race between the two (two goroutines both observing
// room for one more name) can let the set exceed the limit by a handful of
// names under heavy concurrent first-seen traffic; memstore's in-process
// mutex doesn't have this gap, which is the tradeoff of a Redis-shared
// guard across multiple TinyOlly processes.
func (s *Store) admitMetricName(ctx context.Context, name string) (bool, error) {
	exists, err := s.rdb.SIsMember(ctx, keyCardinality, name).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: cardinality check: %w", err)
	}
	if exists {
		return true, nil
	}
	count, err := s.rdb.SCard(ctx, keyCardinality).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: cardinality count: %w", err)
	}
	if int(count) >= s.maxCardinality {
		return false, nil
	}
	if err := s.rdb.SAdd(ctx, keyCardinality, name).Err(); err != nil {
		return false, fmt.Errorf("redisstore: cardinality admit: %w", err)
	}
	return true, nil
}

func (s *Store) MetricCatalog(ctx context.Context) ([]telemetry.MetricCatalogEntry, error) {
	raw, err := s.rdb.HGetAll(ctx, keyMetricCatalog).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: metric catalog: %w", err)
	}
	out := make([]telemetry.MetricCatalogEntry, 0, len(raw))
	for _, v := range raw {
		entry, err := codec.DecodeMetricCatalogEntry([]byte(v))
		if err != nil {
			continue
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) MetricSeries(ctx context.Context, metricName string) ([]store.SeriesResult, error) {
	if exists, err := s.rdb.HExists(ctx, keyMetricCatalog, metricName).Result(); err != nil || !exists {
		return nil, appErrors.NewNotFoundError("metric")
	}
	seriesKeys, err := s.rdb.SMembers(ctx, keySeriesIndex+metricName).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: metric series: %w", err)
	}
	out := make([]store.SeriesResult, 0, len(seriesKeys))
	for _, sk := range seriesKeys {
		raw, err := s.rdb.Get(ctx, sk).Bytes()
		if err != nil {
			continue
		}
		series, err := codec.DecodeSeries(raw)
		if err != nil {
			continue
		}
		pointRaws, err := s.rdb.ZRange(ctx, keyPointsByTime+sk, 0, -1).Result()
		if err != nil {
			continue
		}
		points := make([]telemetry.DataPoint, 0, len(pointRaws))
		for _, pr := range pointRaws {
			p, err := codec.DecodeDataPoint([]byte(pr))
			if err != nil {
				continue
			}
			points = append(points, *p)
		}
		res, _ := s.ResolveResource(ctx, series.ResourceRef)
		out = append(out, store.SeriesResult{Series: *series, Resource: res, Points: points})
	}
	return out, nil
}
