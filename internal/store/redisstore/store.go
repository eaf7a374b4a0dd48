// Package redisstore is the alternate Store backend (spec's SPEC_FULL
// extension over §4.2): identical contract to memstore, but the working
// set lives in Redis instead of the process heap, using sorted sets for
// time ordering and native key TTL for retention — useful when TinyOlly
// itself should stay stateless across restarts within a dev session, or
// when multiple TinyOlly processes should share one backing store.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
)

const (
	keySpanData     = "tinyolly:span:"
	keySpansByTime  = "tinyolly:idx:spans:time"
	keySpansByService = "tinyolly:idx:spans:service:"
	keyTraceSpans   = "tinyolly:idx:trace:spans:"
	keyTracesByTime = "tinyolly:idx:traces:time"
	keyTraceRoot    = "tinyolly:trace:root:"
	keyLogData      = "tinyolly:log:"
	keyLogsByTime   = "tinyolly:idx:logs:time"
	keyLogsByTrace  = "tinyolly:idx:logs:trace:"
	keyMetricCatalog = "tinyolly:metrics:catalog"
	keySeriesData   = "tinyolly:series:"
	keySeriesIndex  = "tinyolly:idx:metric:series:"
	keyPointsByTime = "tinyolly:idx:series:points:"
	keyResources    = "tinyolly:resources"
	keyScopes       = "tinyolly:scopes"
	keyCardinality  = "tinyolly:cardinality:names"
	keyMetricsDropped = "tinyolly:metrics:dropped"
)

// Store is the Redis-backed Store implementation.
type Store struct {
	rdb *redis.Client
	logger *slog.Logger

	ttl             time.Duration
	maxCardinality  int
	startedAt       time.Time
}

// Options configures a redisstore.Store.
type Options struct {
	Addr                string
	TTL                 time.Duration
	MaxMetricCardinality int
}

// New connects to Redis at opts.Addr and returns a ready Store. The
// connection is verified with a PING before returning, matching the
// teacher's NewRedisDB construction pattern.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: failed to ping redis at %s: %w", opts.Addr, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	maxCard := opts.MaxMetricCardinality
	if maxCard <= 0 {
		maxCard = 1000
	}

	logger.Info("connected to redis store backend", "addr", opts.Addr, "ttl", ttl)

	return &Store{rdb: client, logger: logger, ttl: ttl, maxCardinality: maxCard, startedAt: time.Now()}, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// usedMemoryBytes asks Redis itself how much memory it has resident, via
// INFO memory's used_memory field, rather than re-deriving an estimate key
// by key — since TTL reclamation happens inside Redis asynchronously as
// keys expire, a locally-tracked counter would drift from what's actually
// resident. This assumes the target Redis instance is dedicated to one
// TinyOlly dataset, matching this backend's local-dev use case.
func (s *Store) usedMemoryBytes(ctx context.Context) int64 {
	info, err := s.rdb.Info(ctx, "memory").Result()
	if err != nil {
		s.logger.Warn("redisstore: failed to read INFO memory", "error", err)
		return 0
	}
	for _, line := range strings.Split(info, "\r\n") {
		val, ok := strings.CutPrefix(line, "used_memory:")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func spanDataKey(traceID telemetry.TraceID, spanID telemetry.SpanID) string {
	return keySpanData + traceID.Hex() + ":" + spanID.Hex()
}

func logDataKey(id string) string { return keyLogData + id }

func seriesDataKey(metricName string, fp telemetry.SeriesFingerprint) string {
	return fmt.Sprintf("%s%s:%016x", keySeriesData, metricName, uint64(fp))
}

var _ store.Store = (*Store)(nil)
