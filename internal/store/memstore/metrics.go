package memstore

import (
	"context"
	"sort"
	"sync/atomic"

	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
	"tinyolly/pkg/errors"
)

// seriesRecord pairs a series with the metric name it belongs to, since
// telemetry.Series itself only carries a fingerprint — the metric name
// lives one level up, in the catalog.
type seriesRecord struct {
	metricName string
	series     telemetry.Series
}

func (s *Store) PutSeriesPoint(_ context.Context, catalogEntry telemetry.MetricCatalogEntry, series telemetry.Series, point telemetry.DataPoint) error {
	if existing, ok := s.metricCatalog.Get(catalogEntry.Name); ok {
		if existing.Kind != catalogEntry.Kind {
			return errors.NewMetricKindConflictError(catalogEntry.Name, existing.Kind.String(), catalogEntry.Kind.String())
		}
	} else if !s.cardinality.admit(catalogEntry.Name) {
		atomic.AddInt64(&s.metricsDropped, 1)
		s.logger.Warn("metric cardinality limit exceeded, dropping series",
			"metric", catalogEntry.Name, "limit", s.cardinality.limit)
		return errors.NewCardinalityExceededError(catalogEntry.Name)
	}
	// Refresh the catalog entry's sweep timestamp on every point, not just
	// first-seen, so an actively-reporting metric's entry never ages out of
	// MetricCatalog/MetricSeries while its series keeps receiving points.
	s.metricCatalog.Put(catalogEntry.Name, &catalogEntry, nowNano())

	key := seriesKey(catalogEntry.Name, series.Fingerprint)
	s.series.Put(key, &seriesRecord{metricName: catalogEntry.Name, series: series}, series.LastUpdateNano)
	atomic.AddInt64(&s.bytesUsed, pointByteSize(&point))
	s.seriesPoints.Update(key, series.LastUpdateNano, func(old []telemetry.DataPoint, existed bool) []telemetry.DataPoint {
		return append(old, point)
	})
	return nil
}

func (s *Store) MetricCatalog(_ context.Context) ([]telemetry.MetricCatalogEntry, error) {
	var out []telemetry.MetricCatalogEntry
	s.metricCatalog.Walk(func(e *telemetry.MetricCatalogEntry) bool {
		out = append(out, *e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) MetricSeries(_ context.Context, metricName string) ([]store.SeriesResult, error) {
	if _, ok := s.metricCatalog.Get(metricName); !ok {
		return nil, errors.NewNotFoundError("metric")
	}
	cutoff := nowNano() - s.ttl.Nanoseconds()

	var records []*seriesRecord
	s.series.Walk(func(rec *seriesRecord) bool {
		if rec.metricName == metricName {
			records = append(records, rec)
		}
		return true
	})

	out := make([]store.SeriesResult, 0, len(records))
	for _, rec := range records {
		key := seriesKey(metricName, rec.series.Fingerprint)
		points, _ := s.seriesPoints.Get(key)
		live := make([]telemetry.DataPoint, 0, len(points))
		for _, p := range points {
			if int64(p.TimestampNano) >= cutoff {
				live = append(live, p)
			}
		}
		res, _ := s.resources.resolve(rec.series.ResourceRef)
		out = append(out, store.SeriesResult{Series: rec.series, Resource: res, Points: live})
	}
	return out, nil
}
