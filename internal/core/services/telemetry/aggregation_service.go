package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	domain "tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
	appErrors "tinyolly/pkg/errors"
)

// AggregationService computes the derived views named in spec §4.5 — none
// of which are persisted; every call streams the Store's existing indexes
// via WalkSpans/MetricSeries rather than materializing a full copy.
type AggregationService struct {
	store  store.Store
	logger *slog.Logger
}

func NewAggregationService(s store.Store, logger *slog.Logger) *AggregationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AggregationService{store: s, logger: logger}
}

// ServiceCatalogEntry is one row of the Service Catalog view (§4.5).
type ServiceCatalogEntry struct {
	ServiceName      string
	SpanCount        int
	TraceCount       int
	FirstSeen        time.Time
	LastSeen         time.Time
	RatePerSecond    float64
	ErrorRatePercent float64
	P50Millis        float64
	P95Millis        float64
	P99Millis        float64
}

type serviceAccumulator struct {
	durationsMillis []float64
	traceIDs        map[domain.TraceID]struct{}
	spanCount       int
	errorCount      int
	firstSeenNano   uint64
	lastSeenNano    uint64
}

// ServiceCatalog computes RED metrics (rate, errors, duration) per service
// seen in the retention window, per §4.5's Service Catalog view.
func (a *AggregationService) ServiceCatalog(ctx context.Context) ([]ServiceCatalogEntry, error) {
	acc := make(map[string]*serviceAccumulator)

	err := a.store.WalkSpans(ctx, func(span *domain.Span) bool {
		res, _ := a.store.ResolveResource(ctx, span.ResourceRef)
		svc := res.ServiceName()

		sa, ok := acc[svc]
		if !ok {
			sa = &serviceAccumulator{traceIDs: make(map[domain.TraceID]struct{})}
			acc[svc] = sa
		}
		sa.spanCount++
		sa.traceIDs[span.TraceID] = struct{}{}
		sa.durationsMillis = append(sa.durationsMillis, float64(span.DurationNano())/1e6)
		if span.Status.Code == domain.StatusCodeError {
			sa.errorCount++
		}
		if sa.firstSeenNano == 0 || span.StartTimeNano < sa.firstSeenNano {
			sa.firstSeenNano = span.StartTimeNano
		}
		if span.StartTimeNano > sa.lastSeenNano {
			sa.lastSeenNano = span.StartTimeNano
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	histograms := a.durationHistogramsByService(ctx)

	out := make([]ServiceCatalogEntry, 0, len(acc))
	for svc, sa := range acc {
		firstSeen := nanoToTime(sa.firstSeenNano)
		lastSeen := nanoToTime(sa.lastSeenNano)
		windowSeconds := lastSeen.Sub(firstSeen).Seconds()
		if windowSeconds < 1 {
			windowSeconds = 1
		}

		p50, p95, p99 := percentileFromSamples(sa.durationsMillis, 50),
			percentileFromSamples(sa.durationsMillis, 95),
			percentileFromSamples(sa.durationsMillis, 99)
		if mh, ok := histograms[svc]; ok && len(mh.counts) > 0 {
			p50 = percentileFromBuckets(mh.bounds, mh.counts, 50)
			p95 = percentileFromBuckets(mh.bounds, mh.counts, 95)
			p99 = percentileFromBuckets(mh.bounds, mh.counts, 99)
		}

		entry := ServiceCatalogEntry{
			ServiceName:      svc,
			SpanCount:        sa.spanCount,
			TraceCount:       len(sa.traceIDs),
			FirstSeen:        firstSeen,
			LastSeen:         lastSeen,
			RatePerSecond:    float64(sa.spanCount) / windowSeconds,
			ErrorRatePercent: 100 * float64(sa.errorCount) / float64(sa.spanCount),
			P50Millis:        p50,
			P95Millis:        p95,
			P99Millis:        p99,
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

// mergedHistogram is one service's spanmetrics-style duration histogram,
// summed bucket-wise across every matching series, with bounds already
// converted to milliseconds.
type mergedHistogram struct {
	bounds []float64
	counts []uint64
}

// isDurationHistogramName recognizes a spanmetrics-style duration
// histogram: the OTel Collector spanmetricsconnector's default metric name
// ("duration") and semantic-convention names ending in ".duration", e.g.
// "http.server.duration".
func isDurationHistogramName(name string) bool {
	return name == "duration" || strings.HasSuffix(name, ".duration")
}

// millisPerUnit converts a histogram's declared unit into a milliseconds
// scale factor. "s", "us" and "ns" are converted; "ms" (the
// spanmetricsconnector default) and any other unit are taken as
// milliseconds already.
func millisPerUnit(unit string) float64 {
	switch unit {
	case "s":
		return 1000
	case "us":
		return 0.001
	case "ns":
		return 1e-6
	default:
		return 1
	}
}

// durationHistogramsByService scans the metric catalog once for
// spanmetrics-style duration histograms and merges, per service, the
// latest bucket snapshot of every matching series into one combined
// layout. Per §4.5, ServiceCatalog prefers this over raw span-duration
// samples when a histogram exists for the service; services with no
// matching histogram are absent from the returned map and fall back to
// percentileFromSamples.
func (a *AggregationService) durationHistogramsByService(ctx context.Context) map[string]*mergedHistogram {
	catalog, err := a.store.MetricCatalog(ctx)
	if err != nil {
		return nil
	}

	out := make(map[string]*mergedHistogram)
	for _, entry := range catalog {
		if entry.Kind != domain.MetricKindHistogram || !isDurationHistogramName(entry.Name) {
			continue
		}
		scale := millisPerUnit(entry.Unit)

		results, err := a.store.MetricSeries(ctx, entry.Name)
		if err != nil {
			continue
		}
		for _, res := range results {
			if len(res.Points) == 0 {
				continue
			}
			latest := res.Points[len(res.Points)-1]
			if latest.Histogram == nil {
				continue
			}
			bounds, counts := latest.Histogram.Explicit()
			if len(counts) == 0 {
				continue
			}

			svc := res.Resource.ServiceName()
			mh, ok := out[svc]
			if !ok {
				scaled := make([]float64, len(bounds))
				for i, b := range bounds {
					scaled[i] = b * scale
				}
				mh = &mergedHistogram{bounds: scaled, counts: make([]uint64, len(counts))}
				out[svc] = mh
			}
			if len(counts) != len(mh.counts) {
				// Bucket layout disagrees with what this service already
				// merged; skip rather than misalign bucket indexes.
				continue
			}
			for i, c := range counts {
				mh.counts[i] += c
			}
		}
	}
	return out
}

// ServiceMapNode is one node of the Service Map view.
type ServiceMapNode struct {
	Name string
	Type string // Client, Server, External, Messaging, Isolated
}

// ServiceMapEdge is a caller->callee edge with its call count.
type ServiceMapEdge struct {
	From      string
	To        string
	CallCount int
}

type ServiceMap struct {
	Nodes []ServiceMapNode
	Edges []ServiceMapEdge
}

// ServiceMap infers the service dependency graph from parent/child span
// relationships (§4.5). Two streaming passes over WalkSpans: the first
// builds a (trace_id,span_id) -> service lookup (bounded by the number of
// live spans, not the whole store's record bytes), the second walks spans
// again to locate each span's parent service and tally edges.
func (a *AggregationService) ServiceMap(ctx context.Context, limit int) (*ServiceMap, error) {
	type spanKey struct {
		trace domain.TraceID
		span  domain.SpanID
	}
	serviceOf := make(map[spanKey]string)
	isMessaging := make(map[string]bool)

	if err := a.store.WalkSpans(ctx, func(span *domain.Span) bool {
		res, _ := a.store.ResolveResource(ctx, span.ResourceRef)
		svc := res.ServiceName()
		serviceOf[spanKey{span.TraceID, span.SpanID}] = svc
		if _, ok := res.Attributes.Get("messaging.system"); ok {
			isMessaging[svc] = true
		}
		return true
	}); err != nil {
		return nil, err
	}

	edgeCounts := make(map[[2]string]int)
	incoming := make(map[string]int)
	outgoing := make(map[string]int)
	nodes := make(map[string]struct{})
	for _, svc := range serviceOf {
		nodes[svc] = struct{}{}
	}

	if err := a.store.WalkSpans(ctx, func(span *domain.Span) bool {
		if span.ParentSpanID == nil {
			return true
		}
		childSvc := serviceOf[spanKey{span.TraceID, span.SpanID}]
		parentSvc, ok := serviceOf[spanKey{span.TraceID, *span.ParentSpanID}]
		if !ok || parentSvc == childSvc {
			return true
		}
		edgeCounts[[2]string{parentSvc, childSvc}]++
		outgoing[parentSvc]++
		incoming[childSvc]++
		return true
	}); err != nil {
		return nil, err
	}

	sm := &ServiceMap{}
	names := make([]string, 0, len(nodes))
	for n := range nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		sm.Nodes = append(sm.Nodes, ServiceMapNode{Name: n, Type: nodeType(incoming[n], outgoing[n], isMessaging[n])})
	}

	for pair, count := range edgeCounts {
		sm.Edges = append(sm.Edges, ServiceMapEdge{From: pair[0], To: pair[1], CallCount: count})
	}
	sort.Slice(sm.Edges, func(i, j int) bool {
		if sm.Edges[i].CallCount != sm.Edges[j].CallCount {
			return sm.Edges[i].CallCount > sm.Edges[j].CallCount
		}
		return sm.Edges[i].From < sm.Edges[j].From
	})
	if limit > 0 && len(sm.Edges) > limit {
		sm.Edges = sm.Edges[:limit]
	}
	return sm, nil
}

func nodeType(incoming, outgoing int, messaging bool) string {
	switch {
	case messaging:
		return "Messaging"
	case incoming == 0 && outgoing == 0:
		return "Isolated"
	case incoming == 0:
		return "Client"
	case outgoing == 0:
		return "External"
	default:
		return "Server"
	}
}

// ValueCount is one distinct attribute value and how many series carry it.
type ValueCount struct {
	Value string
	Count int
}

// CardinalityAnalysis is the per-metric cardinality report (§4.5).
type CardinalityAnalysis struct {
	MetricName       string
	TotalSeries      int
	ActiveSeries     int
	LabelDimensions  []string
	LabelCardinality map[string]int
	TopValues        map[string][]ValueCount
}

// activeSeriesWindow is the "active series (1h)" definition adopted for
// the Open Question in spec §9: at least one datapoint with
// timestamp_ns >= now - 3600s.
const activeSeriesWindow = time.Hour

const topValuesPerLabel = 5

// CardinalityAnalysis streams a single metric's series list (already
// bounded by that metric alone, per §4.5's cost bound) and tabulates
// label dimensionality.
func (a *AggregationService) CardinalityAnalysis(ctx context.Context, metricName string) (*CardinalityAnalysis, error) {
	series, err := a.store.MetricSeries(ctx, metricName)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return &CardinalityAnalysis{
				MetricName:       metricName,
				LabelCardinality: make(map[string]int),
				TopValues:        make(map[string][]ValueCount),
			}, nil
		}
		return nil, err
	}

	cutoff := uint64(time.Now().Add(-activeSeriesWindow).UnixNano())
	valueCounts := make(map[string]map[string]int)
	var dims []string
	seenDim := make(map[string]bool)

	analysis := &CardinalityAnalysis{
		MetricName:       metricName,
		TotalSeries:      len(series),
		LabelCardinality: make(map[string]int),
		TopValues:        make(map[string][]ValueCount),
	}

	for _, sr := range series {
		active := false
		for _, pt := range sr.Points {
			if pt.TimestampNano >= cutoff {
				active = true
				break
			}
		}
		if active {
			analysis.ActiveSeries++
		}

		for _, attribute := range sr.Series.Attributes {
			if !seenDim[attribute.Key] {
				seenDim[attribute.Key] = true
				dims = append(dims, attribute.Key)
			}
			valStr := attributeValueString(attribute.Value)
			if valueCounts[attribute.Key] == nil {
				valueCounts[attribute.Key] = make(map[string]int)
			}
			valueCounts[attribute.Key][valStr]++
		}
	}

	sort.Strings(dims)
	analysis.LabelDimensions = dims
	for _, dim := range dims {
		analysis.LabelCardinality[dim] = len(valueCounts[dim])
		analysis.TopValues[dim] = topValues(valueCounts[dim], topValuesPerLabel)
	}

	return analysis, nil
}

func topValues(counts map[string]int, n int) []ValueCount {
	vc := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		vc = append(vc, ValueCount{Value: v, Count: c})
	}
	sort.Slice(vc, func(i, j int) bool {
		if vc[i].Count != vc[j].Count {
			return vc[i].Count > vc[j].Count
		}
		return vc[i].Value < vc[j].Value
	})
	if len(vc) > n {
		vc = vc[:n]
	}
	return vc
}

func attributeValueString(v domain.AttributeValue) string {
	switch v.Kind {
	case domain.AttrKindString:
		return v.Str
	case domain.AttrKindInt64:
		return strconv.FormatInt(v.Int, 10)
	case domain.AttrKindFloat64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case domain.AttrKindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return "<complex>"
	}
}

func nanoToTime(n uint64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(n))
}
