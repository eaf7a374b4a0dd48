package telemetry

import (
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	domain "tinyolly/internal/core/domain/telemetry"
)

func convertResource(r *resourcepb.Resource) domain.Resource {
	if r == nil {
		return domain.Resource{}
	}
	return domain.Resource{Attributes: convertKeyValues(r.GetAttributes())}
}

func convertScope(s *commonpb.InstrumentationScope) domain.Scope {
	if s == nil {
		return domain.Scope{}
	}
	return domain.Scope{
		Name:       s.GetName(),
		Version:    s.GetVersion(),
		Attributes: convertKeyValues(s.GetAttributes()),
	}
}

// convertKeyValues drops attributes of an unrecognized kind rather than
// failing the whole record, per §4.3/§7's UnsupportedAttrType policy
// ("drop offending attribute, keep record").
func convertKeyValues(kvs []*commonpb.KeyValue) domain.Attributes {
	if len(kvs) == 0 {
		return nil
	}
	out := make(domain.Attributes, 0, len(kvs))
	for _, kv := range kvs {
		v, ok := convertAnyValue(kv.GetValue())
		if !ok {
			continue
		}
		out = append(out, domain.Attribute{Key: kv.GetKey(), Value: v})
	}
	return out
}

func convertAnyValue(v *commonpb.AnyValue) (domain.AttributeValue, bool) {
	if v == nil {
		return domain.AttributeValue{}, false
	}
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return domain.AttributeValue{Kind: domain.AttrKindString, Str: val.StringValue}, true
	case *commonpb.AnyValue_IntValue:
		return domain.AttributeValue{Kind: domain.AttrKindInt64, Int: val.IntValue}, true
	case *commonpb.AnyValue_DoubleValue:
		return domain.AttributeValue{Kind: domain.AttrKindFloat64, Float: val.DoubleValue}, true
	case *commonpb.AnyValue_BoolValue:
		return domain.AttributeValue{Kind: domain.AttrKindBool, Bool: val.BoolValue}, true
	case *commonpb.AnyValue_BytesValue:
		return domain.AttributeValue{Kind: domain.AttrKindBytes, Bytes: val.BytesValue}, true
	case *commonpb.AnyValue_ArrayValue:
		items := val.ArrayValue.GetValues()
		arr := make([]domain.AttributeValue, 0, len(items))
		for _, item := range items {
			if cv, ok := convertAnyValue(item); ok {
				arr = append(arr, cv)
			}
		}
		return domain.AttributeValue{Kind: domain.AttrKindArray, Array: arr}, true
	case *commonpb.AnyValue_KvlistValue:
		m := make(map[string]domain.AttributeValue, len(val.KvlistValue.GetValues()))
		for _, kv := range val.KvlistValue.GetValues() {
			if cv, ok := convertAnyValue(kv.GetValue()); ok {
				m[kv.GetKey()] = cv
			}
		}
		return domain.AttributeValue{Kind: domain.AttrKindMap, Map: m}, true
	default:
		return domain.AttributeValue{}, false
	}
}

func convertSpan(sp *tracepb.Span, resRef domain.ResourceRef, scopeRef domain.ScopeRef) (*domain.Span, error) {
	traceID, err := traceIDFromBytes(sp.GetTraceId())
	if err != nil {
		return nil, err
	}
	spanID, err := spanIDFromBytes(sp.GetSpanId())
	if err != nil {
		return nil, err
	}
	if sp.GetStartTimeUnixNano() > sp.GetEndTimeUnixNano() {
		return nil, errInvalidID
	}

	var parent *domain.SpanID
	if len(sp.GetParentSpanId()) > 0 {
		p, err := spanIDFromBytes(sp.GetParentSpanId())
		if err == nil {
			parent = &p
		}
	}

	span := &domain.Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parent,
		Name:          sp.GetName(),
		Kind:          convertSpanKind(sp.GetKind()),
		StartTimeNano: sp.GetStartTimeUnixNano(),
		EndTimeNano:   sp.GetEndTimeUnixNano(),
		Status:        convertStatus(sp.GetStatus()),
		Attributes:    convertKeyValues(sp.GetAttributes()),
		ResourceRef:   resRef,
		ScopeRef:      scopeRef,
	}

	for _, ev := range sp.GetEvents() {
		span.Events = append(span.Events, domain.SpanEvent{
			Name:         ev.GetName(),
			Attributes:   convertKeyValues(ev.GetAttributes()),
			TimeUnixNano: ev.GetTimeUnixNano(),
		})
	}
	for _, lk := range sp.GetLinks() {
		linkTrace, err := traceIDFromBytes(lk.GetTraceId())
		if err != nil {
			continue
		}
		linkSpan, err := spanIDFromBytes(lk.GetSpanId())
		if err != nil {
			continue
		}
		span.Links = append(span.Links, domain.SpanLink{
			TraceID:    linkTrace,
			SpanID:     linkSpan,
			Attributes: convertKeyValues(lk.GetAttributes()),
		})
	}

	return span, nil
}

func convertLog(lr *logspb.LogRecord, resRef domain.ResourceRef, scopeRef domain.ScopeRef) *domain.Log {
	log := &domain.Log{
		SeverityText:   lr.GetSeverityText(),
		SeverityNumber: domain.SeverityNumber(lr.GetSeverityNumber()),
		Attributes:     convertKeyValues(lr.GetAttributes()),
		TimestampNano:  lr.GetTimeUnixNano(),
		ResourceRef:    resRef,
		ScopeRef:       scopeRef,
	}
	if body, ok := convertAnyValue(lr.GetBody()); ok {
		log.Body = body
	}
	if len(lr.GetTraceId()) > 0 {
		if t, err := traceIDFromBytes(lr.GetTraceId()); err == nil {
			log.TraceID = &t
		}
	}
	if len(lr.GetSpanId()) > 0 {
		if s, err := spanIDFromBytes(lr.GetSpanId()); err == nil {
			log.SpanID = &s
		}
	}
	return log
}

func traceIDFromBytes(b []byte) (domain.TraceID, error) {
	var t domain.TraceID
	if len(b) != len(t) {
		return t, errInvalidID
	}
	copy(t[:], b)
	return t, nil
}

func spanIDFromBytes(b []byte) (domain.SpanID, error) {
	var s domain.SpanID
	if len(b) != len(s) {
		return s, errInvalidID
	}
	copy(s[:], b)
	return s, nil
}

func convertSpanKind(k tracepb.Span_SpanKind) domain.SpanKind {
	switch k {
	case tracepb.Span_SPAN_KIND_INTERNAL:
		return domain.SpanKindInternal
	case tracepb.Span_SPAN_KIND_SERVER:
		return domain.SpanKindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return domain.SpanKindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return domain.SpanKindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return domain.SpanKindConsumer
	default:
		return domain.SpanKindUnspecified
	}
}

func convertStatus(s *tracepb.Status) domain.Status {
	if s == nil {
		return domain.Status{Code: domain.StatusCodeUnset}
	}
	var code domain.StatusCode
	switch s.GetCode() {
	case tracepb.Status_STATUS_CODE_OK:
		code = domain.StatusCodeOK
	case tracepb.Status_STATUS_CODE_ERROR:
		code = domain.StatusCodeError
	default:
		code = domain.StatusCodeUnset
	}
	return domain.Status{Code: code, Message: s.GetMessage()}
}

// metricPoint pairs a converted DataPoint with the attributes of the
// series it belongs to, since domain.DataPoint itself carries no
// attributes (those live on the owning Series).
type metricPoint struct {
	attrs domain.Attributes
	point domain.DataPoint
}

// metricDataPoints detects the populated oneof (§4.3 step 5) and flattens
// every data point, setting entry.Kind as a side effect so the caller can
// check it against the catalog before admitting any point.
func metricDataPoints(m *metricspb.Metric, entry *domain.MetricCatalogEntry) []metricPoint {
	switch {
	case m.GetGauge() != nil:
		entry.Kind = domain.MetricKindGauge
		return numberDataPoints(m.GetGauge().GetDataPoints())
	case m.GetSum() != nil:
		entry.Kind = domain.MetricKindSum
		return numberDataPoints(m.GetSum().GetDataPoints())
	case m.GetHistogram() != nil:
		entry.Kind = domain.MetricKindHistogram
		return histogramDataPoints(m.GetHistogram().GetDataPoints())
	case m.GetExponentialHistogram() != nil:
		entry.Kind = domain.MetricKindExponentialHistogram
		return exponentialHistogramDataPoints(m.GetExponentialHistogram().GetDataPoints())
	case m.GetSummary() != nil:
		entry.Kind = domain.MetricKindSummary
		return summaryDataPoints(m.GetSummary().GetDataPoints())
	default:
		return nil
	}
}

func numberDataPoints(dps []*metricspb.NumberDataPoint) []metricPoint {
	out := make([]metricPoint, 0, len(dps))
	for _, dp := range dps {
		var value float64
		switch v := dp.GetValue().(type) {
		case *metricspb.NumberDataPoint_AsDouble:
			value = v.AsDouble
		case *metricspb.NumberDataPoint_AsInt:
			value = float64(v.AsInt)
		}
		out = append(out, metricPoint{
			attrs: convertKeyValues(dp.GetAttributes()),
			point: domain.DataPoint{
				Value:         value,
				TimestampNano: dp.GetTimeUnixNano(),
				Exemplars:     convertExemplars(dp.GetExemplars()),
			},
		})
	}
	return out
}

func histogramDataPoints(dps []*metricspb.HistogramDataPoint) []metricPoint {
	out := make([]metricPoint, 0, len(dps))
	for _, dp := range dps {
		var sum float64
		if dp.Sum != nil {
			sum = dp.GetSum()
		}
		out = append(out, metricPoint{
			attrs: convertKeyValues(dp.GetAttributes()),
			point: domain.DataPoint{
				Count:         dp.GetCount(),
				Sum:           sum,
				IsHistogram:   true,
				TimestampNano: dp.GetTimeUnixNano(),
				Exemplars:     convertExemplars(dp.GetExemplars()),
				Histogram: &domain.HistogramBuckets{
					ExplicitBounds: dp.GetExplicitBounds(),
					BucketCounts:   dp.GetBucketCounts(),
				},
			},
		})
	}
	return out
}

func exponentialHistogramDataPoints(dps []*metricspb.ExponentialHistogramDataPoint) []metricPoint {
	out := make([]metricPoint, 0, len(dps))
	for _, dp := range dps {
		var sum float64
		if dp.Sum != nil {
			sum = dp.GetSum()
		}
		buckets := &domain.HistogramBuckets{
			Exponential: &domain.ExponentialBuckets{
				Scale:     dp.GetScale(),
				ZeroCount: dp.GetZeroCount(),
			},
		}
		if pos := dp.GetPositive(); pos != nil {
			buckets.Exponential.PositiveCounts = pos.GetBucketCounts()
			buckets.Exponential.PositiveOffset = pos.GetOffset()
		}
		if neg := dp.GetNegative(); neg != nil {
			buckets.Exponential.NegativeCounts = neg.GetBucketCounts()
			buckets.Exponential.NegativeOffset = neg.GetOffset()
		}
		out = append(out, metricPoint{
			attrs: convertKeyValues(dp.GetAttributes()),
			point: domain.DataPoint{
				Count:         dp.GetCount(),
				Sum:           sum,
				IsHistogram:   true,
				TimestampNano: dp.GetTimeUnixNano(),
				Exemplars:     convertExemplars(dp.GetExemplars()),
				Histogram:     buckets,
			},
		})
	}
	return out
}

// summaryDataPoints stores count/sum only: the internal DataPoint model
// (shared with Gauge/Sum/Histogram) has no per-quantile field, so
// quantile values are not retained. Summary is a legacy OTLP metric kind;
// new instrumentation uses Histogram or ExponentialHistogram.
func summaryDataPoints(dps []*metricspb.SummaryDataPoint) []metricPoint {
	out := make([]metricPoint, 0, len(dps))
	for _, dp := range dps {
		out = append(out, metricPoint{
			attrs: convertKeyValues(dp.GetAttributes()),
			point: domain.DataPoint{
				Count:         dp.GetCount(),
				Sum:           dp.GetSum(),
				TimestampNano: dp.GetTimeUnixNano(),
			},
		})
	}
	return out
}

func convertExemplars(exemplars []*metricspb.Exemplar) []domain.Exemplar {
	if len(exemplars) == 0 {
		return nil
	}
	out := make([]domain.Exemplar, 0, len(exemplars))
	for _, ex := range exemplars {
		var value float64
		switch v := ex.GetValue().(type) {
		case *metricspb.Exemplar_AsDouble:
			value = v.AsDouble
		case *metricspb.Exemplar_AsInt:
			value = float64(v.AsInt)
		}
		e := domain.Exemplar{Value: value}
		if t, err := traceIDFromBytes(ex.GetTraceId()); err == nil {
			e.TraceID = t
		}
		if s, err := spanIDFromBytes(ex.GetSpanId()); err == nil {
			e.SpanID = s
		}
		out = append(out, e)
	}
	return out
}
