package http

import (
	"encoding/base64"

	domain "tinyolly/internal/core/domain/telemetry"
	"tinyolly/internal/store"
)

// attrsToJSON renders Attributes as a plain JSON-friendly map, per spec
// §4.6 ("all responses are OTEL-shaped JSON"). Recurses for Array/Map
// kinds; byte values are base64-encoded since JSON has no native bytes.
func attrsToJSON(attrs domain.Attributes) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[kv.Key] = attrValueToJSON(kv.Value)
	}
	return out
}

func attrValueToJSON(v domain.AttributeValue) interface{} {
	switch v.Kind {
	case domain.AttrKindString:
		return v.Str
	case domain.AttrKindInt64:
		return v.Int
	case domain.AttrKindFloat64:
		return v.Float
	case domain.AttrKindBool:
		return v.Bool
	case domain.AttrKindBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes)
	case domain.AttrKindArray:
		arr := make([]interface{}, len(v.Array))
		for i, item := range v.Array {
			arr[i] = attrValueToJSON(item)
		}
		return arr
	case domain.AttrKindMap:
		m := make(map[string]interface{}, len(v.Map))
		for k, item := range v.Map {
			m[k] = attrValueToJSON(item)
		}
		return m
	default:
		return nil
	}
}

type spanDTO struct {
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	TraceID      string                  `json:"trace_id"`
	SpanID       string                  `json:"span_id"`
	ParentSpanID string                  `json:"parent_span_id,omitempty"`
	Name         string                  `json:"name"`
	Kind         string                  `json:"kind"`
	ServiceName  string                  `json:"service_name"`
	ScopeName    string                  `json:"scope_name,omitempty"`
	StatusCode   string                  `json:"status_code"`
	StatusMsg    string                  `json:"status_message,omitempty"`
	Events       []eventDTO              `json:"events,omitempty"`
	Links        []linkDTO               `json:"links,omitempty"`
	StartTimeNano uint64                 `json:"start_time_nano"`
	EndTimeNano   uint64                 `json:"end_time_nano"`
}

type eventDTO struct {
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Name       string                  `json:"name"`
	TimeNano   uint64                  `json:"time_nano"`
}

type linkDTO struct {
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	TraceID    string                  `json:"trace_id"`
	SpanID     string                  `json:"span_id"`
}

func spanKindString(k domain.SpanKind) string {
	switch k {
	case domain.SpanKindInternal:
		return "internal"
	case domain.SpanKindServer:
		return "server"
	case domain.SpanKindClient:
		return "client"
	case domain.SpanKindProducer:
		return "producer"
	case domain.SpanKindConsumer:
		return "consumer"
	default:
		return "unspecified"
	}
}

func statusCodeString(c domain.StatusCode) string {
	switch c {
	case domain.StatusCodeOK:
		return "ok"
	case domain.StatusCodeError:
		return "error"
	default:
		return "unset"
	}
}

func toSpanDTO(span domain.Span, resource domain.Resource, scope domain.Scope) spanDTO {
	dto := spanDTO{
		TraceID:       span.TraceID.Hex(),
		SpanID:        span.SpanID.Hex(),
		Name:          span.Name,
		Kind:          spanKindString(span.Kind),
		ServiceName:   resource.ServiceName(),
		ScopeName:     scope.Name,
		StatusCode:    statusCodeString(span.Status.Code),
		StatusMsg:     span.Status.Message,
		StartTimeNano: span.StartTimeNano,
		EndTimeNano:   span.EndTimeNano,
		Attributes:    attrsToJSON(span.Attributes),
	}
	if span.ParentSpanID != nil {
		dto.ParentSpanID = span.ParentSpanID.Hex()
	}
	for _, e := range span.Events {
		dto.Events = append(dto.Events, eventDTO{Name: e.Name, TimeNano: e.TimeUnixNano, Attributes: attrsToJSON(e.Attributes)})
	}
	for _, l := range span.Links {
		dto.Links = append(dto.Links, linkDTO{TraceID: l.TraceID.Hex(), SpanID: l.SpanID.Hex(), Attributes: attrsToJSON(l.Attributes)})
	}
	return dto
}

type traceSummaryDTO struct {
	TraceID      string `json:"trace_id"`
	RootName     string `json:"root_name,omitempty"`
	RootService  string `json:"root_service,omitempty"`
	SpanCount    int    `json:"span_count"`
	DurationNano uint64 `json:"duration_nano"`
	HasError     bool   `json:"has_error"`
	FirstSeenNano int64 `json:"first_seen_nano"`
	LastSeenNano  int64 `json:"last_seen_nano"`
}

func toTraceSummaryDTO(r store.TraceResult) traceSummaryDTO {
	return traceSummaryDTO{
		TraceID:       r.TraceID.Hex(),
		RootName:      r.RootName,
		RootService:   r.RootService,
		SpanCount:     r.SpanCount,
		DurationNano:  r.DurationNano,
		HasError:      r.HasError,
		FirstSeenNano: r.FirstSeen.UnixNano(),
		LastSeenNano:  r.LastSeen.UnixNano(),
	}
}

type logDTO struct {
	Body           interface{}             `json:"body"`
	Attributes     map[string]interface{}  `json:"attributes,omitempty"`
	TraceID        string                  `json:"trace_id,omitempty"`
	SpanID         string                  `json:"span_id,omitempty"`
	ServiceName    string                  `json:"service_name"`
	SeverityText   string                  `json:"severity_text,omitempty"`
	SeverityName   string                  `json:"severity_name"`
	TimestampNano  uint64                  `json:"timestamp_nano"`
	SeverityNumber int32                   `json:"severity_number"`
}

func toLogDTO(r store.LogResult) logDTO {
	dto := logDTO{
		Body:           attrValueToJSON(r.Log.Body),
		Attributes:     attrsToJSON(r.Log.Attributes),
		ServiceName:    r.Resource.ServiceName(),
		SeverityText:   r.Log.SeverityText,
		SeverityName:   domain.SeverityName(r.Log.SeverityNumber),
		TimestampNano:  r.Log.TimestampNano,
		SeverityNumber: int32(r.Log.SeverityNumber),
	}
	if r.Log.TraceID != nil {
		dto.TraceID = r.Log.TraceID.Hex()
	}
	if r.Log.SpanID != nil {
		dto.SpanID = r.Log.SpanID.Hex()
	}
	return dto
}

type metricCatalogDTO struct {
	Name        string `json:"name"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
}

func toMetricCatalogDTO(e domain.MetricCatalogEntry) metricCatalogDTO {
	return metricCatalogDTO{Name: e.Name, Unit: e.Unit, Description: e.Description, Kind: e.Kind.String()}
}

type seriesDTO struct {
	Attributes  map[string]interface{} `json:"attributes"`
	ServiceName string                  `json:"service_name"`
	Points      []dataPointDTO          `json:"points"`
}

type dataPointDTO struct {
	Buckets       *bucketsDTO `json:"buckets,omitempty"`
	Value         float64     `json:"value,omitempty"`
	Count         uint64      `json:"count,omitempty"`
	Sum           float64     `json:"sum,omitempty"`
	TimestampNano uint64      `json:"timestamp_nano"`
	IsHistogram   bool        `json:"is_histogram"`
}

type bucketsDTO struct {
	Bounds []float64 `json:"bounds"`
	Counts []uint64  `json:"counts"`
}

func toSeriesDTO(r store.SeriesResult) seriesDTO {
	dto := seriesDTO{
		Attributes:  attrsToJSON(r.Series.Attributes),
		ServiceName: r.Resource.ServiceName(),
	}
	for _, p := range r.Points {
		point := dataPointDTO{
			Value:         p.Value,
			Count:         p.Count,
			Sum:           p.Sum,
			TimestampNano: p.TimestampNano,
			IsHistogram:   p.IsHistogram,
		}
		if p.Histogram != nil {
			bounds, counts := p.Histogram.Explicit()
			point.Buckets = &bucketsDTO{Bounds: bounds, Counts: counts}
		}
		dto.Points = append(dto.Points, point)
	}
	return dto
}
