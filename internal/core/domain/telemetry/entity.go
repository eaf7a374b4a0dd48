// Package telemetry defines the internal record model that every other
// component — codec, store, normalizer, aggregation engine, query API —
// operates on. Records are immutable once constructed; nothing in this
// package mutates a record after Normalize returns it.
package telemetry

import (
	"encoding/hex"
	"math"
)

// AttrKind identifies the dynamic type carried by an AttributeValue,
// mirroring OTLP's AnyValue oneof.
type AttrKind uint8

const (
	AttrKindString AttrKind = iota
	AttrKindInt64
	AttrKindFloat64
	AttrKindBool
	AttrKindBytes
	AttrKindArray
	AttrKindMap
)

// AttributeValue is a typed OTLP attribute value. Only one of the fields
// indicated by Kind is meaningful.
type AttributeValue struct {
	Array   []AttributeValue
	Map     map[string]AttributeValue
	Str     string
	Bytes   []byte
	Int     int64
	Float   float64
	Kind    AttrKind
	Bool    bool
}

// Attributes is an ordered set of key/value pairs. Order is preserved from
// the wire so that re-serialization is deterministic.
type Attributes []Attribute

type Attribute struct {
	Key   string
	Value AttributeValue
}

// Get returns the value for key and whether it was present.
func (a Attributes) Get(key string) (AttributeValue, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return AttributeValue{}, false
}

// GetString is a convenience accessor for string-typed attributes such as
// service.name, used pervasively by the aggregation engine.
func (a Attributes) GetString(key string) (string, bool) {
	v, ok := a.Get(key)
	if !ok || v.Kind != AttrKindString {
		return "", false
	}
	return v.Str, true
}

// ResourceRef is a content-hash handle into the Resource interning table.
type ResourceRef uint64

// ScopeRef is a content-hash handle into the Scope interning table.
type ScopeRef uint64

// Resource describes the producer of telemetry (service.name, host.name, ...).
// Interned: identified by a content hash over its sorted attributes.
type Resource struct {
	Attributes Attributes
	SchemaURL  string
}

// Scope identifies an instrumentation library.
type Scope struct {
	Name       string
	Version    string
	Attributes Attributes
	SchemaURL  string
}

// ServiceName extracts the `service.name` resource attribute, falling back
// to "unknown_service" per OTLP convention when absent.
func (r Resource) ServiceName() string {
	if name, ok := r.Attributes.GetString("service.name"); ok && name != "" {
		return name
	}
	return "unknown_service"
}

// SpanKind mirrors OTLP's Span.SpanKind enum.
type SpanKind int32

const (
	SpanKindUnspecified SpanKind = 0
	SpanKindInternal    SpanKind = 1
	SpanKindServer      SpanKind = 2
	SpanKindClient      SpanKind = 3
	SpanKindProducer    SpanKind = 4
	SpanKindConsumer    SpanKind = 5
)

// StatusCode mirrors OTLP's Status.StatusCode enum.
type StatusCode int32

const (
	StatusCodeUnset StatusCode = 0
	StatusCodeOK    StatusCode = 1
	StatusCodeError StatusCode = 2
)

// TraceID is the 16-byte OTLP trace identifier.
type TraceID [16]byte

func (t TraceID) Hex() string  { return hex.EncodeToString(t[:]) }
func (t TraceID) IsZero() bool { return t == TraceID{} }

func TraceIDFromHex(s string) (TraceID, error) {
	var t TraceID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(t) {
		return t, errInvalidTraceID
	}
	copy(t[:], b)
	return t, nil
}

// SpanID is the 8-byte OTLP span identifier.
type SpanID [8]byte

func (s SpanID) Hex() string  { return hex.EncodeToString(s[:]) }
func (s SpanID) IsZero() bool { return s == SpanID{} }

func SpanIDFromHex(s string) (SpanID, error) {
	var id SpanID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, errInvalidSpanID
	}
	copy(id[:], b)
	return id, nil
}

// Status is a span or log status.
type Status struct {
	Message string
	Code    StatusCode
}

// SpanEvent is a timestamped annotation within a span.
type SpanEvent struct {
	Name       string
	Attributes Attributes
	TimeUnixNano uint64
}

// SpanLink references a span in another (or the same) trace.
type SpanLink struct {
	TraceID    TraceID
	SpanID     SpanID
	Attributes Attributes
}

// Span is the internal record for a single OTLP span.
type Span struct {
	TraceID       TraceID
	SpanID        SpanID
	ParentSpanID  *SpanID
	Name          string
	Attributes    Attributes
	Events        []SpanEvent
	Links         []SpanLink
	Status        Status
	ResourceRef   ResourceRef
	ScopeRef      ScopeRef
	Kind          SpanKind
	StartTimeNano uint64
	EndTimeNano   uint64
	IngestTimeNano int64
}

// DurationNano is EndTimeNano - StartTimeNano, guaranteed non-negative by
// the normalizer's validation step.
func (s Span) DurationNano() uint64 { return s.EndTimeNano - s.StartTimeNano }

// Trace is a derived, read-time view over the spans sharing a TraceID; the
// store never persists a Trace object directly, only its member spans. The
// Root is the earliest span whose ParentSpanID is absent or not present
// among Spans.
type Trace struct {
	TraceID TraceID
	Spans   []Span
	Root    *Span
}

// SeverityNumber mirrors OTLP's 1-24 severity scale.
type SeverityNumber int32

// SeverityName maps an OTLP severity number to its canonical short name by
// banding the 1-24 range into groups of 4, per the OTLP logs data model.
func SeverityName(n SeverityNumber) string {
	switch {
	case n <= 0:
		return "UNSPECIFIED"
	case n <= 4:
		return "TRACE"
	case n <= 8:
		return "DEBUG"
	case n <= 12:
		return "INFO"
	case n <= 16:
		return "WARN"
	case n <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// Log is the internal record for a single OTLP log record.
type Log struct {
	Body           AttributeValue
	SeverityText   string
	Attributes     Attributes
	TraceID        *TraceID
	SpanID         *SpanID
	TimestampNano  uint64
	SeverityNumber SeverityNumber
	ResourceRef    ResourceRef
	ScopeRef       ScopeRef
	IngestTimeNano int64
}

// MetricKind distinguishes the oneof payload a Metric carries.
type MetricKind uint8

const (
	MetricKindGauge MetricKind = iota
	MetricKindSum
	MetricKindHistogram
	MetricKindSummary
	MetricKindExponentialHistogram
)

func (k MetricKind) String() string {
	switch k {
	case MetricKindGauge:
		return "gauge"
	case MetricKindSum:
		return "sum"
	case MetricKindHistogram:
		return "histogram"
	case MetricKindSummary:
		return "summary"
	case MetricKindExponentialHistogram:
		return "exponential_histogram"
	default:
		return "unknown"
	}
}

// MetricCatalogEntry is the Store's per-name catalog row.
type MetricCatalogEntry struct {
	Name        string
	Unit        string
	Description string
	Kind        MetricKind
}

// SeriesFingerprint is a stable hash over a series' sorted attributes.
type SeriesFingerprint uint64

// Exemplar references a specific trace/span that produced a data point.
type Exemplar struct {
	TraceID TraceID
	SpanID  SpanID
	Value   float64
}

// HistogramBuckets holds native (queried-on-demand-normalized) bucket
// layout: either explicit bounds or an exponential base/scale/offset.
type HistogramBuckets struct {
	ExplicitBounds []float64
	BucketCounts   []uint64
	Exponential    *ExponentialBuckets
}

// ExponentialBuckets is ExponentialHistogram's native layout.
type ExponentialBuckets struct {
	PositiveCounts []uint64
	NegativeCounts []uint64
	Scale          int32
	PositiveOffset int32
	NegativeOffset int32
	ZeroCount      uint64
}

// Explicit returns an explicit-bound view of the buckets, converting from
// the exponential layout lazily (never stored materialized) per §4.3.
func (h HistogramBuckets) Explicit() (bounds []float64, counts []uint64) {
	if h.Exponential == nil {
		return h.ExplicitBounds, h.BucketCounts
	}
	base := math.Pow(2, math.Pow(2, -float64(h.Exponential.Scale)))
	n := len(h.Exponential.PositiveCounts)
	bounds = make([]float64, n)
	for i := range bounds {
		bounds[i] = math.Pow(base, float64(int(h.Exponential.PositiveOffset)+i+1))
	}
	return bounds, h.Exponential.PositiveCounts
}

// DataPoint is one sample within a Series.
type DataPoint struct {
	Histogram      *HistogramBuckets
	Exemplars      []Exemplar
	Value          float64
	Count          uint64
	Sum            float64
	TimestampNano  uint64
	IsHistogram    bool
}

// Series is one attribute-combination within a Metric.
type Series struct {
	Fingerprint   SeriesFingerprint
	Attributes    Attributes
	ResourceRef   ResourceRef
	LastUpdateNano int64
}

var (
	errInvalidTraceID = simpleError("invalid trace id")
	errInvalidSpanID  = simpleError("invalid span id")
)

type simpleError string

func (e simpleError) Error() string { return string(e) }
