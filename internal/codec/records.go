package codec

import (
	"sort"

	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/pkg/errors"
)

// TraceSummary is the Store's "Trace lookup" value (spec §4.2): the set of
// span ids belonging to a trace plus enough bookkeeping to answer
// GET /api/traces/{id} without a full index scan.
type TraceSummary struct {
	TraceID       telemetry.TraceID
	SpanIDs       []telemetry.SpanID
	RootSpanID    *telemetry.SpanID
	FirstSeenNano int64
	LastSeenNano  int64
}

func writeAttrValue(w *writer, v telemetry.AttributeValue) {
	w.WriteByte_(byte(v.Kind))
	switch v.Kind {
	case telemetry.AttrKindString:
		w.WriteString(v.Str)
	case telemetry.AttrKindInt64:
		w.WriteVarint(v.Int)
	case telemetry.AttrKindFloat64:
		w.WriteFloat64(v.Float)
	case telemetry.AttrKindBool:
		w.WriteBool(v.Bool)
	case telemetry.AttrKindBytes:
		w.WriteBytes(v.Bytes)
	case telemetry.AttrKindArray:
		w.WriteUvarint(uint64(len(v.Array)))
		for _, e := range v.Array {
			writeAttrValue(w, e)
		}
	case telemetry.AttrKindMap:
		w.WriteUvarint(uint64(len(v.Map)))
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.WriteString(k)
			writeAttrValue(w, v.Map[k])
		}
	}
}

func readAttrValue(r *reader) (telemetry.AttributeValue, error) {
	kb, err := r.ReadByte_()
	if err != nil {
		return telemetry.AttributeValue{}, err
	}
	kind := telemetry.AttrKind(kb)
	v := telemetry.AttributeValue{Kind: kind}
	switch kind {
	case telemetry.AttrKindString:
		v.Str, err = r.ReadString()
	case telemetry.AttrKindInt64:
		v.Int, err = r.ReadVarint()
	case telemetry.AttrKindFloat64:
		v.Float, err = r.ReadFloat64()
	case telemetry.AttrKindBool:
		v.Bool, err = r.ReadBool()
	case telemetry.AttrKindBytes:
		v.Bytes, err = r.ReadBytes()
	case telemetry.AttrKindArray:
		var n uint64
		n, err = r.ReadUvarint()
		if err != nil {
			return v, err
		}
		v.Array = make([]telemetry.AttributeValue, n)
		for i := range v.Array {
			v.Array[i], err = readAttrValue(r)
			if err != nil {
				return v, err
			}
		}
	case telemetry.AttrKindMap:
		var n uint64
		n, err = r.ReadUvarint()
		if err != nil {
			return v, err
		}
		v.Map = make(map[string]telemetry.AttributeValue, n)
		for i := uint64(0); i < n; i++ {
			key, kerr := r.ReadString()
			if kerr != nil {
				return v, kerr
			}
			val, verr := readAttrValue(r)
			if verr != nil {
				return v, verr
			}
			v.Map[key] = val
		}
	default:
		return v, errors.NewSchemaMismatchError("unknown attribute kind")
	}
	return v, err
}

func writeAttrs(w *writer, attrs telemetry.Attributes) {
	w.WriteUvarint(uint64(len(attrs)))
	for _, a := range attrs {
		w.WriteString(a.Key)
		writeAttrValue(w, a.Value)
	}
}

func readAttrs(r *reader) (telemetry.Attributes, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make(telemetry.Attributes, n)
	for i := range out {
		key, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		val, err := readAttrValue(r)
		if err != nil {
			return nil, err
		}
		out[i] = telemetry.Attribute{Key: key, Value: val}
	}
	return out, nil
}

func writeOptSpanID(w *writer, id *telemetry.SpanID) {
	if id == nil {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	w.WriteRaw(id[:])
}

func readOptSpanID(r *reader) (*telemetry.SpanID, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	raw, err := r.ReadRaw(8)
	if err != nil {
		return nil, err
	}
	var id telemetry.SpanID
	copy(id[:], raw)
	return &id, nil
}

func writeOptTraceID(w *writer, id *telemetry.TraceID) {
	if id == nil {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	w.WriteRaw(id[:])
}

func readOptTraceID(r *reader) (*telemetry.TraceID, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	raw, err := r.ReadRaw(16)
	if err != nil {
		return nil, err
	}
	var id telemetry.TraceID
	copy(id[:], raw)
	return &id, nil
}

func marshalSpan(w *writer, s *telemetry.Span) {
	w.WriteRaw(s.TraceID[:])
	w.WriteRaw(s.SpanID[:])
	writeOptSpanID(w, s.ParentSpanID)
	w.WriteString(s.Name)
	writeAttrs(w, s.Attributes)
	w.WriteUvarint(uint64(len(s.Events)))
	for _, e := range s.Events {
		w.WriteString(e.Name)
		writeAttrs(w, e.Attributes)
		w.WriteFixed64(e.TimeUnixNano)
	}
	w.WriteUvarint(uint64(len(s.Links)))
	for _, l := range s.Links {
		w.WriteRaw(l.TraceID[:])
		w.WriteRaw(l.SpanID[:])
		writeAttrs(w, l.Attributes)
	}
	w.WriteString(s.Status.Message)
	w.WriteVarint(int64(s.Status.Code))
	w.WriteFixed64(uint64(s.ResourceRef))
	w.WriteFixed64(uint64(s.ScopeRef))
	w.WriteByte_(byte(s.Kind))
	w.WriteFixed64(s.StartTimeNano)
	w.WriteFixed64(s.EndTimeNano)
	w.WriteVarint(s.IngestTimeNano)
}

func unmarshalSpan(r *reader) (*telemetry.Span, error) {
	s := &telemetry.Span{}
	raw, err := r.ReadRaw(16)
	if err != nil {
		return nil, err
	}
	copy(s.TraceID[:], raw)
	raw, err = r.ReadRaw(8)
	if err != nil {
		return nil, err
	}
	copy(s.SpanID[:], raw)
	if s.ParentSpanID, err = readOptSpanID(r); err != nil {
		return nil, err
	}
	if s.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if s.Attributes, err = readAttrs(r); err != nil {
		return nil, err
	}
	nEvents, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if nEvents > 0 {
		s.Events = make([]telemetry.SpanEvent, nEvents)
	}
	for i := range s.Events {
		if s.Events[i].Name, err = r.ReadString(); err != nil {
			return nil, err
		}
		if s.Events[i].Attributes, err = readAttrs(r); err != nil {
			return nil, err
		}
		if s.Events[i].TimeUnixNano, err = r.ReadFixed64(); err != nil {
			return nil, err
		}
	}
	nLinks, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if nLinks > 0 {
		s.Links = make([]telemetry.SpanLink, nLinks)
	}
	for i := range s.Links {
		raw, err = r.ReadRaw(16)
		if err != nil {
			return nil, err
		}
		copy(s.Links[i].TraceID[:], raw)
		raw, err = r.ReadRaw(8)
		if err != nil {
			return nil, err
		}
		copy(s.Links[i].SpanID[:], raw)
		if s.Links[i].Attributes, err = readAttrs(r); err != nil {
			return nil, err
		}
	}
	if s.Status.Message, err = r.ReadString(); err != nil {
		return nil, err
	}
	code, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	s.Status.Code = telemetry.StatusCode(code)
	resourceRef, err := r.ReadFixed64()
	if err != nil {
		return nil, err
	}
	s.ResourceRef = telemetry.ResourceRef(resourceRef)
	scopeRef, err := r.ReadFixed64()
	if err != nil {
		return nil, err
	}
	s.ScopeRef = telemetry.ScopeRef(scopeRef)
	kind, err := r.ReadByte_()
	if err != nil {
		return nil, err
	}
	s.Kind = telemetry.SpanKind(kind)
	if s.StartTimeNano, err = r.ReadFixed64(); err != nil {
		return nil, err
	}
	if s.EndTimeNano, err = r.ReadFixed64(); err != nil {
		return nil, err
	}
	if s.IngestTimeNano, err = r.ReadVarint(); err != nil {
		return nil, err
	}
	return s, nil
}

func marshalLog(w *writer, l *telemetry.Log) {
	writeAttrValue(w, l.Body)
	w.WriteString(l.SeverityText)
	writeAttrs(w, l.Attributes)
	writeOptTraceID(w, l.TraceID)
	writeOptSpanID(w, l.SpanID)
	w.WriteFixed64(l.TimestampNano)
	w.WriteVarint(int64(l.SeverityNumber))
	w.WriteFixed64(uint64(l.ResourceRef))
	w.WriteFixed64(uint64(l.ScopeRef))
	w.WriteVarint(l.IngestTimeNano)
}

func unmarshalLog(r *reader) (*telemetry.Log, error) {
	l := &telemetry.Log{}
	var err error
	if l.Body, err = readAttrValue(r); err != nil {
		return nil, err
	}
	if l.SeverityText, err = r.ReadString(); err != nil {
		return nil, err
	}
	if l.Attributes, err = readAttrs(r); err != nil {
		return nil, err
	}
	if l.TraceID, err = readOptTraceID(r); err != nil {
		return nil, err
	}
	if l.SpanID, err = readOptSpanID(r); err != nil {
		return nil, err
	}
	if l.TimestampNano, err = r.ReadFixed64(); err != nil {
		return nil, err
	}
	sev, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	l.SeverityNumber = telemetry.SeverityNumber(sev)
	resourceRef, err := r.ReadFixed64()
	if err != nil {
		return nil, err
	}
	l.ResourceRef = telemetry.ResourceRef(resourceRef)
	scopeRef, err := r.ReadFixed64()
	if err != nil {
		return nil, err
	}
	l.ScopeRef = telemetry.ScopeRef(scopeRef)
	if l.IngestTimeNano, err = r.ReadVarint(); err != nil {
		return nil, err
	}
	return l, nil
}

func marshalMetricCatalogEntry(w *writer, m *telemetry.MetricCatalogEntry) {
	w.WriteString(m.Name)
	w.WriteString(m.Unit)
	w.WriteString(m.Description)
	w.WriteByte_(byte(m.Kind))
}

func unmarshalMetricCatalogEntry(r *reader) (*telemetry.MetricCatalogEntry, error) {
	m := &telemetry.MetricCatalogEntry{}
	var err error
	if m.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if m.Unit, err = r.ReadString(); err != nil {
		return nil, err
	}
	if m.Description, err = r.ReadString(); err != nil {
		return nil, err
	}
	kind, err := r.ReadByte_()
	if err != nil {
		return nil, err
	}
	m.Kind = telemetry.MetricKind(kind)
	return m, nil
}

func marshalSeries(w *writer, s *telemetry.Series) {
	w.WriteFixed64(uint64(s.Fingerprint))
	writeAttrs(w, s.Attributes)
	w.WriteFixed64(uint64(s.ResourceRef))
	w.WriteVarint(s.LastUpdateNano)
}

func unmarshalSeries(r *reader) (*telemetry.Series, error) {
	s := &telemetry.Series{}
	fp, err := r.ReadFixed64()
	if err != nil {
		return nil, err
	}
	s.Fingerprint = telemetry.SeriesFingerprint(fp)
	if s.Attributes, err = readAttrs(r); err != nil {
		return nil, err
	}
	resourceRef, err := r.ReadFixed64()
	if err != nil {
		return nil, err
	}
	s.ResourceRef = telemetry.ResourceRef(resourceRef)
	if s.LastUpdateNano, err = r.ReadVarint(); err != nil {
		return nil, err
	}
	return s, nil
}

func marshalDataPoint(w *writer, d *telemetry.DataPoint) {
	w.WriteBool(d.IsHistogram)
	if d.IsHistogram && d.Histogram != nil {
		h := d.Histogram
		w.WriteUvarint(uint64(len(h.ExplicitBounds)))
		for _, b := range h.ExplicitBounds {
			w.WriteFloat64(b)
		}
		w.WriteUvarint(uint64(len(h.BucketCounts)))
		for _, c := range h.BucketCounts {
			w.WriteUvarint(c)
		}
		if h.Exponential == nil {
			w.WriteBool(false)
		} else {
			w.WriteBool(true)
			e := h.Exponential
			w.WriteVarint(int64(e.Scale))
			w.WriteVarint(int64(e.PositiveOffset))
			w.WriteVarint(int64(e.NegativeOffset))
			w.WriteUvarint(e.ZeroCount)
			w.WriteUvarint(uint64(len(e.PositiveCounts)))
			for _, c := range e.PositiveCounts {
				w.WriteUvarint(c)
			}
			w.WriteUvarint(uint64(len(e.NegativeCounts)))
			for _, c := range e.NegativeCounts {
				w.WriteUvarint(c)
			}
		}
	}
	w.WriteUvarint(uint64(len(d.Exemplars)))
	for _, ex := range d.Exemplars {
		w.WriteRaw(ex.TraceID[:])
		w.WriteRaw(ex.SpanID[:])
		w.WriteFloat64(ex.Value)
	}
	w.WriteFloat64(d.Value)
	w.WriteUvarint(d.Count)
	w.WriteFloat64(d.Sum)
	w.WriteFixed64(d.TimestampNano)
}

func unmarshalDataPoint(r *reader) (*telemetry.DataPoint, error) {
	d := &telemetry.DataPoint{}
	var err error
	if d.IsHistogram, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if d.IsHistogram {
		h := &telemetry.HistogramBuckets{}
		n, err := r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			h.ExplicitBounds = make([]float64, n)
		}
		for i := range h.ExplicitBounds {
			if h.ExplicitBounds[i], err = r.ReadFloat64(); err != nil {
				return nil, err
			}
		}
		n, err = r.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			h.BucketCounts = make([]uint64, n)
		}
		for i := range h.BucketCounts {
			if h.BucketCounts[i], err = r.ReadUvarint(); err != nil {
				return nil, err
			}
		}
		hasExp, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if hasExp {
			e := &telemetry.ExponentialBuckets{}
			scale, err := r.ReadVarint()
			if err != nil {
				return nil, err
			}
			e.Scale = int32(scale)
			posOff, err := r.ReadVarint()
			if err != nil {
				return nil, err
			}
			e.PositiveOffset = int32(posOff)
			negOff, err := r.ReadVarint()
			if err != nil {
				return nil, err
			}
			e.NegativeOffset = int32(negOff)
			if e.ZeroCount, err = r.ReadUvarint(); err != nil {
				return nil, err
			}
			n, err = r.ReadUvarint()
			if err != nil {
				return nil, err
			}
			if n > 0 {
				e.PositiveCounts = make([]uint64, n)
			}
			for i := range e.PositiveCounts {
				if e.PositiveCounts[i], err = r.ReadUvarint(); err != nil {
					return nil, err
				}
			}
			n, err = r.ReadUvarint()
			if err != nil {
				return nil, err
			}
			if n > 0 {
				e.NegativeCounts = make([]uint64, n)
			}
			for i := range e.NegativeCounts {
				if e.NegativeCounts[i], err = r.ReadUvarint(); err != nil {
					return nil, err
				}
			}
			h.Exponential = e
		}
		d.Histogram = h
	}
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		d.Exemplars = make([]telemetry.Exemplar, n)
	}
	for i := range d.Exemplars {
		raw, err := r.ReadRaw(16)
		if err != nil {
			return nil, err
		}
		copy(d.Exemplars[i].TraceID[:], raw)
		raw, err = r.ReadRaw(8)
		if err != nil {
			return nil, err
		}
		copy(d.Exemplars[i].SpanID[:], raw)
		if d.Exemplars[i].Value, err = r.ReadFloat64(); err != nil {
			return nil, err
		}
	}
	if d.Value, err = r.ReadFloat64(); err != nil {
		return nil, err
	}
	if d.Count, err = r.ReadUvarint(); err != nil {
		return nil, err
	}
	if d.Sum, err = r.ReadFloat64(); err != nil {
		return nil, err
	}
	if d.TimestampNano, err = r.ReadFixed64(); err != nil {
		return nil, err
	}
	return d, nil
}

func marshalResource(w *writer, res *telemetry.Resource) {
	writeAttrs(w, res.Attributes)
	w.WriteString(res.SchemaURL)
}

func unmarshalResource(r *reader) (*telemetry.Resource, error) {
	res := &telemetry.Resource{}
	var err error
	if res.Attributes, err = readAttrs(r); err != nil {
		return nil, err
	}
	if res.SchemaURL, err = r.ReadString(); err != nil {
		return nil, err
	}
	return res, nil
}

func marshalScope(w *writer, s *telemetry.Scope) {
	w.WriteString(s.Name)
	w.WriteString(s.Version)
	writeAttrs(w, s.Attributes)
	w.WriteString(s.SchemaURL)
}

func unmarshalScope(r *reader) (*telemetry.Scope, error) {
	s := &telemetry.Scope{}
	var err error
	if s.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if s.Version, err = r.ReadString(); err != nil {
		return nil, err
	}
	if s.Attributes, err = readAttrs(r); err != nil {
		return nil, err
	}
	if s.SchemaURL, err = r.ReadString(); err != nil {
		return nil, err
	}
	return s, nil
}

func marshalTraceSummary(w *writer, t *TraceSummary) {
	w.WriteRaw(t.TraceID[:])
	w.WriteUvarint(uint64(len(t.SpanIDs)))
	for _, id := range t.SpanIDs {
		w.WriteRaw(id[:])
	}
	writeOptSpanID(w, t.RootSpanID)
	w.WriteVarint(t.FirstSeenNano)
	w.WriteVarint(t.LastSeenNano)
}

func unmarshalTraceSummary(r *reader) (*TraceSummary, error) {
	t := &TraceSummary{}
	raw, err := r.ReadRaw(16)
	if err != nil {
		return nil, err
	}
	copy(t.TraceID[:], raw)
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	t.SpanIDs = make([]telemetry.SpanID, n)
	for i := range t.SpanIDs {
		raw, err = r.ReadRaw(8)
		if err != nil {
			return nil, err
		}
		copy(t.SpanIDs[i][:], raw)
	}
	if t.RootSpanID, err = readOptSpanID(r); err != nil {
		return nil, err
	}
	if t.FirstSeenNano, err = r.ReadVarint(); err != nil {
		return nil, err
	}
	if t.LastSeenNano, err = r.ReadVarint(); err != nil {
		return nil, err
	}
	return t, nil
}
