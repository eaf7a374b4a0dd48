// Package codec implements TinyOlly's compact, self-describing on-disk
// (in-memory, really — the Store is ephemeral) representation: every record
// is tagged with its schema kind, length-checked, and ZSTD-compressed.
package codec

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"

	"tinyolly/internal/core/domain/telemetry"
	"tinyolly/pkg/errors"
)

// SchemaTag identifies which record type a frame's payload decodes as.
type SchemaTag uint8

const (
	SchemaSpan SchemaTag = iota + 1
	SchemaLog
	SchemaMetricCatalogEntry
	SchemaSeries
	SchemaDataPoint
	SchemaTraceSummary
	SchemaResource
	SchemaScope
)

// frame layout: magic(2) | tag(1) | rawLen uint32 LE (4) | zstd(payload)
const (
	magic0     = 'T'
	magic1     = 'O'
	headerSize = 2 + 1 + 4
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: failed to construct zstd encoder: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: failed to construct zstd decoder: " + err.Error())
	}
}

func encodeFrame(tag SchemaTag, raw []byte) []byte {
	compressed := encoder.EncodeAll(raw, nil)
	out := make([]byte, headerSize, headerSize+len(compressed))
	out[0] = magic0
	out[1] = magic1
	out[2] = byte(tag)
	binary.LittleEndian.PutUint32(out[3:7], uint32(len(raw)))
	return append(out, compressed...)
}

// decodeFrame validates framing and returns the tag and the decompressed
// payload, ready for a per-type unmarshal.
func decodeFrame(data []byte) (SchemaTag, []byte, error) {
	if len(data) < headerSize {
		return 0, nil, errors.NewCorruptFrameError("frame shorter than header")
	}
	if data[0] != magic0 || data[1] != magic1 {
		return 0, nil, errors.NewCorruptFrameError("bad magic")
	}
	tag := SchemaTag(data[2])
	rawLen := binary.LittleEndian.Uint32(data[3:7])

	raw, err := decoder.DecodeAll(data[headerSize:], make([]byte, 0, rawLen))
	if err != nil {
		return 0, nil, errors.NewCorruptFrameError("zstd decompress failed: " + err.Error())
	}
	if uint32(len(raw)) != rawLen {
		return 0, nil, errors.NewCorruptFrameError("decompressed length mismatch")
	}
	return tag, raw, nil
}

func knownTag(tag SchemaTag) bool {
	switch tag {
	case SchemaSpan, SchemaLog, SchemaMetricCatalogEntry, SchemaSeries,
		SchemaDataPoint, SchemaTraceSummary, SchemaResource, SchemaScope:
		return true
	default:
		return false
	}
}

// EncodeSpan, EncodeLog, etc. are the typed encode half of the codec
// contract: decode(encode(r)) == r for every record honoring §3's
// invariants.

func EncodeSpan(s *telemetry.Span) []byte {
	w := &writer{}
	marshalSpan(w, s)
	return encodeFrame(SchemaSpan, w.Bytes())
}

func DecodeSpan(data []byte) (*telemetry.Span, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaSpan {
		return nil, errors.NewSchemaMismatchError("expected span, got unexpected frame tag")
	}
	return unmarshalSpan(&reader{buf: raw})
}

func EncodeLog(l *telemetry.Log) []byte {
	w := &writer{}
	marshalLog(w, l)
	return encodeFrame(SchemaLog, w.Bytes())
}

func DecodeLog(data []byte) (*telemetry.Log, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaLog {
		return nil, errors.NewSchemaMismatchError("expected log, got unexpected frame tag")
	}
	return unmarshalLog(&reader{buf: raw})
}

func EncodeMetricCatalogEntry(m *telemetry.MetricCatalogEntry) []byte {
	w := &writer{}
	marshalMetricCatalogEntry(w, m)
	return encodeFrame(SchemaMetricCatalogEntry, w.Bytes())
}

func DecodeMetricCatalogEntry(data []byte) (*telemetry.MetricCatalogEntry, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaMetricCatalogEntry {
		return nil, errors.NewSchemaMismatchError("expected metric catalog entry, got unexpected frame tag")
	}
	return unmarshalMetricCatalogEntry(&reader{buf: raw})
}

func EncodeSeries(s *telemetry.Series) []byte {
	w := &writer{}
	marshalSeries(w, s)
	return encodeFrame(SchemaSeries, w.Bytes())
}

func DecodeSeries(data []byte) (*telemetry.Series, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaSeries {
		return nil, errors.NewSchemaMismatchError("expected series, got unexpected frame tag")
	}
	return unmarshalSeries(&reader{buf: raw})
}

func EncodeDataPoint(d *telemetry.DataPoint) []byte {
	w := &writer{}
	marshalDataPoint(w, d)
	return encodeFrame(SchemaDataPoint, w.Bytes())
}

func DecodeDataPoint(data []byte) (*telemetry.DataPoint, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaDataPoint {
		return nil, errors.NewSchemaMismatchError("expected data point, got unexpected frame tag")
	}
	return unmarshalDataPoint(&reader{buf: raw})
}

func EncodeResource(res *telemetry.Resource) []byte {
	w := &writer{}
	marshalResource(w, res)
	return encodeFrame(SchemaResource, w.Bytes())
}

func DecodeResource(data []byte) (*telemetry.Resource, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaResource {
		return nil, errors.NewSchemaMismatchError("expected resource, got unexpected frame tag")
	}
	return unmarshalResource(&reader{buf: raw})
}

func EncodeScope(s *telemetry.Scope) []byte {
	w := &writer{}
	marshalScope(w, s)
	return encodeFrame(SchemaScope, w.Bytes())
}

func DecodeScope(data []byte) (*telemetry.Scope, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaScope {
		return nil, errors.NewSchemaMismatchError("expected scope, got unexpected frame tag")
	}
	return unmarshalScope(&reader{buf: raw})
}

func EncodeTraceSummary(t *TraceSummary) []byte {
	w := &writer{}
	marshalTraceSummary(w, t)
	return encodeFrame(SchemaTraceSummary, w.Bytes())
}

func DecodeTraceSummary(data []byte) (*TraceSummary, error) {
	tag, raw, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if tag != SchemaTraceSummary {
		return nil, errors.NewSchemaMismatchError("expected trace summary, got unexpected frame tag")
	}
	return unmarshalTraceSummary(&reader{buf: raw})
}

// Peek reports a frame's schema tag without decompressing its payload,
// useful for the Store's generic byte-oriented sweep paths.
func Peek(data []byte) (SchemaTag, error) {
	if len(data) < headerSize {
		return 0, errors.NewCorruptFrameError("frame shorter than header")
	}
	if data[0] != magic0 || data[1] != magic1 {
		return 0, errors.NewCorruptFrameError("bad magic")
	}
	tag := SchemaTag(data[2])
	if !knownTag(tag) {
		return 0, errors.NewSchemaMismatchError("unknown schema tag")
	}
	return tag, nil
}
