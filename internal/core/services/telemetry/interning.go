package telemetry

import (
	"hash/fnv"
	"sort"

	domain "tinyolly/internal/core/domain/telemetry"
)

// hashResource computes a content hash over a Resource's sorted attributes,
// used as the Store's interning key (§3: "identified by a content hash over
// its sorted key/value pairs"). Sorting first makes the hash independent of
// wire attribute order, matching the teacher's deterministic-hash approach
// to content addressing elsewhere in the codebase.
func hashResource(r domain.Resource) uint64 {
	h := fnv.New64a()
	h.Write([]byte(r.SchemaURL))
	hashAttributes(h, r.Attributes)
	return h.Sum64()
}

func hashScope(s domain.Scope) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.Name))
	h.Write([]byte{0})
	h.Write([]byte(s.Version))
	h.Write([]byte{0})
	h.Write([]byte(s.SchemaURL))
	hashAttributes(h, s.Attributes)
	return h.Sum64()
}

// hashSeriesFingerprint computes the stable series identity hash over a
// metric's sorted attributes (spec §4.3 step 5). The metric name and
// resource are deliberately excluded: series identity within a Metric is
// defined purely by its attribute combination, and the catalog already
// scopes series lookups by name.
func hashSeriesFingerprint(attrs domain.Attributes) domain.SeriesFingerprint {
	h := fnv.New64a()
	hashAttributes(h, attrs)
	return domain.SeriesFingerprint(h.Sum64())
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func hashAttributes(h hashWriter, attrs domain.Attributes) {
	sorted := make(domain.Attributes, len(attrs))
	copy(sorted, attrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	for _, kv := range sorted {
		h.Write([]byte(kv.Key))
		h.Write([]byte{0})
		hashValue(h, kv.Value)
		h.Write([]byte{0})
	}
}

func hashValue(h hashWriter, v domain.AttributeValue) {
	h.Write([]byte{byte(v.Kind)})
	switch v.Kind {
	case domain.AttrKindString:
		h.Write([]byte(v.Str))
	case domain.AttrKindInt64:
		h.Write(int64Bytes(v.Int))
	case domain.AttrKindFloat64:
		h.Write(int64Bytes(int64(v.Float * 1e9)))
	case domain.AttrKindBool:
		if v.Bool {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case domain.AttrKindBytes:
		h.Write(v.Bytes)
	case domain.AttrKindArray:
		for _, item := range v.Array {
			hashValue(h, item)
		}
	case domain.AttrKindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			hashValue(h, v.Map[k])
		}
	}
}

func int64Bytes(v int64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
