package errors

// HTTP status codes for TinyOlly's error taxonomy (spec §7).
const (
	StatusInvalidInput         = 400
	StatusNotFoundError        = 404
	StatusInternalError        = 500
	StatusBadRequestError      = 400
	StatusOutOfCapacity        = 503
	StatusDeadlineExceeded     = 504
	StatusCardinalityExceeded  = 429
	StatusMetricKindConflict   = 400
)

// Stats-surfaced warning codes (spec §7: counters, not transport errors).
const (
	CodeUnsupportedAttrType = "UNSUPPORTED_ATTR_TYPE"
	CodeCorruptFrame        = "CORRUPT_FRAME"
	CodeSchemaMismatch      = "SCHEMA_MISMATCH"
)
