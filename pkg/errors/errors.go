package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppErrorType is TinyOlly's error taxonomy (spec §7). Each value maps to
// exactly one HTTP status; transports translate to gRPC codes separately.
type AppErrorType string

const (
	// InvalidInput: malformed OTLP, bad JSON, failed validation. The
	// offending batch is dropped; reported as 400 / InvalidArgument.
	InvalidInput AppErrorType = "INVALID_INPUT"
	// UnsupportedAttrType: attribute type outside the OTLP schema. The
	// offending attribute is dropped, the record kept; surfaced only as a
	// warning counter, never a transport error.
	UnsupportedAttrType AppErrorType = "UNSUPPORTED_ATTR_TYPE"
	// MetricKindConflict: a metric name's declared kind does not match an
	// already-recorded kind. The offending series is dropped.
	MetricKindConflict AppErrorType = "METRIC_KIND_CONFLICT"
	// CardinalityExceeded: the distinct metric-name limit has been
	// reached. Dropped, counted, surfaced via /api/stats.
	CardinalityExceeded AppErrorType = "CARDINALITY_EXCEEDED"
	// OutOfCapacity: the store's memory bound was hit. Ingress applies
	// backpressure; surfaced as 503 / Unavailable.
	OutOfCapacity AppErrorType = "OUT_OF_CAPACITY"
	// DeadlineExceeded: a request exceeded the server's wall-clock budget.
	DeadlineExceeded AppErrorType = "DEADLINE_EXCEEDED"
	// CorruptFrame: a stored frame failed tag/length validation on decode.
	CorruptFrame AppErrorType = "CORRUPT_FRAME"
	// SchemaMismatch: a stored frame carries an unknown schema tag.
	SchemaMismatch AppErrorType = "SCHEMA_MISMATCH"
	// NotFoundError: the requested resource does not exist.
	NotFoundError AppErrorType = "NOT_FOUND"
	// InternalError: unexpected failure.
	InternalError AppErrorType = "INTERNAL_ERROR"
	// BadRequestError: generic request validation failure, used by the
	// OpAMP REST surface for superficial config validation.
	BadRequestError AppErrorType = "BAD_REQUEST"
)

// AppError is a typed error carrying the HTTP status its taxonomy member
// maps to, so transports don't re-derive status codes from error content.
type AppError struct {
	Err        error
	Type       AppErrorType
	Message    string
	Details    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(errorType AppErrorType, message, details string, err error) *AppError {
	appErr := &AppError{
		Type:    errorType,
		Message: message,
		Details: details,
		Err:     err,
	}

	switch errorType {
	case InvalidInput, BadRequestError, MetricKindConflict:
		appErr.StatusCode = http.StatusBadRequest
	case NotFoundError:
		appErr.StatusCode = http.StatusNotFound
	case OutOfCapacity:
		appErr.StatusCode = http.StatusServiceUnavailable
	case DeadlineExceeded:
		appErr.StatusCode = http.StatusGatewayTimeout
	case CardinalityExceeded:
		appErr.StatusCode = http.StatusTooManyRequests
	default:
		appErr.StatusCode = http.StatusInternalServerError
	}

	return appErr
}

func NewInvalidInputError(message, details string) *AppError {
	return NewAppError(InvalidInput, message, details, nil)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(NotFoundError, resource+" not found", "", nil)
}

func NewBadRequestError(message, details string) *AppError {
	return NewAppError(BadRequestError, message, details, nil)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(InternalError, message, "", err)
}

func NewOutOfCapacityError(message string) *AppError {
	return NewAppError(OutOfCapacity, message, "", nil)
}

func NewDeadlineExceededError(message string) *AppError {
	return NewAppError(DeadlineExceeded, message, "", nil)
}

func NewCardinalityExceededError(metric string) *AppError {
	return NewAppError(CardinalityExceeded, "metric cardinality limit exceeded", metric, nil)
}

func NewMetricKindConflictError(metric string, existing, got string) *AppError {
	return NewAppError(MetricKindConflict, "metric kind conflicts with existing definition",
		fmt.Sprintf("metric=%s existing=%s got=%s", metric, existing, got), nil)
}

func NewCorruptFrameError(details string) *AppError {
	return NewAppError(CorruptFrame, "corrupt stored frame", details, nil)
}

func NewSchemaMismatchError(details string) *AppError {
	return NewAppError(SchemaMismatch, "unknown schema tag", details, nil)
}

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func GetStatusCode(err error) int {
	if appErr, ok := IsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func GetErrorType(err error) AppErrorType {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Type
	}
	return InternalError
}

func IsNotFound(err error) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Type == NotFoundError
	}
	return false
}

func WrapInvalidInputError(err error, message string) *AppError {
	return NewAppError(InvalidInput, message, err.Error(), err)
}

func WrapInternalError(err error, message string) *AppError {
	return NewAppError(InternalError, message, "", err)
}
