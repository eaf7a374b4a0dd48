// Package response provides a standard gin.Context response envelope for
// TinyOlly's Query API and OpAMP REST surface.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "tinyolly/pkg/errors"
)

// APIResponse is the standard envelope every HTTP JSON route returns.
type APIResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Success bool        `json:"success"`
}

// APIError carries taxonomy-mapped error details (spec §7).
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Meta carries response metadata. TinyOlly's routes use a single `limit`
// query parameter (no page numbers; spec §4.6), so Meta carries a Count
// rather than the teacher's offset-pagination block.
type Meta struct {
	Timestamp string `json:"timestamp,omitempty"`
	Count     int    `json:"count,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: baseMeta()})
}

// SuccessWithCount is used by list routes to report how many rows were
// returned (not a total across the whole retention window — the Store
// makes no promise about consistent totals across concurrent writes, per
// spec §4.2's read contract).
func SuccessWithCount(c *gin.Context, data interface{}, count int) {
	meta := baseMeta()
	meta.Count = count
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: meta})
}

func Error(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	apiError := &APIError{Code: string(appErrors.InternalError), Message: "internal error", Type: string(appErrors.InternalError)}

	if appErr, ok := appErrors.IsAppError(err); ok {
		statusCode = appErr.StatusCode
		apiError = &APIError{
			Code:    string(appErr.Type),
			Message: appErr.Message,
			Details: appErr.Details,
			Type:    string(appErr.Type),
		}
	}

	c.JSON(statusCode, APIResponse{Success: false, Error: apiError, Meta: baseMeta()})
}

func ErrorWithStatus(c *gin.Context, statusCode int, code, message, details string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
		Meta:    baseMeta(),
	})
}

func BadRequest(c *gin.Context, message, details string) {
	ErrorWithStatus(c, http.StatusBadRequest, string(appErrors.BadRequestError), message, details)
}

func NotFound(c *gin.Context, resource string) {
	ErrorWithStatus(c, http.StatusNotFound, string(appErrors.NotFoundError), resource+" not found", "")
}

func ServiceUnavailable(c *gin.Context, message string) {
	if message == "" {
		message = "service temporarily unavailable"
	}
	ErrorWithStatus(c, http.StatusServiceUnavailable, string(appErrors.OutOfCapacity), message, "")
}

func baseMeta() *Meta {
	return &Meta{Timestamp: time.Now().UTC().Format(time.RFC3339)}
}
