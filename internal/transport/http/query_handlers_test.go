package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"tinyolly/internal/core/services/telemetry"
	"tinyolly/internal/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func resourceFor(service string) *resourcepb.Resource {
	return &resourcepb.Resource{Attributes: []*commonpb.KeyValue{strAttr("service.name", service)}}
}

func newTestHandlers(t *testing.T, selfServiceName string) (*QueryHandlers, *memstore.Store, *telemetry.Normalizer) {
	t.Helper()
	s := memstore.New(30*time.Minute, 1000, nil)
	t.Cleanup(func() { _ = s.Close() })

	n := telemetry.NewNormalizer(s, nil)
	agg := telemetry.NewAggregationService(s, nil)
	return NewQueryHandlers(s, agg, time.Now(), selfServiceName, nil), s, n
}

func decodeEnvelope(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestListTraces_ReturnsRecentTraces(t *testing.T) {
	h, _, n := newTestHandlers(t, "")
	ctx := context.Background()

	traceID := make([]byte, 16)
	traceID[0] = 7
	spanID := make([]byte, 8)
	spanID[0] = 1

	result := n.NormalizeTraces(ctx, []*tracepb.ResourceSpans{{
		Resource: resourceFor("checkout"),
		ScopeSpans: []*tracepb.ScopeSpans{{
			Scope: &commonpb.InstrumentationScope{},
			Spans: []*tracepb.Span{{
				TraceId:           traceID,
				SpanId:            spanID,
				Name:              "GET /x",
				StartTimeUnixNano: 1_000_000_000_000,
				EndTimeUnixNano:   1_000_000_500_000,
				Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
			}},
		}},
	}})
	require.Equal(t, int64(1), result.Accepted)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/traces?limit=10", nil)

	h.ListTraces(c)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w.Body.Bytes())
	assert.True(t, envelope["success"].(bool))
	data := envelope["data"].([]interface{})
	require.Len(t, data, 1)
	row := data[0].(map[string]interface{})
	assert.Equal(t, "checkout", row["root_service"])
}

func TestGetTrace_ReturnsAllSpansForTraceID(t *testing.T) {
	h, _, n := newTestHandlers(t, "")
	ctx := context.Background()

	traceID := make([]byte, 16)
	traceID[0] = 9
	spanID := make([]byte, 8)
	spanID[0] = 1

	n.NormalizeTraces(ctx, []*tracepb.ResourceSpans{{
		Resource: resourceFor("checkout"),
		ScopeSpans: []*tracepb.ScopeSpans{{
			Scope: &commonpb.InstrumentationScope{},
			Spans: []*tracepb.Span{{
				TraceId:           traceID,
				SpanId:            spanID,
				Name:              "op",
				StartTimeUnixNano: 1,
				EndTimeUnixNano:   2,
				Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
			}},
		}},
	}})

	hexID := hex.EncodeToString(traceID)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/traces/"+hexID, nil)
	c.Params = gin.Params{{Key: "id", Value: hexID}}

	h.GetTrace(c)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w.Body.Bytes())
	data := envelope["data"].(map[string]interface{})
	spans := data["spans"].([]interface{})
	require.Len(t, spans, 1)
}

func TestGetTrace_InvalidHexReturnsBadRequest(t *testing.T) {
	h, _, _ := newTestHandlers(t, "")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/traces/not-hex", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-hex"}}

	h.GetTrace(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSpans_FiltersSelfService(t *testing.T) {
	h, _, n := newTestHandlers(t, "tinyolly")
	ctx := context.Background()

	mk := func(seed byte, service string) *tracepb.ResourceSpans {
		traceID := make([]byte, 16)
		traceID[0] = seed
		spanID := make([]byte, 8)
		spanID[0] = seed
		return &tracepb.ResourceSpans{
			Resource: resourceFor(service),
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{},
				Spans: []*tracepb.Span{{
					TraceId:           traceID,
					SpanId:            spanID,
					Name:              "op",
					StartTimeUnixNano: 1,
					EndTimeUnixNano:   2,
					Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
				}},
			}},
		}
	}

	n.NormalizeTraces(ctx, []*tracepb.ResourceSpans{mk(1, "tinyolly"), mk(2, "checkout")})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/spans?limit=10", nil)

	h.ListSpans(c)

	envelope := decodeEnvelope(t, w.Body.Bytes())
	data := envelope["data"].([]interface{})
	require.Len(t, data, 1)
	row := data[0].(map[string]interface{})
	assert.Equal(t, "checkout", row["service_name"])
}

func TestStats_ReturnsCounters(t *testing.T) {
	h, _, _ := newTestHandlers(t, "")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/stats", nil)

	h.Stats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w.Body.Bytes())
	data := envelope["data"].(map[string]interface{})
	assert.Contains(t, data, "span_count")
}

func TestHealth_ReturnsOK(t *testing.T) {
	h, _, _ := newTestHandlers(t, "")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
}
