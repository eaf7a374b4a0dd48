package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyolly/internal/core/services/telemetry"
	"tinyolly/internal/store/memstore"
)

func newTestServer(t *testing.T, port int) *Server {
	t.Helper()
	s := memstore.New(30*time.Minute, 1000, nil)
	t.Cleanup(func() { _ = s.Close() })

	agg := telemetry.NewAggregationService(s, nil)
	query := NewQueryHandlers(s, agg, time.Now(), "", nil)

	return NewQueryServer(port, []string{"*"}, 5*time.Second, 5*time.Second, 30*time.Second, query, nil)
}

func TestServer_StartAndGracefulShutdown(t *testing.T) {
	server := newTestServer(t, 18099)

	startErr := make(chan error, 1)
	go func() { startErr <- server.Start() }()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-startErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after graceful shutdown")
	}
}

func TestServer_HealthRoute(t *testing.T) {
	s := memstore.New(30*time.Minute, 1000, nil)
	defer s.Close()

	agg := telemetry.NewAggregationService(s, nil)
	query := NewQueryHandlers(s, agg, time.Now(), "", nil)
	engine := newQueryRouter([]string{"*"}, query, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
