// Package http hosts TinyOlly's HTTP-facing surfaces: OTLP/HTTP ingestion
// (spec §4.4) and the Query API (spec §4.6), each on its own listener per
// spec §6, grounded on the teacher's internal/transport/http package minus
// its auth, CSRF, RBAC, rate-limiting, and SDK/dashboard routing split,
// none of which apply to a single-tenant local backend.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps one gin engine and one net/http.Server's listen/serve/
// shutdown lifecycle, mirroring the shape of the gRPC transport's Server.
// TinyOlly runs two: one for OTLP/HTTP ingestion, one for the Query API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	name       string
	port       int
}

// NewIngestServer builds the OTLP/HTTP ingestion listener.
func NewIngestServer(
	port int,
	corsOrigins []string,
	readTimeout, writeTimeout, idleTimeout time.Duration,
	otlp *OTLPHandler,
	query *QueryHandlers,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	engine := newIngestRouter(corsOrigins, otlp, query.Health, logger)
	return newServer("ingest", port, engine, readTimeout, writeTimeout, idleTimeout, logger)
}

// NewQueryServer builds the Query API listener.
func NewQueryServer(
	port int,
	corsOrigins []string,
	readTimeout, writeTimeout, idleTimeout time.Duration,
	query *QueryHandlers,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	engine := newQueryRouter(corsOrigins, query, logger)
	return newServer("query", port, engine, readTimeout, writeTimeout, idleTimeout, logger)
}

func newServer(name string, port int, handler http.Handler, readTimeout, writeTimeout, idleTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		logger: logger,
		name:   name,
		port:   port,
	}
}

// Start blocks serving until Shutdown is called or a fatal listen error
// occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "surface", s.name, "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server", "surface", s.name, "port", s.port)
	return s.httpServer.Shutdown(ctx)
}
