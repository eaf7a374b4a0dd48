package opamp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// newRESTRouter wires the three REST routes of spec §4.7 onto a bare gin
// engine (no CORS/auth — this surface is only ever called by the bundled
// UI on localhost).
func newRESTRouter(handlers *RESTHandlers) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/status", handlers.Status)
	engine.GET("/config", handlers.GetConfig)
	engine.POST("/config", handlers.PostConfig)

	return engine
}

// RESTServer serves the OpAMP REST surface on its own configured port,
// independent of the WebSocket listener.
type RESTServer struct {
	httpServer *http.Server
	logger     *slog.Logger
	port       int
}

// NewRESTServer builds the OpAMP REST listener.
func NewRESTServer(port int, handlers *RESTHandlers, logger *slog.Logger) *RESTServer {
	if logger == nil {
		logger = slog.Default()
	}
	engine := newRESTRouter(handlers)
	return &RESTServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
		port:   port,
	}
}

// Start blocks serving until Shutdown is called.
func (s *RESTServer) Start() error {
	s.logger.Info("starting OpAMP REST server", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down OpAMP REST server", "port", s.port)
	return s.httpServer.Shutdown(ctx)
}
