// Package app wires TinyOlly's components into one running process:
// Store, Normalizer, Aggregation Engine, the gRPC and HTTP ingestion
// endpoints, the Query API, and the OpAMP control plane. Grounded on the
// teacher's internal/app/app.go, stripped to a single deployment mode —
// TinyOlly has no worker/server split, no database/enterprise provider
// containers, and no dependency-injection layer, since every component
// here is an in-process value with no external service to dial except an
// optional Redis backend.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tinyolly/internal/config"
	"tinyolly/internal/core/services/telemetry"
	"tinyolly/internal/store"
	"tinyolly/internal/store/memstore"
	"tinyolly/internal/store/redisstore"
	grpctransport "tinyolly/internal/transport/grpc"
	httptransport "tinyolly/internal/transport/http"
	"tinyolly/internal/transport/ingestlimiter"
	"tinyolly/internal/transport/opamp"
	"tinyolly/pkg/logging"
)

// App owns the lifetime of every listener TinyOlly runs and the Store's
// background TTL sweep.
type App struct {
	config *config.Config
	logger *slog.Logger
	store  store.Store

	grpcServer  *grpctransport.Server
	ingestHTTP  *httptransport.Server
	queryHTTP   *httptransport.Server
	opampWS     *opamp.WSServer
	opampREST   *opamp.RESTServer

	sweepStop chan struct{}
	sweepDone chan struct{}

	shutdownOnce sync.Once
}

// NewServer constructs every component and wires them together, but starts
// nothing — call Start to begin serving.
func NewServer(cfg *config.Config) (*App, error) {
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	backend, err := newStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	normalizer := telemetry.NewNormalizer(backend, logger)
	aggregation := telemetry.NewAggregationService(backend, logger)

	limiter := ingestlimiter.New(
		cfg.Server.MaxRequestBytes,
		cfg.Store.MaxBytes,
		func() store.Stats { return backend.Stats(context.Background()) },
		logger,
	)

	traceHandler := grpctransport.NewTraceHandler(normalizer, logger)
	logsHandler := grpctransport.NewLogsHandler(normalizer, logger)
	metricsHandler := grpctransport.NewMetricsHandler(normalizer, logger)
	grpcServer := grpctransport.NewServer(
		cfg.GRPC.Port,
		int(cfg.GRPC.MaxRecvMsgSize),
		traceHandler, logsHandler, metricsHandler,
		limiter, logger,
	)

	otlpHandler := httptransport.NewOTLPHandler(normalizer, limiter, logger)
	queryHandlers := httptransport.NewQueryHandlers(backend, aggregation, time.Now(), cfg.Server.SelfServiceName, logger)

	ingestHTTP := httptransport.NewIngestServer(
		cfg.Server.HTTPPort, cfg.Server.CORSAllowedOrigins,
		cfg.Server.RequestTimeout, cfg.Server.RequestTimeout, cfg.Server.ShutdownTimeout,
		otlpHandler, queryHandlers, logger,
	)
	queryHTTP := httptransport.NewQueryServer(
		cfg.Server.QueryPort, cfg.Server.CORSAllowedOrigins,
		cfg.Server.RequestTimeout, cfg.Server.RequestTimeout, cfg.Server.ShutdownTimeout,
		queryHandlers, logger,
	)

	registry := opamp.NewAgentRegistry()
	configs := opamp.NewConfigStore(loadCollectorConfig(cfg.OpAMP.CollectorConfigPath, logger))
	opampWS := opamp.NewWSServer(cfg.OpAMP.WSPort, cfg.OpAMP.HeartbeatInterval, registry, configs, logger)
	opampREST := opamp.NewRESTServer(cfg.OpAMP.RESTPort, opamp.NewRESTHandlers(registry, configs, logger), logger)

	return &App{
		config:     cfg,
		logger:     logger,
		store:      backend,
		grpcServer: grpcServer,
		ingestHTTP: ingestHTTP,
		queryHTTP:  queryHTTP,
		opampWS:    opampWS,
		opampREST:  opampREST,
		sweepStop:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}, nil
}

func newStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return redisstore.New(context.Background(), redisstore.Options{
			Addr:                 cfg.Store.RedisAddr,
			TTL:                  cfg.RetentionTTL(),
			MaxMetricCardinality: cfg.Store.MaxMetricCardinality,
		}, logger)
	default:
		return memstore.New(cfg.RetentionTTL(), cfg.Store.MaxMetricCardinality, logger), nil
	}
}

// loadCollectorConfig reads the server's default collector config from
// path, if configured. A missing or unreadable file is logged and treated
// as "no default yet" rather than a fatal startup error — the UI can still
// push one once the process is up.
func loadCollectorConfig(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	body, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("could not read collector config file, starting with no default", "path", path, "error", err)
		return ""
	}
	return string(body)
}

// Start launches every listener concurrently and the background sweep
// loop. It returns once all listeners have been launched; a listener
// failing later is reported through ServeErr-style log lines rather than
// this call, matching the teacher's fire-and-forget errgroup.Go pattern.
func (a *App) Start() error {
	a.logger.Info("starting TinyOlly")

	var g errgroup.Group
	g.Go(a.grpcServer.Start)
	g.Go(a.ingestHTTP.Start)
	g.Go(a.queryHTTP.Start)
	g.Go(a.opampWS.Start)
	g.Go(a.opampREST.Start)

	go a.runSweepLoop()

	// Give listeners a beat to either bind successfully or fail fast on a
	// port conflict before reporting readiness.
	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-time.After(200 * time.Millisecond):
	}

	a.logger.Info("TinyOlly started",
		"otlp_http_port", a.config.Server.HTTPPort,
		"otlp_grpc_port", a.config.GRPC.Port,
		"query_port", a.config.Server.QueryPort,
		"opamp_ws_port", a.config.OpAMP.WSPort,
		"opamp_rest_port", a.config.OpAMP.RESTPort,
	)
	return nil
}

// runSweepLoop periodically reclaims TTL-expired records, mirroring
// spec §4.2's "background pass" reclamation path.
func (a *App) runSweepLoop() {
	defer close(a.sweepDone)

	interval := a.config.Store.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.sweepStop:
			return
		case now := <-ticker.C:
			result := a.store.Sweep(context.Background(), now)
			a.logger.Debug("store sweep completed",
				"spans_reclaimed", result.SpansReclaimed,
				"traces_reclaimed", result.TracesReclaimed,
				"logs_reclaimed", result.LogsReclaimed,
				"points_reclaimed", result.PointsReclaimed,
			)
		}
	}
}

// Shutdown drains every listener and stops the sweep loop, bounded by
// ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.shutdownOnce.Do(func() {
		shutdownErr = a.doShutdown(ctx)
	})
	return shutdownErr
}

func (a *App) doShutdown(ctx context.Context) error {
	a.logger.Info("shutting down TinyOlly")

	close(a.sweepStop)

	var wg sync.WaitGroup
	shutdowns := []func(context.Context) error{
		a.grpcServer.Shutdown,
		a.ingestHTTP.Shutdown,
		a.queryHTTP.Shutdown,
		a.opampWS.Shutdown,
		a.opampREST.Shutdown,
	}
	for _, shutdown := range shutdowns {
		wg.Add(1)
		go func(fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				a.logger.Error("component shutdown failed", "error", err)
			}
		}(shutdown)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		<-a.sweepDone
		close(done)
	}()

	select {
	case <-done:
		_ = a.store.Close()
		a.logger.Info("TinyOlly shutdown complete")
		return nil
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout exceeded, forcing close")
		_ = a.store.Close()
		return ctx.Err()
	}
}

// Logger returns the process-wide logger, e.g. for the entrypoint's own
// startup/fatal log lines.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
