// Package main is the entry point for the clixen orchestration server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/deploy"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/designer"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/intent"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/namespace"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/observability"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/orchestrator"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/session"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/transport"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/validator"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "clixen", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load the engine API spec and seed the kind catalog.
	var specIndex *engine.SpecIndex
	if cfg.Engine.SpecFile != "" {
		specIndex, err = engine.LoadSpec(cfg.Engine.SpecFile)
		if err != nil {
			logger.Error("engine spec load failed", zap.Error(err))
			return 1
		}
	}
	catalogSeed := cfg.Engine.Catalog.Kinds
	if specIndex != nil && len(specIndex.NodeKinds()) > 0 {
		catalogSeed = specIndex.NodeKinds()
	}
	catalog := engine.NewCatalog(catalogSeed, cfg.Engine.Catalog.TTL)

	// Step 5: Load the template library.
	library := designer.BuiltinLibrary()
	if len(cfg.Templates.Directories) > 0 {
		library, err = designer.LoadLibrary(cfg.Templates.Directories)
		if err != nil {
			logger.Error("template library load failed", zap.Error(err))
			return 1
		}
	}
	logger.Info("template library loaded",
		zap.String("version", library.Version()),
		zap.Int("templates", library.Len()))

	// Step 6: Build the engine client.
	engineOpts := []engine.HTTPClientOption{engine.WithMetrics(metrics)}
	if specIndex != nil {
		engineOpts = append(engineOpts, engine.WithSpecIndex(specIndex))
	}
	engineClient := engine.NewHTTPClient(cfg.Engine, os.Getenv(cfg.Engine.AuthTokenEnv), engineOpts...)

	// Step 7: Build stores.
	sessionStore, sessionCloser, err := buildSessionStore(ctx, cfg.SessionStore, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}
	assignmentStore, assignmentCloser, err := buildAssignmentStore(ctx, cfg.Namespace.Store, logger)
	if err != nil {
		logger.Error("namespace store initialization failed", zap.Error(err))
		return 1
	}
	replayCache, replayCloser := buildReplayCache(cfg.Replay, logger)

	// Step 8: Build components.
	generator := intent.NewOpenAIGenerator(cfg.Generation, os.Getenv(cfg.Generation.APIKeyEnv))
	extractor := intent.NewExtractor(generator, logger)
	graphDesigner := designer.New(library)
	graphValidator := validator.New(catalog, cfg.Orchestrator.AutoFixBudget, logger)
	allocator := namespace.NewAllocator(assignmentStore, cfg.Namespace, metrics)
	deployer := deploy.NewManager(engineClient, allocator, cfg.Deployment, cfg.Engine.HealthRetry, metrics, logger)

	orch := orchestrator.New(
		sessionStore, replayCache,
		extractor, graphDesigner, graphValidator, deployer,
		cfg.Orchestrator, cfg.Replay,
		metrics, logger,
	)

	// Step 9: Build HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readinessChecks := observability.ReadinessChecks{
		TemplatesLoaded: func() bool { return library.Len() > 0 },
		CatalogLoaded:   func() bool { return catalog.Len() > 0 },
	}
	if hc, ok := sessionStore.(observability.HealthChecker); ok {
		readinessChecks.SessionStore = hc
	}
	if hc, ok := assignmentStore.(observability.HealthChecker); ok {
		readinessChecks.NamespaceStore = hc
	}
	if hc, ok := replayCache.(observability.HealthChecker); ok {
		readinessChecks.ReplayCache = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Orchestrator: orch,
		Readiness:    readinessChecks,
		Metrics:      metrics,
	})

	handler := observability.TracingMiddleware(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go orch.RunArchiveSweep(bgCtx)
	go catalog.RunRefreshLoop(bgCtx, func(ctx context.Context) ([]string, error) {
		if specIndex == nil {
			return nil, nil
		}
		return specIndex.NodeKinds(), nil
	}, cfg.Engine.Catalog.TTL)

	// Step 11: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("namespace_capacity", allocator.Capacity()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Close stores.
	if sessionCloser != nil {
		sessionCloser()
	}
	if assignmentCloser != nil {
		assignmentCloser()
	}
	if replayCloser != nil {
		replayCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSessionStore creates the session store based on config.
func buildSessionStore(ctx context.Context, cfg config.SessionStoreConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil, nil
	case "postgres", "":
		pool, err := openPool(ctx, cfg.DSNEnv, cfg.MaxConns, cfg.ConnMaxLifetime)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		if pool == nil {
			logger.Warn("session store DSN not configured, using in-memory store")
			return session.NewMemoryStore(), nil, nil
		}
		return session.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}

// buildAssignmentStore creates the namespace assignment store based on config.
func buildAssignmentStore(ctx context.Context, cfg config.NamespaceStoreConfig, logger *zap.Logger) (namespace.AssignmentStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory namespace store")
		return namespace.NewMemoryAssignmentStore(), nil, nil
	case "postgres", "":
		pool, err := openPool(ctx, cfg.DSNEnv, 0, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("namespace store: %w", err)
		}
		if pool == nil {
			logger.Warn("namespace store DSN not configured, using in-memory store")
			return namespace.NewMemoryAssignmentStore(), nil, nil
		}
		return namespace.NewPgAssignmentStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported namespace store driver: %q", cfg.Driver)
	}
}

// buildReplayCache creates the replay cache based on config.
func buildReplayCache(cfg config.ReplayConfig, logger *zap.Logger) (session.ReplayCache, func()) {
	switch cfg.Driver {
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			logger.Warn("replay cache address not configured, using in-memory cache")
			return session.NewMemoryReplayCache(), nil
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		logger.Info("using redis replay cache", zap.String("addr", addr))
		return session.NewRedisReplayCache(client), func() { client.Close() }
	default:
		logger.Info("using in-memory replay cache")
		return session.NewMemoryReplayCache(), nil
	}
}

// openPool opens a pgx pool from a DSN env var. Returns a nil pool when the
// env var is unset, which callers treat as "fall back to memory".
func openPool(ctx context.Context, dsnEnv string, maxConns int, connMaxLifetime time.Duration) (*pgxpool.Pool, error) {
	if dsnEnv == "" {
		return nil, nil
	}
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	if connMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = connMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
