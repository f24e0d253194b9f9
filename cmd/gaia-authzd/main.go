// gaia-authzd is the authorization resolver service for the knowledge
// store. It exposes the decision endpoint and the grant administration
// API, with health and metrics on a separate port.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Aeonia-ai/gaia-sub005/pkg/api"
	"github.com/Aeonia-ai/gaia-sub005/pkg/audit"
	"github.com/Aeonia-ai/gaia-sub005/pkg/authz"
	"github.com/Aeonia-ai/gaia-sub005/pkg/config"
	"github.com/Aeonia-ai/gaia-sub005/pkg/observability"
	"github.com/Aeonia-ai/gaia-sub005/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("service failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting gaia-authzd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	if cfg.Observability.TracingEnabled {
		tp, err := observability.InitTracing(ctx, observability.TracingConfig{
			Enabled:        cfg.Observability.TracingEnabled,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.ServiceName,
			ServiceVersion: cfg.Observability.ServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return err
		}
		if tp != nil {
			defer tp.Shutdown(context.Background())
		}
	}

	// PostgreSQL
	cm, err := storage.NewConnectionManager(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer cm.Close()

	if err := authz.RunMigrations(ctx, cm.Primary()); err != nil {
		return err
	}
	logger.Info("database migrations applied")

	// Generation counters: Redis when configured, otherwise local.
	var gens authz.Generations
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		gens = authz.NewRedisGenerations(rdb)
		logger.Info("using redis generation counters")
	} else {
		gens = authz.NewLocalGenerations()
		logger.Warn("no redis configured, generation counters are process-local")
	}

	store := authz.NewStore(cm.Primary(), gens)

	// Role registry
	registry := authz.DefaultRegistry()
	if cfg.Registry.Path != "" {
		registry, err = authz.LoadRegistryFile(cfg.Registry.Path)
		if err != nil {
			return err
		}
		logger.WithField("path", cfg.Registry.Path).Info("loaded role registry file")
	}

	// Metrics
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// Resolver with decision cache
	resolverOpts := []authz.ResolverOption{
		authz.WithLogger(logger),
	}
	if metrics != nil {
		resolverOpts = append(resolverOpts, authz.WithMetrics(metrics))
	}
	if cfg.Cache.Enabled {
		cache := authz.NewCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, store.Generations())
		resolverOpts = append(resolverOpts, authz.WithCache(cache))
	}
	resolver := authz.NewResolver(registry, store, store, store, resolverOpts...)

	// Audit sinks
	auditor, err := buildAuditor(ctx, cfg, cm, logger)
	if err != nil {
		return err
	}
	defer auditor.Close()

	// API server
	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithAuditor(auditor, cfg.Audit.Decisions),
	}
	if metrics != nil {
		serverOpts = append(serverOpts, api.WithMetrics(metrics))
	}
	if cfg.Observability.TracingEnabled {
		serverOpts = append(serverOpts, api.WithTracing())
	}
	server := api.NewServer(resolver, store, registry, serverOpts...)

	// Janitor
	if cfg.Janitor.Enabled {
		janitor := authz.NewJanitor(store, logger, metrics)
		if err := janitor.Start(cfg.Janitor.Schedule); err != nil {
			return err
		}
		defer janitor.Stop()
	}

	// Health and metrics endpoints on their own port
	health := observability.NewHealthChecker(cm.Primary(), rdb)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		healthServer.Shutdown(shutdownCtx)
		return apiServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildAuditor assembles the configured audit sinks.
func buildAuditor(ctx context.Context, cfg *config.Config, cm *storage.ConnectionManager, logger *observability.Logger) (audit.Logger, error) {
	var sinks []audit.Logger

	if cfg.Audit.FilePath != "" {
		fileSink, err := audit.NewFileLogger(cfg.Audit.FilePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
		logger.WithField("path", cfg.Audit.FilePath).Info("audit file sink enabled")
	}
	if cfg.Audit.ToDB {
		dbSink := audit.NewDBLogger(cm.Primary())
		if err := dbSink.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, dbSink)
	}

	switch len(sinks) {
	case 0:
		return audit.NopLogger{}, nil
	case 1:
		return sinks[0], nil
	default:
		return audit.NewMultiLogger(sinks...), nil
	}
}
