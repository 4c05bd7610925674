package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/formapi/formapi/pkg/access"
	"github.com/formapi/formapi/pkg/api"
	"github.com/formapi/formapi/pkg/config"
	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/schema"
	"github.com/formapi/formapi/pkg/store"
	"github.com/formapi/formapi/pkg/template"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "formapi: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	log.WithField("version", api.Version).Info("starting formapi")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("initializing OpenTelemetry: %w", err)
	}
	defer func() {
		if providers != nil {
			observability.ShutdownOTel(context.Background(), providers, log)
		}
	}()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	// Persistence gateway
	gw, pinger, closeStore, err := openStore(cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Optional redis read-through cache
	var redisClient *redis.Client
	if cfg.Store.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisURL,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		defer redisClient.Close()
		gw = store.NewCachedGateway(gw, redisClient, cfg.Store.CacheTTL)
		log.WithField("addr", cfg.Store.RedisURL).Info("document cache enabled")
	}
	gw = observability.InstrumentGateway(gw, metrics)

	// Models, request pipeline, template engine
	registry := schema.NewRegistry()
	models := make(map[string]*model.Model)
	for name, entity := range schema.Entities() {
		models[name] = model.New(entity, gw, registry, log)
	}

	loader := request.NewLoader(models, log)
	authorizer := access.NewAuthorizer(access.Config{
		EveryoneRole: cfg.Auth.EveryoneRole,
		AdminKey:     cfg.Auth.AdminKey,
		CacheSize:    cfg.Auth.DecisionCacheSize,
	}, metrics, log)

	porters := template.Porters(models, authorizer.Everyone())
	importer := template.NewImporter(porters, log, metrics)
	exporter := template.NewExporter(porters, log)

	server := api.NewServer(models, loader, authorizer, importer, exporter, log, metrics)

	// Bootstrap template
	if cfg.Template.Path != "" {
		if _, err := template.ImportFile(ctx, importer, cfg.Template.Path); err != nil {
			return fmt.Errorf("importing bootstrap template: %w", err)
		}
		log.WithField("path", cfg.Template.Path).Info("bootstrap template imported")
		if cfg.Template.Watch {
			watcher := template.NewWatcher(importer, cfg.Template.Path, log)
			go func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("template watcher stopped")
				}
			}()
		}
	}

	// Health and metrics server, on its own port for probes
	health := observability.NewHealthChecker(pinger, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	var handler http.Handler = server
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "formapi")
	}
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go func() {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("api server shutdown")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("health server shutdown")
	}
	return nil
}

// openStore builds the configured persistence gateway. The second return
// is the connectivity prober for readiness checks, nil when the store has
// nothing to probe.
func openStore(cfg config.StoreConfig, log *observability.Logger) (store.Gateway, observability.Pinger, func(), error) {
	switch cfg.Type {
	case "memory":
		log.Info("using in-memory store")
		return store.NewMemory(), nil, func() {}, nil
	case "sqlite":
		s, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		log.WithField("path", cfg.SQLitePath).Info("using sqlite store")
		return s, nil, func() { s.Close() }, nil
	case "postgres":
		p, err := store.NewPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		log.Info("using postgres store")
		return p, p, func() { p.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
