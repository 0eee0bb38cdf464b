package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/goliatone/go-command"
	dcb "github.com/goliatone/go-dcb"
	"github.com/goliatone/go-dcb/adapters/gocommand"
	"github.com/goliatone/go-dcb/api"
	"github.com/goliatone/go-dcb/core"
	"github.com/goliatone/go-dcb/events"
	"github.com/goliatone/go-dcb/gateway"
	"github.com/goliatone/go-dcb/metrics"
	dcbmigrations "github.com/goliatone/go-dcb/migrations"
	"github.com/goliatone/go-dcb/ratelimit"
	"github.com/goliatone/go-dcb/resources"
	sqlstore "github.com/goliatone/go-dcb/store/sql"
	"github.com/goliatone/go-dcb/transport"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type runtime struct {
	cfg           daemonConfig
	logger        core.Logger
	client        *persistence.Client
	service       *core.Service
	subscriptions gocommand.Subscriptions
	consumer      *events.Consumer
	server        *http.Server
}

func newRuntime(ctx context.Context, cfg daemonConfig) (*runtime, error) {
	_, logger := glog.Resolve("dcb", nil, nil)
	logger = glog.Ensure(logger)
	rt := &runtime{cfg: cfg, logger: logger}

	client, err := openPersistence(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rt.client = client

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("build sql stores: %w", err)
	}
	cacheConfig := repositorycache.DefaultConfig()
	if cfg.Cache.TTL > 0 {
		cacheConfig.TTL = cfg.Cache.TTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("build cache service: %w", err)
	}
	expiry, err := sqlstore.NewCachedHoldShelfExpiryStore(factory.HoldShelfExpiryStore(), cacheService)
	if err != nil {
		rt.close()
		return nil, err
	}

	platform := transport.NewRESTAdapter(
		&http.Client{Timeout: cfg.Core.Gateway.Timeout},
		transport.WithBaseURL(cfg.Core.Gateway.BaseURL),
		transport.WithPlatformTenant(cfg.Core.Gateway.Tenant, cfg.Core.Gateway.Token),
	)
	gw, err := gateway.NewFolioGateway(platform,
		gateway.WithTimeout(cfg.Core.Gateway.Timeout),
		gateway.WithLogger(logger),
		gateway.WithRateLimitPolicy(ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore()), cfg.Core.Gateway.Tenant),
	)
	if err != nil {
		rt.close()
		return nil, err
	}
	resolver, err := resources.NewResolver(gw,
		resources.WithConfig(resources.ConfigFromCore(cfg.Core)),
		resources.WithHoldShelfExpiryStore(expiry),
		resources.WithLogger(logger),
	)
	if err != nil {
		rt.close()
		return nil, err
	}

	recorder := metrics.NewPrometheusRecorder(cfg.Metrics.options()...)
	svc, err := dcb.NewService(cfg.Core,
		dcb.WithLogger(logger),
		dcb.WithMetricsRecorder(recorder),
		dcb.WithPersistenceClient(client),
		dcb.WithRepositoryFactory(factory),
		dcb.WithGateway(gw),
		dcb.WithSharedResources(resolver),
	)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("build service: %w", err)
	}
	rt.service = svc

	facade, err := dcb.NewFacade(svc)
	if err != nil {
		rt.close()
		return nil, err
	}
	registry := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := facade.Register(registry)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("register command handlers: %w", err)
	}
	rt.subscriptions = subs
	if err := registry.Initialize(); err != nil {
		rt.close()
		return nil, fmt.Errorf("initialize command registry: %w", err)
	}

	if len(cfg.Core.Events.Brokers) > 0 {
		consumer, err := events.NewKafkaConsumer(cfg.Core.Events, svc, events.WithLogger(logger))
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.consumer = consumer
	}

	handler, err := api.NewHandler(svc, api.WithLogger(logger), api.WithMetricsHandler(recorder.Handler()))
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return rt, nil
}

func openPersistence(ctx context.Context, cfg databaseConfig) (*persistence.Client, error) {
	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("new persistence client: %w", err)
	}
	if err := dcbmigrations.Register(ctx, func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, dcbmigrations.DialectPostgres); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

// run serves HTTP and consumes events until ctx is done or either fails.
func (r *runtime) run(ctx context.Context) error {
	defer r.close()

	if r.cfg.BootstrapOnStart {
		report, err := r.service.BootstrapSharedResources(ctx)
		if err != nil {
			r.logger.Warn("dcb shared resource bootstrap incomplete", "error", err.Error(), "resources", len(report.Resources))
		}
	}

	errs := make(chan error, 2)
	go func() {
		r.logger.Info("dcb http server listening", "addr", r.server.Addr)
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	if r.consumer != nil {
		go func() {
			r.logger.Info("dcb event consumer started", "topics", r.cfg.Core.Events.Topics)
			if err := r.consumer.Run(ctx); err != nil {
				errs <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := r.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	r.logger.Info("dcb stopped")
	return runErr
}

func (r *runtime) close() {
	r.subscriptions.Unsubscribe()
	if r.consumer != nil {
		if err := r.consumer.Close(); err != nil {
			r.logger.Warn("dcb event consumer close failed", "error", err.Error())
		}
		r.consumer = nil
	}
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.Warn("dcb database close failed", "error", err.Error())
		}
		r.client = nil
	}
}
