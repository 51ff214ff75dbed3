package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"BucketCatalog/internal/catalog"
	"BucketCatalog/internal/config"
	"BucketCatalog/internal/httpapi"
	"BucketCatalog/internal/infrastructure/httpsource"
	"BucketCatalog/internal/infrastructure/indexlister"
	"BucketCatalog/internal/infrastructure/s3lister"
	"BucketCatalog/internal/infrastructure/scheduler"
	"BucketCatalog/internal/lister"
	"BucketCatalog/internal/logging"
	"BucketCatalog/internal/metrics"
	"BucketCatalog/internal/ports"
	"BucketCatalog/internal/usecase"
)

const defaultShutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	catalog   *catalog.Manager
	fetcher   *usecase.Fetcher
	scheduler *usecase.Scheduler
	server    *http.Server
}

// New builds the application: stores, listers, use cases and the HTTP router.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	manager, err := catalog.NewManagerWithOptions(cfg.Storage.DataDir, baseLogger.With("component", "catalog"), catalog.StoreOptions{
		BusyTimeout:  cfg.Storage.BusyTimeout,
		Synchronous:  cfg.Storage.Synchronous,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}

	registry, err := buildListers(ctx, cfg, baseLogger)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}
	src, err := registry.Resolve(cfg.Source.Lister)
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("select lister: %w", err)
	}

	var (
		recorder      ports.Metrics = metrics.Nop{}
		metricsHandle http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.New(reg)
		metricsHandle = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	fetcher, err := usecase.NewFetcher(usecase.FetcherDeps{
		Catalog:        manager,
		Lister:         src,
		Metrics:        recorder,
		Logger:         baseLogger.With("component", "fetcher"),
		LockDir:        cfg.Storage.DataDir,
		BatchSize:      cfg.Storage.BatchSize,
		StaleLockAfter: cfg.Storage.StaleLockAfter,
	})
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	manifests := usecase.NewManifestService(usecase.ManifestDeps{
		Catalog: manager,
		Source:  httpsource.New(cfg.Manifest.FetchTimeout),
		Metrics: recorder,
		Logger:  baseLogger.With("component", "manifest"),
	})

	sched := usecase.NewScheduler(
		scheduler.NewTickerScheduler(cfg.Scheduler.Interval, cfg.Scheduler.RunOnStart),
		fetcher, cfg.Source.Bucket, cfg.Source.Prefix,
		baseLogger.With("component", "scheduler"),
	)

	router := httpapi.New(httpapi.Deps{
		Fetches:     fetcher,
		Runs:        manager,
		Manifests:   manifests,
		Logger:      baseLogger.With("component", "http"),
		Bucket:      cfg.Source.Bucket,
		Prefix:      cfg.Source.Prefix,
		ManifestURL: cfg.Manifest.DefaultURL,
		Metrics:     metricsHandle,
		MetricsPath: cfg.Metrics.Path,
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		catalog:   manager,
		fetcher:   fetcher,
		scheduler: sched,
		server: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// buildListers registers every lister the configuration can construct.
func buildListers(ctx context.Context, cfg config.Config, logger *slog.Logger) (*lister.Registry, error) {
	registry := lister.NewRegistry()

	s3, err := s3lister.New(ctx, cfg.Source.S3, logger.With("component", "lister.s3"))
	if err != nil {
		return nil, fmt.Errorf("build s3 lister: %w", err)
	}
	registry.Register(s3)

	if cfg.Source.Index.BaseURL != "" {
		registry.Register(indexlister.New(nil, cfg.Source.Index, logger.With("component", "lister.index")))
	}
	return registry, nil
}

// Run serves HTTP until ctx is canceled, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr, "lister", a.cfg.Source.Lister)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return errors.Join(serveErr, a.shutdown(shutdownCtx))
}

func (a *Application) shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}
	if err := a.fetcher.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stores: %w", err))
	}
	return errors.Join(errs...)
}
