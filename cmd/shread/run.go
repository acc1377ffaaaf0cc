package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robert-malhotra/shread/internal/archive"
	"github.com/robert-malhotra/shread/internal/basin"
	"github.com/robert-malhotra/shread/internal/batch"
	"github.com/robert-malhotra/shread/internal/cmr"
	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/fetch"
	"github.com/robert-malhotra/shread/internal/gdal"
	"github.com/robert-malhotra/shread/internal/observability"
	"github.com/robert-malhotra/shread/internal/pipeline"
	"github.com/robert-malhotra/shread/internal/product"
	"github.com/robert-malhotra/shread/pkg/server"
)

// execute runs every requested product for every date. Individual job
// failures are reported in the run summary and do not fail the command.
func execute(ctx context.Context, req *request) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := setupLogger(settings.Logging.Level, settings.Logging.Format).With("run_id", runID)
	slog.SetDefault(logger)

	cfg, err := config.LoadRun(req.configPath)
	if err != nil {
		return fmt.Errorf("failed to load run configuration: %w", err)
	}

	logger.Info("starting shread",
		"config", req.configPath,
		"basin", cfg.BasinName,
		"products", req.products,
		"dates", len(req.dates),
		"workers", settings.Runtime.Workers,
	)

	engine := gdal.New().WithLogger(logger)
	b, err := basin.Resolve(cfg, engine)
	if err != nil {
		return fmt.Errorf("failed to resolve basin: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	env := &product.Env{
		Config:    cfg,
		Basin:     b,
		Engine:    engine,
		Fetch:     newFetcher(&http.Client{Timeout: settings.Runtime.HTTPTimeout}, settings, metrics, logger),
		JPL:       newFetcher(fetch.NewDigestClient(cfg.JPL.Username, cfg.JPL.Password, cfg.JPL.SSLVerify, settings.Runtime.HTTPTimeout), settings, metrics, logger),
		Earthdata: newFetcher(cmr.NewEarthdataClient(cfg.Earthdata.Username, cfg.Earthdata.Password, settings.Runtime.HTTPTimeout), settings, metrics, logger),
		CMR: cmr.NewClient(cfg.Earthdata.CMRURL, "", settings.Runtime.HTTPTimeout).
			WithLogger(logger).
			WithUserAgent(settings.Runtime.UserAgent),
		Overwrite: req.overwrite,
		Logger:    logger,
	}

	if env.Archive, err = newArchive(ctx, cfg, logger); err != nil {
		return err
	}

	report := batch.NewReport(runID, time.Now().UTC())

	if settings.Runtime.StatusAddr != "" {
		srv, err := server.New(server.Options{
			Addr:     settings.Runtime.StatusAddr,
			Status:   report,
			Gatherer: registry,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := srv.Serve(srvCtx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		logger.Info("status server listening", "addr", srv.Addr())
	}

	pipe := pipeline.New(env, metrics).WithLogger(logger)
	runner := batch.NewRunner(product.Registry(cfg), pipe, settings.Runtime.Workers).WithLogger(logger)
	runner.Run(ctx, req.products, req.dates, report)
	report.Finish(time.Now().UTC())
	report.Log(logger)

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("run interrupted")
	}
	return nil
}

func newFetcher(hc *http.Client, settings *config.Settings, metrics *observability.Metrics, logger *slog.Logger) *fetch.Client {
	return fetch.New(hc).
		WithLogger(logger).
		WithUserAgent(settings.Runtime.UserAgent).
		WithObserver(metrics).
		WithFTPTimeout(settings.Runtime.HTTPTimeout)
}

// newArchive returns nil when neither the local archive nor S3 is
// configured.
func newArchive(ctx context.Context, cfg *config.RunConfig, logger *slog.Logger) (archive.Store, error) {
	var stores []archive.Store
	if cfg.Archive {
		stores = append(stores, archive.NewLocal(cfg.ArchiveDir))
	}
	if cfg.S3 != nil {
		s3, err := archive.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to open S3 archive: %w", err)
		}
		stores = append(stores, s3)
	}
	if len(stores) == 0 {
		return nil, nil
	}
	return archive.NewMulti(stores...).WithLogger(logger), nil
}
