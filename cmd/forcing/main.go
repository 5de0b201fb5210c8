package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/thchilly/era5-forcing-etl/internal/adapter/http"
	"github.com/thchilly/era5-forcing-etl/internal/adapter/netcdf"
	"github.com/thchilly/era5-forcing-etl/internal/config"
	"github.com/thchilly/era5-forcing-etl/internal/observability"
	"github.com/thchilly/era5-forcing-etl/internal/pipeline"
	"github.com/thchilly/era5-forcing-etl/internal/regrid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	reader := netcdf.NewReader(cfg.InputDir, logger)
	writer := netcdf.NewWriter(cfg.OutputDir, logger)
	cache := regrid.NewCache(cfg.WeightsDir, logger)

	proc := pipeline.NewProcessor(reader, writer, cache, cfg.TargetGrid, logger, metrics)
	runner := pipeline.NewRunner(proc, logger, metrics, cfg.Workers)

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics and health endpoints stay up for the duration of the batch.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var units []pipeline.Unit
	for _, v := range cfg.Variables {
		for year := cfg.StartYear; year <= cfg.EndYear; year++ {
			units = append(units, pipeline.Unit{Variable: v, Year: year})
		}
	}

	report := runner.Run(ctx, units)
	for _, s := range report.Skipped {
		logger.Warn("skipped", "unit", s.Unit.String(), "error", s.Err)
	}
	for _, f := range report.Failed {
		logger.Error("failed", "unit", f.Unit.String(), "error", f.Err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
