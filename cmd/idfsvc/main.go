package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/coefficients"
	httpadapter "github.com/couchcryptid/rainfall-idf-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/rainfall-idf-service/internal/adapter/kafka"
	"github.com/couchcryptid/rainfall-idf-service/internal/config"
	"github.com/couchcryptid/rainfall-idf-service/internal/observability"
	"github.com/couchcryptid/rainfall-idf-service/internal/pipeline"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	opts := cfg.AnalysisOptions()

	// The coefficient table is reference data: without it no analysis can succeed.
	wb, err := coefficients.Open(cfg.CoefficientsPath, cfg.CoefficientsSheet, opts.CoefficientColumns)
	if err != nil {
		logger.Error("failed to load coefficient workbook", "path", cfg.CoefficientsPath, "error", err)
		os.Exit(1)
	}
	table := wb.Table()
	metrics.CoefficientRows.Set(float64(table.Len()))
	logger.Info("coefficient workbook loaded",
		"path", cfg.CoefficientsPath,
		"sheet", wb.Sheet,
		"municipalities", table.Len(),
		"skipped_rows", wb.Skipped,
	)

	cache := pipeline.NewReportCache(cfg.ResultCacheSize)
	analyzer := pipeline.NewAnalyzer(table, opts, cache, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(analyzer)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize, cfg.AnalysisConcurrency)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, analyzer, table, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start analysis pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
