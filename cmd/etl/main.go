package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/monitoring-gap-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/monitoring-gap-etl/internal/adapter/filesink"
	httpadapter "github.com/couchcryptid/monitoring-gap-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/monitoring-gap-etl/internal/adapter/kafka"
	"github.com/couchcryptid/monitoring-gap-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/monitoring-gap-etl/internal/config"
	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	"github.com/couchcryptid/monitoring-gap-etl/internal/observability"
	"github.com/couchcryptid/monitoring-gap-etl/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	manifest, err := config.LoadManifest(cfg.SourcesFile)
	if err != nil {
		logger.Error("failed to load sources manifest", "path", cfg.SourcesFile, "error", err)
		return 1
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		cached, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoding cache", "error", err)
			return 1
		}
		geocoder = cached
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	loaders := []pipeline.Loader{
		filesink.NewWriter(cfg.OutputDir, filesink.Format(cfg.OutputFormat), logger),
	}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	analyzer := pipeline.NewAnalyzer(domain.AnalysisOptions{
		Stride:  cfg.Stride(),
		Cluster: domain.ClusterOptions{
			ThresholdKm:  cfg.ClusterDistanceKm,
			Budget:       cfg.ClusterDateBudget,
			GridMinSites: cfg.SpatialGridMinSites,
		},
		RankingSize: cfg.RankingSize,
	}, geocoder, logger)

	p := pipeline.New(manifest, csvsource.NewReader(logger), analyzer, loaders, logger, metrics, cfg.MaxParallelSources)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	exitCode := 0
	if _, err := p.Run(ctx); err != nil {
		logger.Error("pipeline error", "error", err)
		exitCode = 1
	}

	if cfg.ExitAfterRun {
		stop()
	} else if ctx.Err() == nil {
		logger.Info("analysis complete, serving results until signalled")
		<-ctx.Done()
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return exitCode
}
