package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cityforge/enviro-intel/internal/adapter/httpapi"
	"github.com/cityforge/enviro-intel/internal/adapter/kafkapub"
	"github.com/cityforge/enviro-intel/internal/adapter/meteomatics"
	"github.com/cityforge/enviro-intel/internal/adapter/satellite"
	"github.com/cityforge/enviro-intel/internal/aggregate"
	"github.com/cityforge/enviro-intel/internal/config"
	"github.com/cityforge/enviro-intel/internal/domain"
	"github.com/cityforge/enviro-intel/internal/freshness"
	"github.com/cityforge/enviro-intel/internal/model"
	"github.com/cityforge/enviro-intel/internal/observability"
	"github.com/cityforge/enviro-intel/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	registry := model.Load(cfg.ArtifactDir, clock, logger)
	logger.Info("model registry ready", "available", registry.Available())

	archive := satellite.NewArchive(cfg.ArchivePath, logger)

	// Live weather is feature-flagged via the Meteomatics credentials.
	var weather pipeline.WeatherSource
	if cfg.WeatherEnabled() {
		weather = meteomatics.NewClient(
			cfg.MeteomaticsBaseURL, cfg.MeteomaticsUsername, cfg.MeteomaticsPassword,
			cfg.Latitude, cfg.Longitude, cfg.MeteomaticsTimeout, clock, logger)
		logger.Info("live weather enabled", "base_url", cfg.MeteomaticsBaseURL)
	} else {
		weather = unavailableWeather{}
		logger.Info("live weather disabled, running on satellite data only")
	}

	normalizer := domain.NewNormalizer(cfg.RecencyWindow)
	aggregator := aggregate.New(cfg.ResilienceWeights(), cfg.City, logger)
	pipe := pipeline.New(archive, weather, normalizer, registry, aggregator, clock, logger, metrics, cfg.HistoryDays)

	// Snapshot publishing is feature-flagged via the broker list.
	var sink freshness.SnapshotSink
	var publisher *kafkapub.Publisher
	if cfg.SnapshotsEnabled() {
		publisher = kafkapub.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic, logger)
		sink = publisher
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaSnapshotTopic)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	manager := freshness.NewManager(pipe, sink, freshness.Config{
		MaxAge: map[domain.Source]time.Duration{
			domain.SourceWeather:   cfg.WeatherMaxAge,
			domain.SourceSatellite: cfg.SatelliteMaxAge,
		},
		ComputeTimeout: cfg.ComputeTimeout,
	}, clock, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, manager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the cache so the first request is not a cold start.
	go manager.Warm(ctx)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// unavailableWeather stands in when no weather credentials are configured,
// so the pipeline degrades the source the same way it would an outage.
type unavailableWeather struct{}

func (unavailableWeather) FetchCurrent(context.Context) (domain.RawReading, error) {
	return domain.RawReading{}, &domain.ServiceUnavailableError{
		Source: domain.SourceWeather,
		Err:    errors.New("weather provider not configured"),
	}
}
