package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"galleryclean/internal/cache"
	"galleryclean/internal/catalog"
	"galleryclean/internal/cleanup"
	"galleryclean/internal/config"
	"galleryclean/internal/media"
	"galleryclean/internal/metrics"
	"galleryclean/internal/storage"
)

// engine holds the components every command needs.
type engine struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     *storage.SQLiteStorage
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	extractor *media.MetadataExtractor
	scanner   *media.Scanner
	reindexer *media.Reindexer
	catalog   *catalog.Catalog
	detector  *cleanup.Detector
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func openEngine(cfg *config.Config, logger zerolog.Logger) (*engine, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path, cfg.Database.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	e := &engine{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}

	if cfg.Metrics.Enabled {
		e.registry = prometheus.NewRegistry()
		e.metrics = metrics.InitPrometheusMetrics(cfg.Metrics.Namespace, e.registry)
	}

	e.extractor = media.NewMetadataExtractor(logger)
	var prober media.VideoProber
	if e.extractor.IsAvailable() {
		logger.Info().Msg("ffprobe available - metadata extraction enabled")
		prober = e.extractor
	} else {
		logger.Warn().Msg("ffprobe not found - videos indexed without duration or capture time")
	}

	e.catalog = catalog.New(store, logger.With().Str("component", "catalog").Logger(), e.metrics)
	e.scanner = media.NewScanner(store, prober, logger.With().Str("component", "scanner").Logger())
	e.reindexer = media.NewReindexer(e.scanner, cfg.Library.Path, e.catalog, logger)
	e.detector = cleanup.NewDetector(e.catalog, store, cleanup.Options{
		Workers:      cfg.Cleanup.HashWorkers,
		Fingerprints: cache.NewFingerprintCache(cfg.Cleanup.FingerprintCacheSize),
		Metrics:      e.metrics,
	}, logger.With().Str("component", "detector").Logger())

	return e, nil
}

func (e *engine) params() cleanup.Params {
	return cleanup.Params{
		LargeVideoThresholdMB: e.cfg.Cleanup.LargeVideoThresholdMB,
		OldMediaDays:          e.cfg.Cleanup.OldMediaDays,
	}
}

func (e *engine) Close() error {
	e.reindexer.Stop()
	return e.store.Close()
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stderr).
		With().
		Timestamp().
		Logger()
}
