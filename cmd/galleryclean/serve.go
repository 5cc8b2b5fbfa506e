package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"galleryclean/internal/api"
	"galleryclean/internal/deletion"
	"galleryclean/internal/media"
	"galleryclean/internal/review"
	"galleryclean/internal/server"
	"galleryclean/internal/streaming"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Index the library and start the review server",
	RunE:  runServe,
}

// pinnedTier maps the configured tier to a deletion tier. "auto" leaves the
// choice to the capability probe.
func pinnedTier(name string) (deletion.Tier, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return "", nil
	case "host":
		return deletion.TierHostMediated, nil
	case "direct":
		return deletion.TierDirectIndex, nil
	case "legacy":
		return deletion.TierLegacyFilesystem, nil
	default:
		return "", fmt.Errorf("unknown deletion tier %q", name)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().
		Str("version", Version).
		Str("library", cfg.Library.Path).
		Msg("starting galleryclean server")

	e, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	thumbnailGenerator := media.NewThumbnailGenerator(cfg.Thumbnails.OutputDir, logger)
	if thumbnailGenerator.IsAvailable() {
		logger.Info().Msg("ffmpeg available - thumbnail generation enabled")
	} else {
		logger.Warn().Msg("ffmpeg not found - thumbnail generation disabled")
	}
	thumbnailService := media.NewThumbnailService(
		thumbnailGenerator,
		e.store,
		cfg.Thumbnails.CacheCapacity,
		cfg.Thumbnails.CacheMaxSize,
		logger,
	)

	pinned, err := pinnedTier(cfg.Deletion.Tier)
	if err != nil {
		return err
	}
	caps := deletion.Capabilities{
		HostConfirmation: cfg.Deletion.RequireConfirmation,
		IndexDeletion:    e.store.CanDelete(),
	}
	deletionLogger := logger.With().Str("component", "deletion").Logger()
	authority, err := deletion.SelectAuthority(caps, pinned, e.store, deletionLogger)
	if err != nil {
		return err
	}

	slot := deletion.NewConfirmationSlot()
	invalidators := deletion.Invalidators{e.catalog, thumbnailService}
	coordinator := deletion.NewCoordinator(e.store, authority, invalidators, slot, deletionLogger, e.metrics)

	controller := review.NewController(e.detector, coordinator, slot, e.catalog, review.Options{
		LargeVideoThresholdMB: cfg.Cleanup.LargeVideoThresholdMB,
		OldMediaDays:          cfg.Cleanup.OldMediaDays,
		ReconcileDelay:        cfg.Cleanup.ReconcileDelay,
		Metrics:               e.metrics,
	}, logger.With().Str("component", "review").Logger())
	defer controller.Close()

	handler := api.NewHandler(e.catalog, controller, logger, cfg.Library.Name)
	handler.SetIndexer(e.reindexer)
	handler.SetThumbnailService(thumbnailService)
	handler.SetStreamer(streaming.NewHandler(e.store, logger))
	handler.SetAuthorizer(coordinator, api.NewPromptHost(logger))

	var gatherer prometheus.Gatherer
	if e.registry != nil {
		gatherer = e.registry
	}
	srv := server.New(cfg, logger, handler, gatherer)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		logger.Info().
			Str("path", cfg.Library.Path).
			Str("name", cfg.Library.Name).
			Msg("starting initial library scan")

		if !e.store.CanDelete() {
			// Read-only index: serve what is already there.
			if err := e.catalog.Load(ctx); err != nil {
				logger.Error().Err(err).Msg("initial catalog load failed")
			}
			return
		}

		stats, err := e.reindexer.RunOnce(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("initial scan failed")
			return
		}
		logger.Info().
			Int("indexed", stats.Indexed).
			Int("pruned", stats.Pruned).
			Int("failed", stats.Failed).
			Msg("initial scan completed")

		thumbnailService.Prewarm(ctx, e.catalog.Snapshot().Items, 500*time.Millisecond)
	}()

	if e.store.CanDelete() {
		if err := e.reindexer.Start(ctx, cfg.Library.RescanSchedule); err != nil {
			return err
		}
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("received shutdown signal")
		cancel()

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}
