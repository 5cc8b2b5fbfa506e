package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reloader refreshes whatever caches sit on top of the index.
type Reloader interface {
	ForceReload(ctx context.Context) error
}

// Reindexer rescans the library and reloads the catalog, either on demand
// or on a cron schedule.
type Reindexer struct {
	scanner     *Scanner
	libraryPath string
	reloader    Reloader
	logger      zerolog.Logger
	parser      cron.Parser

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func NewReindexer(scanner *Scanner, libraryPath string, reloader Reloader, logger zerolog.Logger) *Reindexer {
	return &Reindexer{
		scanner:     scanner,
		libraryPath: libraryPath,
		reloader:    reloader,
		logger:      logger,
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// RunOnce scans the library and then forces a catalog reload.
func (r *Reindexer) RunOnce(ctx context.Context) (*ScanStats, error) {
	stats, err := r.scanner.Scan(ctx, r.libraryPath)
	if err != nil {
		return stats, err
	}

	if r.reloader != nil {
		if err := r.reloader.ForceReload(ctx); err != nil {
			return stats, fmt.Errorf("reload catalog: %w", err)
		}
	}

	return stats, nil
}

func (r *Reindexer) IsScanning() bool {
	return r.scanner.IsScanning()
}

// Start schedules RunOnce on the given cron expression. An empty schedule
// disables periodic rescans.
func (r *Reindexer) Start(ctx context.Context, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("reindexer already started")
	}
	if schedule == "" {
		r.logger.Info().Msg("periodic rescan disabled")
		return nil
	}

	r.cron = cron.New(cron.WithParser(r.parser))
	r.ctx, r.cancel = context.WithCancel(ctx)

	_, err := r.cron.AddFunc(schedule, func() {
		stats, err := r.RunOnce(r.ctx)
		if errors.Is(err, ErrScanInProgress) {
			r.logger.Debug().Msg("scheduled rescan skipped, scan already running")
			return
		}
		if err != nil {
			r.logger.Error().Err(err).Msg("scheduled rescan failed")
			return
		}
		r.logger.Info().Int("indexed", stats.Indexed).Int("pruned", stats.Pruned).Msg("scheduled rescan completed")
	})
	if err != nil {
		r.cancel()
		return fmt.Errorf("invalid rescan schedule: %w", err)
	}

	r.cron.Start()
	r.started = true
	r.logger.Info().Str("schedule", schedule).Msg("rescan scheduler started")

	go func() {
		<-r.ctx.Done()
		r.cron.Stop()
	}()

	return nil
}

// Stop stops the scheduler. Safe to call when it never started.
func (r *Reindexer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	r.cancel()
	r.started = false
	r.logger.Info().Msg("rescan scheduler stopped")
}

// ValidateSchedule reports whether schedule parses as a cron expression.
func ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := parser.Parse(schedule)
	return err
}
