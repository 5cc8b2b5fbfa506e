package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Library    LibraryConfig    `yaml:"library"`
	Database   DatabaseConfig   `yaml:"database"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Deletion   DeletionConfig   `yaml:"deletion"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LibraryConfig struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
	// RescanSchedule is a cron expression; empty disables scheduled re-indexing.
	RescanSchedule string `yaml:"rescan_schedule"`
}

type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"read_only"`
}

type ThumbnailsConfig struct {
	OutputDir     string `yaml:"output_dir"`
	CacheCapacity int    `yaml:"cache_capacity"`
	CacheMaxSize  int64  `yaml:"cache_max_size"` // bytes
}

type CleanupConfig struct {
	LargeVideoThresholdMB int           `yaml:"large_video_threshold_mb"`
	OldMediaDays          int           `yaml:"old_media_days"`
	HashWorkers           int           `yaml:"hash_workers"`
	FingerprintCacheSize  int           `yaml:"fingerprint_cache_size"`
	ReconcileDelay        time.Duration `yaml:"reconcile_delay"`
}

type DeletionConfig struct {
	// Tier is auto, host, direct or legacy.
	Tier                string `yaml:"tier"`
	RequireConfirmation bool   `yaml:"require_confirmation"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         6540,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
		},
		Library: LibraryConfig{
			Path: "",
			Name: "Media Library",
		},
		Database: DatabaseConfig{
			Path: "data/library.db",
		},
		Thumbnails: ThumbnailsConfig{
			OutputDir:     "data/thumbnails",
			CacheCapacity: 1000,
			CacheMaxSize:  512 * 1024 * 1024, // 512 MB
		},
		Cleanup: CleanupConfig{
			LargeVideoThresholdMB: 100,
			OldMediaDays:          365,
			HashWorkers:           4,
			FingerprintCacheSize:  10000,
			ReconcileDelay:        500 * time.Millisecond,
		},
		Deletion: DeletionConfig{
			Tier: "auto",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "galleryclean",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Library.Path = os.ExpandEnv(cfg.Library.Path)
	cfg.Database.Path = os.ExpandEnv(cfg.Database.Path)
	cfg.Thumbnails.OutputDir = os.ExpandEnv(cfg.Thumbnails.OutputDir)

	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port: %d", c.Server.Port))
	}

	if c.Library.Path == "" {
		errs = append(errs, fmt.Errorf("library.path is required"))
	} else if info, err := os.Stat(c.Library.Path); err != nil {
		errs = append(errs, fmt.Errorf("library.path: %w", err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("library.path is not a directory: %s", c.Library.Path))
	}

	if c.Library.RescanSchedule != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Library.RescanSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid library.rescan_schedule: %w", err))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}

	if c.Cleanup.LargeVideoThresholdMB <= 0 {
		errs = append(errs, fmt.Errorf("cleanup.large_video_threshold_mb must be positive"))
	}
	if c.Cleanup.OldMediaDays <= 0 {
		errs = append(errs, fmt.Errorf("cleanup.old_media_days must be positive"))
	}
	if c.Cleanup.HashWorkers <= 0 {
		errs = append(errs, fmt.Errorf("cleanup.hash_workers must be positive"))
	}
	if c.Cleanup.ReconcileDelay < 0 {
		errs = append(errs, fmt.Errorf("cleanup.reconcile_delay cannot be negative"))
	}

	switch strings.ToLower(c.Deletion.Tier) {
	case "", "auto", "host", "direct", "legacy":
	default:
		errs = append(errs, fmt.Errorf("invalid deletion.tier: %s (expected: auto, host, direct, legacy)", c.Deletion.Tier))
	}
	if strings.EqualFold(c.Deletion.Tier, "host") && !c.Deletion.RequireConfirmation {
		errs = append(errs, fmt.Errorf("deletion.tier 'host' requires deletion.require_confirmation"))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, fmt.Errorf("metrics.namespace is required when metrics are enabled"))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: trace, debug, info, warn, error)", c.Logging.Level))
	}

	return errs
}
