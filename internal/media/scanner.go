package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"galleryclean/internal/storage"
)

var ErrScanInProgress = errors.New("scan already in progress")

// Index is the part of the media index the scanner writes to.
type Index interface {
	UpsertMediaItem(ctx context.Context, e storage.IndexEntry) (int64, error)
	GetAllMediaPaths(ctx context.Context) (map[int64]string, error)
	PrunePaths(ctx context.Context, ids []int64) (int, error)
}

// VideoProber extracts container metadata from a video file.
type VideoProber interface {
	Extract(ctx context.Context, filePath string) (*VideoMetadata, error)
}

type ScanStats struct {
	Indexed int
	Pruned  int
	Failed  int
}

type Scanner struct {
	index    Index
	prober   VideoProber
	logger   zerolog.Logger
	scanning bool
	mu       sync.Mutex
}

// NewScanner creates a library scanner. prober may be nil, in which case
// videos are indexed without duration or capture time.
func NewScanner(index Index, prober VideoProber, logger zerolog.Logger) *Scanner {
	return &Scanner{
		index:  index,
		prober: prober,
		logger: logger,
	}
}

func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Scan walks libraryPath and brings the index in line with what is on disk.
func (s *Scanner) Scan(ctx context.Context, libraryPath string) (*ScanStats, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.scanning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	if libraryPath == "" {
		s.logger.Warn().Msg("no library path configured")
		return &ScanStats{}, nil
	}

	info, err := os.Stat(libraryPath)
	if err != nil {
		return nil, fmt.Errorf("stat library: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library path %s is not a directory", libraryPath)
	}

	libraryPath = filepath.Clean(libraryPath)
	s.logger.Info().Str("path", libraryPath).Msg("scanning library")

	stats := &ScanStats{}

	pruned, err := s.CleanupDeletedFiles(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cleanup failed, continuing with scan")
	}
	stats.Pruned = pruned

	if err := s.scanDirectory(ctx, libraryPath, libraryPath, stats); err != nil {
		return stats, err
	}

	s.logger.Info().
		Int("indexed", stats.Indexed).
		Int("pruned", stats.Pruned).
		Int("failed", stats.Failed).
		Msg("library scan completed")

	return stats, nil
}

func (s *Scanner) scanDirectory(ctx context.Context, root, dirPath string, stats *ScanStats) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}

	folder, err := filepath.Rel(root, dirPath)
	if err != nil || folder == "." {
		folder = ""
	}
	folder = filepath.ToSlash(folder)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		fullPath := filepath.Join(dirPath, entry.Name())

		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if err := s.scanDirectory(ctx, root, fullPath, stats); err != nil {
				if ctx.Err() != nil {
					return err
				}
				s.logger.Error().Err(err).Str("path", fullPath).Msg("failed to scan subfolder")
			}
			continue
		}

		kind, ok := DetectKind(entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Error().Err(err).Str("path", fullPath).Msg("failed to get file info")
			stats.Failed++
			continue
		}

		e := storage.IndexEntry{
			Path:       fullPath,
			Name:       entry.Name(),
			Folder:     folder,
			Kind:       kind,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		}

		switch kind {
		case storage.KindImage:
			e.CapturedAt = imageCaptureTime(fullPath)
		case storage.KindVideo:
			if s.prober != nil {
				if meta, err := s.prober.Extract(ctx, fullPath); err == nil {
					e.CapturedAt = meta.CapturedAt
					if meta.DurationMs > 0 {
						d := meta.DurationMs
						e.DurationMs = &d
					}
				}
			}
		}

		id, err := s.index.UpsertMediaItem(ctx, e)
		if err != nil {
			s.logger.Error().Err(err).Str("path", fullPath).Msg("failed to index media item")
			stats.Failed++
			continue
		}

		stats.Indexed++
		s.logger.Debug().
			Int64("id", id).
			Str("name", e.Name).
			Str("kind", kind.String()).
			Int64("size", e.Size).
			Msg("indexed media item")
	}

	return nil
}

// CleanupDeletedFiles removes index entries for files that no longer exist
func (s *Scanner) CleanupDeletedFiles(ctx context.Context) (int, error) {
	mediaPaths, err := s.index.GetAllMediaPaths(ctx)
	if err != nil {
		return 0, err
	}

	var missing []int64
	for id, path := range mediaPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, id)
			s.logger.Debug().Str("path", path).Msg("media file missing")
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	pruned, err := s.index.PrunePaths(ctx, missing)
	if err != nil {
		return pruned, err
	}

	s.logger.Info().Int("media", pruned).Msg("cleanup completed")
	return pruned, nil
}
