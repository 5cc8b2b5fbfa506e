package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"galleryclean/internal/cache"
	"galleryclean/internal/storage"
)

var ErrThumbnailUnavailable = errors.New("thumbnail generator unavailable")

// ThumbnailSource resolves a media id to the file a thumbnail is cut from.
type ThumbnailSource interface {
	GetMediaItem(ctx context.Context, id int64) (*storage.MediaItem, error)
	ResolvePath(ctx context.Context, locator string) (string, error)
}

// ThumbnailService manages thumbnail generation and caching
type ThumbnailService struct {
	generator    *ThumbnailGenerator
	source       ThumbnailSource
	cache        *cache.LRUCache
	logger       zerolog.Logger
	processing   map[int64]bool
	processingMu sync.Mutex
}

func NewThumbnailService(
	generator *ThumbnailGenerator,
	source ThumbnailSource,
	cacheCapacity int,
	cacheMaxSize int64,
	logger zerolog.Logger,
) *ThumbnailService {
	return &ThumbnailService{
		generator:  generator,
		source:     source,
		cache:      cache.NewLRUCache(cacheCapacity, cacheMaxSize),
		logger:     logger,
		processing: make(map[int64]bool),
	}
}

func cacheKey(mediaID int64) string {
	return fmt.Sprintf("thumb:%d", mediaID)
}

// GetThumbnail returns thumbnail data from cache or generates it. A nil
// slice with a nil error means the media item does not exist.
func (s *ThumbnailService) GetThumbnail(ctx context.Context, mediaID int64) ([]byte, error) {
	key := cacheKey(mediaID)
	if data, ok := s.cache.Get(key); ok {
		s.logger.Debug().Int64("id", mediaID).Msg("thumbnail from cache")
		return data, nil
	}

	thumbnailPath := s.generator.GetPath(mediaID)
	if data, err := os.ReadFile(thumbnailPath); err == nil {
		s.logger.Debug().Int64("id", mediaID).Str("path", thumbnailPath).Msg("thumbnail from disk")
		s.cache.Set(key, data)
		return data, nil
	}

	item, err := s.source.GetMediaItem(ctx, mediaID)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", mediaID).Msg("failed to get media item")
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	if !s.generator.IsAvailable() {
		s.logger.Warn().Msg("ffmpeg not available for thumbnail generation")
		return nil, ErrThumbnailUnavailable
	}

	thumbnailPath, err = s.generate(ctx, item)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(thumbnailPath)
	if err != nil {
		s.logger.Error().Err(err).Str("thumbnail", thumbnailPath).Msg("failed to read generated thumbnail")
		return nil, err
	}

	s.cache.Set(key, data)
	s.logger.Info().Int64("id", mediaID).Int("size", len(data)).Msg("thumbnail generated and cached")
	return data, nil
}

func (s *ThumbnailService) generate(ctx context.Context, item *storage.MediaItem) (string, error) {
	path, err := s.source.ResolvePath(ctx, item.Locator)
	if err != nil {
		return "", err
	}

	var durationMs int64
	if item.DurationMs != nil {
		durationMs = *item.DurationMs
	}

	out, err := s.generator.Generate(ctx, path, item.ID, item.Kind, durationMs)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", item.ID).Str("source", path).Msg("failed to generate thumbnail")
		return "", err
	}
	return out, nil
}

// Prewarm generates missing thumbnails for items in the background.
func (s *ThumbnailService) Prewarm(ctx context.Context, items []storage.MediaItem, delay time.Duration) {
	if !s.generator.IsAvailable() {
		s.logger.Info().Msg("ffmpeg not available, skipping thumbnail prewarm")
		return
	}

	go func() {
		processed := 0
		for _, item := range items {
			select {
			case <-ctx.Done():
				s.logger.Info().Int("processed", processed).Msg("thumbnail prewarm cancelled")
				return
			default:
			}

			if s.generator.Exists(item.ID) || !s.claim(item.ID) {
				continue
			}
			if _, err := s.generate(ctx, &item); err == nil {
				processed++
			}
			s.release(item.ID)

			// Rate limit to avoid overloading weak CPUs
			time.Sleep(delay)
		}
		s.logger.Info().Int("processed", processed).Msg("thumbnail prewarm completed")
	}()
}

func (s *ThumbnailService) claim(id int64) bool {
	s.processingMu.Lock()
	defer s.processingMu.Unlock()
	if s.processing[id] {
		return false
	}
	s.processing[id] = true
	return true
}

func (s *ThumbnailService) release(id int64) {
	s.processingMu.Lock()
	delete(s.processing, id)
	s.processingMu.Unlock()
}

// Invalidate drops the cached and on-disk thumbnails of deleted media.
func (s *ThumbnailService) Invalidate(ids []int64) {
	for _, id := range ids {
		s.cache.Delete(cacheKey(id))
		if err := s.generator.Delete(id); err != nil {
			s.logger.Warn().Err(err).Int64("id", id).Msg("failed to remove thumbnail")
		}
	}
}

// CacheStats returns cache statistics
func (s *ThumbnailService) CacheStats() (count int, size int64) {
	return s.cache.Len(), s.cache.Size()
}
