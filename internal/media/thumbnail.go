package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"galleryclean/internal/storage"
)

type ThumbnailGenerator struct {
	ffmpegPath string
	outputDir  string
	logger     zerolog.Logger
}

func NewThumbnailGenerator(outputDir string, logger zerolog.Logger) *ThumbnailGenerator {
	ffmpegPath := "ffmpeg"
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		ffmpegPath = path
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		logger.Warn().Err(err).Str("dir", outputDir).Msg("failed to create thumbnail directory")
	}

	return &ThumbnailGenerator{
		ffmpegPath: ffmpegPath,
		outputDir:  outputDir,
		logger:     logger,
	}
}

func (t *ThumbnailGenerator) IsAvailable() bool {
	_, err := exec.LookPath(t.ffmpegPath)
	return err == nil
}

// Generate creates a thumbnail for a photo or video and returns its path.
func (t *ThumbnailGenerator) Generate(ctx context.Context, sourcePath string, mediaID int64, kind storage.MediaKind, durationMs int64) (string, error) {
	outputPath := t.GetPath(mediaID)

	if _, err := os.Stat(outputPath); err == nil {
		return outputPath, nil
	}

	var args []string
	if kind == storage.KindVideo {
		// 10% into the video, capped at 5 seconds
		timestamp := int64(5)
		duration := durationMs / 1000
		if duration > 0 {
			tenPercent := duration / 10
			if tenPercent > 0 && tenPercent < timestamp {
				timestamp = tenPercent
			}
			if timestamp > duration {
				timestamp = duration / 2
			}
		}
		args = append(args, "-ss", strconv.FormatInt(timestamp, 10))
	}

	args = append(args,
		"-i", sourcePath,
		"-vframes", "1",
		"-vf", "scale=320:-1",
		"-q:v", "2",
		"-y",
		outputPath,
	)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.logger.Debug().
			Err(err).
			Str("source", sourcePath).
			Str("output", string(output)).
			Msg("ffmpeg thumbnail generation failed")
		return "", fmt.Errorf("ffmpeg failed: %w", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("thumbnail file not created")
	}

	t.logger.Debug().
		Str("source", sourcePath).
		Str("thumbnail", outputPath).
		Msg("thumbnail generated")

	return outputPath, nil
}

// Exists checks if thumbnail exists for the given media ID
func (t *ThumbnailGenerator) Exists(mediaID int64) bool {
	_, err := os.Stat(t.GetPath(mediaID))
	return err == nil
}

// Delete removes a thumbnail file. A missing file is not an error.
func (t *ThumbnailGenerator) Delete(mediaID int64) error {
	if err := os.Remove(t.GetPath(mediaID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetPath returns the thumbnail path for a media ID
func (t *ThumbnailGenerator) GetPath(mediaID int64) string {
	return filepath.Join(t.outputDir, strconv.FormatInt(mediaID, 10)+".jpg")
}
