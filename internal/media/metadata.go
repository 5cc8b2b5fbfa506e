package media

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// VideoMetadata is what ffprobe tells us about a video file.
type VideoMetadata struct {
	DurationMs int64
	CapturedAt *time.Time // from the container creation_time tag
	Width      int
	Height     int
}

type MetadataExtractor struct {
	ffprobePath string
	logger      zerolog.Logger
}

func NewMetadataExtractor(logger zerolog.Logger) *MetadataExtractor {
	ffprobePath := "ffprobe"
	if path, err := exec.LookPath("ffprobe"); err == nil {
		ffprobePath = path
	}

	return &MetadataExtractor{
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

func (m *MetadataExtractor) IsAvailable() bool {
	_, err := exec.LookPath(m.ffprobePath)
	return err == nil
}

func (m *MetadataExtractor) Extract(ctx context.Context, filePath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, m.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		m.logger.Debug().Err(err).Str("file", filePath).Msg("ffprobe failed")
		return nil, err
	}

	return parseProbeOutput(output)
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	Duration string            `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

func parseProbeOutput(output []byte) (*VideoMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, err
	}

	meta := &VideoMetadata{}

	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.DurationMs = int64(math.Round(dur * 1000))
		}
	}

	if raw := probe.Format.Tags["creation_time"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil && t.Unix() > 0 {
			meta.CapturedAt = &t
		}
	}

	for _, stream := range probe.Streams {
		if stream.CodecType == "video" {
			meta.Width = stream.Width
			meta.Height = stream.Height
			break
		}
	}

	return meta, nil
}
