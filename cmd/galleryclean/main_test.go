package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryclean/internal/cleanup"
	"galleryclean/internal/deletion"
	"galleryclean/internal/storage"
)

func TestPinnedTier(t *testing.T) {
	tests := []struct {
		in   string
		want deletion.Tier
	}{
		{"", ""},
		{"auto", ""},
		{"HOST", deletion.TierHostMediated},
		{"direct", deletion.TierDirectIndex},
		{"legacy", deletion.TierLegacyFilesystem},
	}
	for _, tt := range tests {
		got, err := pinnedTier(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := pinnedTier("shred")
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	size := int64(150 * 1000 * 1000)
	groups := []cleanup.Group{{
		ID:        "large_videos:100mb:7",
		Category:  cleanup.LargeVideos,
		Items:     []storage.MediaItem{{ID: 7, Name: "trip.mp4", Size: &size}},
		Count:     1,
		TotalSize: size,
	}}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, groups))

	out := buf.String()
	assert.Contains(t, out, "large_videos:100mb:7")
	assert.Contains(t, out, "trip.mp4")
	assert.Contains(t, out, "1 groups, 150 MB reclaimable")
}
