package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryclean/internal/storage"
)

type fakeThumbnailSource struct {
	items map[int64]*storage.MediaItem
	calls int
}

func (f *fakeThumbnailSource) GetMediaItem(ctx context.Context, id int64) (*storage.MediaItem, error) {
	f.calls++
	return f.items[id], nil
}

func (f *fakeThumbnailSource) ResolvePath(ctx context.Context, locator string) (string, error) {
	return "", storage.ErrNotFound
}

func TestThumbnailService_ServesFromDiskThenCache(t *testing.T) {
	gen := NewThumbnailGenerator(t.TempDir(), zerolog.Nop())
	require.NoError(t, os.WriteFile(gen.GetPath(7), []byte("thumb"), 0644))

	source := &fakeThumbnailSource{}
	svc := NewThumbnailService(gen, source, 10, 1<<20, zerolog.Nop())

	data, err := svc.GetThumbnail(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("thumb"), data)

	require.NoError(t, os.Remove(gen.GetPath(7)))
	data, err = svc.GetThumbnail(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("thumb"), data, "second read comes from memory")

	count, size := svc.CacheStats()
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(5), size)
	assert.Zero(t, source.calls)
}

func TestThumbnailService_MissingItem(t *testing.T) {
	gen := NewThumbnailGenerator(t.TempDir(), zerolog.Nop())
	svc := NewThumbnailService(gen, &fakeThumbnailSource{}, 10, 1<<20, zerolog.Nop())

	data, err := svc.GetThumbnail(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestThumbnailGenerator_GetPath(t *testing.T) {
	dir := t.TempDir()
	gen := NewThumbnailGenerator(dir, zerolog.Nop())

	assert.Equal(t, filepath.Join(dir, "12.jpg"), gen.GetPath(12))
	assert.False(t, gen.Exists(12))
}

func TestThumbnailService_InvalidateRemovesDiskAndCache(t *testing.T) {
	gen := NewThumbnailGenerator(t.TempDir(), zerolog.Nop())
	require.NoError(t, os.WriteFile(gen.GetPath(3), []byte("thumb"), 0644))
	svc := NewThumbnailService(gen, &fakeThumbnailSource{}, 10, 1<<20, zerolog.Nop())

	_, err := svc.GetThumbnail(context.Background(), 3)
	require.NoError(t, err)

	svc.Invalidate([]int64{3, 4})

	assert.False(t, gen.Exists(3))
	count, _ := svc.CacheStats()
	assert.Zero(t, count)

	data, err := svc.GetThumbnail(context.Background(), 3)
	assert.NoError(t, err)
	assert.Nil(t, data, "deleted media has no thumbnail")
}
