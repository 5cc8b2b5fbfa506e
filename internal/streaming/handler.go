package streaming

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"galleryclean/internal/media"
	"galleryclean/internal/storage"
)

// Resolver maps a media locator to its file on disk.
type Resolver interface {
	ResolvePath(ctx context.Context, locator string) (string, error)
}

type Handler struct {
	resolver Resolver
	logger   zerolog.Logger
}

func NewHandler(resolver Resolver, logger zerolog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// ServeLocator writes the content behind locator, honouring Range requests.
func (h *Handler) ServeLocator(w http.ResponseWriter, r *http.Request, locator string) {
	path, err := h.resolver.ResolvePath(r.Context(), locator)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidLocator) {
			http.Error(w, "Media not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("locator", locator).Msg("failed to resolve media path")
		http.Error(w, "Cannot resolve media", http.StatusInternalServerError)
		return
	}
	h.ServeFile(w, r, path)
}

func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) {
	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Cannot read file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", media.GetContentType(filePath))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filepath.Base(filePath), stat.ModTime(), file)
}
