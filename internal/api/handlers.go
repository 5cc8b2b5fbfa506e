package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"galleryclean/internal/catalog"
	"galleryclean/internal/cleanup"
	"galleryclean/internal/deletion"
	"galleryclean/internal/media"
	"galleryclean/internal/review"
	"galleryclean/internal/storage"
	"galleryclean/internal/streaming"
)

const Version = "0.1.0"

// Library is the read side of the media catalog.
type Library interface {
	Get(id int64) (storage.MediaItem, bool)
	Albums() []catalog.Album
	Snapshot() catalog.Snapshot
}

// Session is the review workflow the cleanup routes drive.
type Session interface {
	State() review.SessionState
	Scan(ctx context.Context, category cleanup.Category) error
	ScanAll(ctx context.Context) error
	ToggleSelection(category cleanup.Category, groupID string, selected bool) error
	SelectAll(category cleanup.Category)
	ClearAll(category cleanup.Category)
	DeleteSelected(ctx context.Context, category cleanup.Category, host deletion.Host) (deletion.Outcome, error)
}

type Indexer interface {
	RunOnce(ctx context.Context) (*media.ScanStats, error)
	IsScanning() bool
}

type Thumbnails interface {
	GetThumbnail(ctx context.Context, mediaID int64) ([]byte, error)
}

// Authorizer settles host-mediated deletions.
type Authorizer interface {
	Tier() deletion.Tier
	HandleAuthorizationResult(ctx context.Context, authID string, result deletion.Result) (deletion.Outcome, error)
}

type Handler struct {
	library     Library
	session     Session
	logger      zerolog.Logger
	libraryName string

	indexer    Indexer
	thumbnails Thumbnails
	streamer   *streaming.Handler
	authorizer Authorizer
	host       *PromptHost
}

func NewHandler(library Library, session Session, logger zerolog.Logger, libraryName string) *Handler {
	return &Handler{
		library:     library,
		session:     session,
		logger:      logger,
		libraryName: libraryName,
	}
}

func (h *Handler) SetIndexer(indexer Indexer) {
	h.indexer = indexer
}

func (h *Handler) SetThumbnailService(service Thumbnails) {
	h.thumbnails = service
}

func (h *Handler) SetStreamer(streamer *streaming.Handler) {
	h.streamer = streamer
}

// SetAuthorizer enables the authorization routes. host receives the prompts
// that host-mediated deletions raise.
func (h *Handler) SetAuthorizer(authorizer Authorizer, host *PromptHost) {
	h.authorizer = authorizer
	h.host = host
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.library.Snapshot()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Library: h.libraryName,
		Items:   len(snap.Items),
		Loaded:  snap.Loaded,
	})
}

func (h *Handler) ScanLibrary(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Scanner not initialized")
		return
	}

	if h.indexer.IsScanning() {
		writeJSON(w, http.StatusOK, ScanResponse{
			Status:  "in_progress",
			Message: "Scan already in progress",
		})
		return
	}

	go func() {
		stats, err := h.indexer.RunOnce(context.Background())
		if err != nil {
			h.logger.Error().Err(err).Msg("scan failed")
			return
		}
		h.logger.Info().Int("indexed", stats.Indexed).Int("pruned", stats.Pruned).Msg("library scan completed")
	}()

	writeJSON(w, http.StatusAccepted, ScanResponse{
		Status:  "started",
		Message: "Library scan started",
	})
}

func (h *Handler) mediaFromRequest(w http.ResponseWriter, r *http.Request) (storage.MediaItem, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid media id")
		return storage.MediaItem{}, false
	}

	item, ok := h.library.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "MEDIA_NOT_FOUND", "Media not found")
		return storage.MediaItem{}, false
	}
	return item, true
}

func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	item, ok := h.mediaFromRequest(w, r)
	if !ok {
		return
	}

	base := fmt.Sprintf("/api/v1/media/%d", item.ID)
	writeJSON(w, http.StatusOK, MediaResponse{
		Media:        item,
		ContentURL:   base + "/content",
		ThumbnailURL: base + "/thumbnail",
	})
}

func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	if h.streamer == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Content serving not available")
		return
	}

	item, ok := h.mediaFromRequest(w, r)
	if !ok {
		return
	}
	h.streamer.ServeLocator(w, r, item.Locator)
}

func (h *Handler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.thumbnails == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Thumbnail service not available")
		return
	}

	item, ok := h.mediaFromRequest(w, r)
	if !ok {
		return
	}

	data, err := h.thumbnails.GetThumbnail(r.Context(), item.ID)
	if err != nil || data == nil {
		h.logger.Warn().Err(err).Int64("id", item.ID).Msg("failed to get thumbnail")
		writeError(w, http.StatusNotFound, "THUMBNAIL_NOT_FOUND", "Thumbnail not available")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) GetAlbums(w http.ResponseWriter, r *http.Request) {
	albums := h.library.Albums()
	if albums == nil {
		albums = []catalog.Album{}
	}
	writeJSON(w, http.StatusOK, AlbumsResponse{
		Name:   h.libraryName,
		Albums: albums,
	})
}

// Cleanup review

func (h *Handler) GetCleanup(w http.ResponseWriter, r *http.Request) {
	state := h.session.State()

	resp := CleanupResponse{
		Categories:       state.Categories,
		ReclaimableBytes: state.ReclaimableBytes,
		ReclaimableHuman: humanize.Bytes(uint64(state.ReclaimableBytes)),
	}
	if h.authorizer != nil {
		resp.Tier = h.authorizer.Tier()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ScanAll(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.session.ScanAll(context.Background()); err != nil {
			h.logger.Warn().Err(err).Msg("cleanup scan finished with errors")
		}
	}()

	writeJSON(w, http.StatusAccepted, ScanResponse{
		Status:  "started",
		Message: "Cleanup scan started",
	})
}

func (h *Handler) categoryFromRequest(w http.ResponseWriter, r *http.Request) (cleanup.Category, bool) {
	category, err := cleanup.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_CATEGORY", err.Error())
		return 0, false
	}
	return category, true
}

func (h *Handler) ScanCategory(w http.ResponseWriter, r *http.Request) {
	category, ok := h.categoryFromRequest(w, r)
	if !ok {
		return
	}

	go func() {
		// Failures land in the category state.
		_ = h.session.Scan(context.Background(), category)
	}()

	writeJSON(w, http.StatusAccepted, ScanResponse{
		Status:  "started",
		Message: category.String() + " scan started",
	})
}

func (h *Handler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	category, ok := h.categoryFromRequest(w, r)
	if !ok {
		return
	}

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	if err := h.session.ToggleSelection(category, chi.URLParam(r, "group"), req.Selected); err != nil {
		writeError(w, http.StatusNotFound, "GROUP_NOT_FOUND", "Cleanup group not found")
		return
	}

	writeJSON(w, http.StatusOK, h.session.State().Category(category))
}

func (h *Handler) SelectAll(w http.ResponseWriter, r *http.Request) {
	category, ok := h.categoryFromRequest(w, r)
	if !ok {
		return
	}
	h.session.SelectAll(category)
	writeJSON(w, http.StatusOK, h.session.State().Category(category))
}

func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	category, ok := h.categoryFromRequest(w, r)
	if !ok {
		return
	}
	h.session.ClearAll(category)
	writeJSON(w, http.StatusOK, h.session.State().Category(category))
}

func (h *Handler) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	category, ok := h.categoryFromRequest(w, r)
	if !ok {
		return
	}

	var host deletion.Host
	if h.host != nil {
		host = h.host
	}

	out, err := h.session.DeleteSelected(r.Context(), category, host)
	switch {
	case errors.Is(err, review.ErrNothingSelected):
		writeError(w, http.StatusBadRequest, "NOTHING_SELECTED", "No groups selected")
		return
	case errors.Is(err, review.ErrDeletionInFlight):
		writeError(w, http.StatusConflict, "DELETION_IN_PROGRESS", "A deletion is already running for this category")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("category", category.String()).Msg("delete request rejected")
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err.Error())
		return
	}

	status := http.StatusOK
	if out.Status == deletion.StatusAwaitingConfirmation {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

// Host authorization prompts

func (h *Handler) ListAuthorizations(w http.ResponseWriter, r *http.Request) {
	if h.host == nil {
		writeJSON(w, http.StatusOK, AuthorizationsResponse{Authorizations: []*storage.Authorization{}})
		return
	}
	writeJSON(w, http.StatusOK, AuthorizationsResponse{Authorizations: h.host.List()})
}

func (h *Handler) ResolveAuthorization(w http.ResponseWriter, r *http.Request) {
	if h.authorizer == nil || h.host == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Host confirmation not enabled")
		return
	}

	var req AuthorizationResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	result, err := deletion.ParseResult(req.Result)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := h.host.Take(id); !ok {
		writeError(w, http.StatusNotFound, "AUTHORIZATION_NOT_FOUND", "Authorization not found")
		return
	}

	out, err := h.authorizer.HandleAuthorizationResult(r.Context(), id, result)
	if errors.Is(err, deletion.ErrUnknownAuthorization) {
		writeError(w, http.StatusNotFound, "AUTHORIZATION_NOT_FOUND", "Authorization not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("authorization", id).Msg("failed to resolve authorization")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve authorization")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Post("/library/scan", h.ScanLibrary)
	r.Get("/albums", h.GetAlbums)

	r.Get("/media/{id}", h.GetMedia)
	r.Get("/media/{id}/content", h.GetContent)
	r.Get("/media/{id}/thumbnail", h.GetThumbnail)

	r.Route("/cleanup", func(r chi.Router) {
		r.Get("/", h.GetCleanup)
		r.Post("/scan", h.ScanAll)
		r.Post("/{category}/scan", h.ScanCategory)
		r.Put("/{category}/selection/{group}", h.ToggleSelection)
		r.Post("/{category}/selection", h.SelectAll)
		r.Delete("/{category}/selection", h.ClearAll)
		r.Post("/{category}/delete", h.DeleteSelected)
	})

	r.Get("/authorizations", h.ListAuthorizations)
	r.Post("/authorizations/{id}", h.ResolveAuthorization)
}
