package api

import (
	"galleryclean/internal/catalog"
	"galleryclean/internal/deletion"
	"galleryclean/internal/review"
	"galleryclean/internal/storage"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Library string `json:"library"`
	Items   int    `json:"items"`
	Loaded  bool   `json:"loaded"`
}

type MediaResponse struct {
	Media        storage.MediaItem `json:"media"`
	ContentURL   string            `json:"content_url"`
	ThumbnailURL string            `json:"thumbnail_url"`
}

type ScanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AlbumsResponse struct {
	Name   string          `json:"name"`
	Albums []catalog.Album `json:"albums"`
}

type CleanupResponse struct {
	Tier             deletion.Tier          `json:"tier"`
	Categories       []review.CategoryState `json:"categories"`
	ReclaimableBytes int64                  `json:"reclaimable_bytes"`
	ReclaimableHuman string                 `json:"reclaimable_human"`
}

type SelectionRequest struct {
	Selected bool `json:"selected"`
}

type AuthorizationsResponse struct {
	Authorizations []*storage.Authorization `json:"authorizations"`
}

type AuthorizationResultRequest struct {
	Result string `json:"result"` // "ok" or "cancelled"
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
