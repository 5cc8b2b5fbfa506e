package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryclean/internal/api"
	"galleryclean/internal/catalog"
	"galleryclean/internal/cleanup"
	"galleryclean/internal/config"
	"galleryclean/internal/deletion"
	"galleryclean/internal/metrics"
	"galleryclean/internal/review"
	"galleryclean/internal/storage"
)

type emptySource struct{}

func (emptySource) ListMedia(ctx context.Context) ([]storage.MediaItem, error) {
	return nil, nil
}

type noopDetector struct{}

func (noopDetector) Detect(ctx context.Context, c cleanup.Category, p cleanup.Params) ([]cleanup.Group, error) {
	return nil, nil
}

type noopDeleter struct{}

func (noopDeleter) Delete(ctx context.Context, ids []int64, host deletion.Host) deletion.Outcome {
	return deletion.Outcome{Status: deletion.StatusCancelled}
}

func newTestServer(t *testing.T, gatherer prometheus.Gatherer, m *metrics.Metrics) *Server {
	return newLoggedTestServer(t, gatherer, m, zerolog.Nop())
}

func newLoggedTestServer(t *testing.T, gatherer prometheus.Gatherer, m *metrics.Metrics, logger zerolog.Logger) *Server {
	t.Helper()
	cat := catalog.New(emptySource{}, zerolog.Nop(), m)
	require.NoError(t, cat.Load(context.Background()))

	ctrl := review.NewController(noopDetector{}, noopDeleter{}, nil, nil, review.Options{Metrics: m}, zerolog.Nop())
	t.Cleanup(ctrl.Close)

	h := api.NewHandler(cat, ctrl, zerolog.Nop(), "Test")
	return New(config.Default(), logger, h, gatherer)
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cleanup", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reclaimable_human":"0 B"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics disabled")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/cleanup", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.InitPrometheusMetrics("galleryclean", reg)
	srv := newTestServer(t, reg, m)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "galleryclean_catalog_items")
}

func TestLoggingMiddleware_TagsRoute(t *testing.T) {
	var buf bytes.Buffer
	srv := newLoggedTestServer(t, nil, nil, zerolog.New(&buf))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/duplicates/delete", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "request", entry["message"])
	assert.Equal(t, "/api/v1/cleanup/{category}/delete", entry["route"])
	assert.Equal(t, "duplicates", entry["category"])
	assert.Equal(t, float64(http.StatusBadRequest), entry["status"])
	assert.Equal(t, "info", entry["level"])
}
