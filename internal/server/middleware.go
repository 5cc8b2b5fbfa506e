package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// quietRoutes are polled often and logged at debug level.
var quietRoutes = map[string]bool{
	"/metrics":                     true,
	"/api/v1/health":               true,
	"/api/v1/cleanup/":             true,
	"/api/v1/authorizations":       true,
	"/api/v1/media/{id}/thumbnail": true,
}

// LoggingMiddleware logs one line per request, tagged with the matched route
// and the cleanup category or authorization it addressed.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := r.URL.Path
			rctx := chi.RouteContext(r.Context())
			if rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			} else if quietRoutes[route] && status < http.StatusBadRequest {
				event = logger.Debug()
			}

			event.
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path)
			if rctx != nil {
				if category := rctx.URLParam("category"); category != "" {
					event.Str("category", category)
				}
				if strings.HasPrefix(route, "/api/v1/authorizations/") {
					event.Str("authorization", rctx.URLParam("id"))
				}
			}
			event.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
		w.Header().Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
