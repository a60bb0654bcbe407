package api

import (
	"net/http"

	"github.com/onnwee/galeria/internal/middleware"
)

// RouterConfig holds the handlers and per-route middleware of the API.
type RouterConfig struct {
	Photos *PhotoHandlers
	Views  *ViewHandlers
	Health *HealthHandlers
	Auth   middleware.Authenticator
	// UploadLimiter wraps POST /photos. Nil disables upload rate limiting.
	UploadLimiter func(http.Handler) http.Handler
	// UploadIdempotency wraps POST /photos outside the limiter so replays
	// are not counted. Nil disables Idempotency-Key handling.
	UploadIdempotency func(http.Handler) http.Handler
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Blobs serves stored files under /blobs/ when set (in-memory blob store).
	Blobs http.Handler
}

// NewRouter registers every API route on a new mux.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()
	requireAuth := middleware.RequireAuth(cfg.Auth)
	optionalAuth := middleware.OptionalAuth(cfg.Auth)
	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	var uploadHandler http.Handler = http.HandlerFunc(cfg.Photos.Upload)
	if cfg.UploadLimiter != nil {
		// Inside auth so the limiter keys by user.
		uploadHandler = cfg.UploadLimiter(uploadHandler)
	}
	if cfg.UploadIdempotency != nil {
		uploadHandler = cfg.UploadIdempotency(uploadHandler)
	}

	mux.Handle("POST /photos", requireAuth(uploadHandler))
	mux.Handle("GET /photos", authed(cfg.Photos.List))
	mux.Handle("GET /photos/{id}", optionalAuth(http.HandlerFunc(cfg.Photos.Get)))
	mux.Handle("DELETE /photos/{id}", authed(cfg.Photos.Delete))
	mux.Handle("PATCH /photos/{id}/visibility", authed(cfg.Photos.SetVisibility))

	mux.Handle("GET /folders", authed(cfg.Views.Folders))
	mux.Handle("GET /albums", authed(cfg.Views.Albums))
	mux.Handle("GET /map", authed(cfg.Views.Map))
	mux.HandleFunc("GET /gallery", cfg.Views.Gallery)
	mux.HandleFunc("GET /catalog", cfg.Views.Catalog)

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	if cfg.Blobs != nil {
		mux.Handle("GET /blobs/", cfg.Blobs)
	}
	return mux
}
