package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/galeria/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader marks a response served from the idempotency store.
const IdempotentReplayHeader = "Idempotent-Replayed"

// Error codes written by the idempotency middleware.
const (
	ErrCodeInvalidIdempotencyKey = "invalid_idempotency_key"
	ErrCodeIdempotencyInProgress = "idempotency_key_in_progress"
	ErrCodeIdempotencyMismatch   = "idempotency_key_reused"
)

// idempotencyResponseWriter captures the status and body while writing through.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key already used by the same user. The header is optional;
// requests without it pass through. It must run inside RequireAuth.
//
// Only 2xx responses are kept. Any other outcome releases the key so the
// client can retry. A repeat that arrives while the first request is still
// running gets 409.
func Idempotency(repo idempotency.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				message := "Invalid Idempotency-Key format"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				writeError(w, r, http.StatusBadRequest, ErrCodeInvalidIdempotencyKey, message)
				return
			}

			ctx := r.Context()
			userID := GetUserID(ctx)
			scoped := idempotency.ScopedKey(userID, key)
			record := &idempotency.Record{
				Key:    key,
				UserID: userID,
				Method: r.Method,
				Route:  r.URL.Path,
				Status: idempotency.StatusProcessing,
			}

			err := repo.Reserve(ctx, scoped, record)
			switch {
			case errors.Is(err, idempotency.ErrKeyExists):
				replay(w, r, repo, scoped, record)
				return
			case err != nil:
				// Store unavailable: serve without idempotency.
				slog.ErrorContext(ctx, "failed to reserve idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				if err := repo.Release(ctx, scoped); err != nil {
					slog.ErrorContext(ctx, "failed to release idempotency key", "key", key, "error", err)
				}
				return
			}

			body := capture.body.String()
			record.Status = idempotency.StatusCompleted
			record.ResponseBody = body
			record.ResponseHash = idempotency.ComputeResponseHash(body)
			record.ResponseStatusCode = capture.statusCode
			if err := repo.Complete(ctx, scoped, record); err != nil {
				// Response already sent
				slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
				return
			}
			slog.DebugContext(ctx, "stored idempotency key", "key", key, "status", capture.statusCode)
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, repo idempotency.Repository, scoped string, current *idempotency.Record) {
	existing, err := repo.Get(r.Context(), scoped)
	if err != nil {
		// Released or expired between Reserve and Get.
		writeError(w, r, http.StatusConflict, ErrCodeIdempotencyInProgress, "A request with this Idempotency-Key is being processed, retry later")
		return
	}
	if existing.Method != current.Method || existing.Route != current.Route {
		writeError(w, r, http.StatusUnprocessableEntity, ErrCodeIdempotencyMismatch, "Idempotency-Key was already used for a different request")
		return
	}
	if existing.Status != idempotency.StatusCompleted {
		writeError(w, r, http.StatusConflict, ErrCodeIdempotencyInProgress, "A request with this Idempotency-Key is being processed, retry later")
		return
	}

	slog.InfoContext(r.Context(), "idempotency key found, returning cached response",
		"key", current.Key,
		"status", existing.ResponseStatusCode,
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(existing.ResponseStatusCode)
	_, _ = w.Write([]byte(existing.ResponseBody))
}
