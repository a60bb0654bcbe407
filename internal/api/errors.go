// Package api provides the HTTP handlers of the galeria photo service and
// its standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/galeria/internal/classify"
	"github.com/onnwee/galeria/internal/middleware"
	"github.com/onnwee/galeria/internal/upload"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limit_exceeded"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeUnsupportedType indicates a rejected file format, such as HEIC.
	ErrCodeUnsupportedType = "unsupported_type"

	// ErrCodeFileTooLarge indicates the upload exceeds the size limit.
	ErrCodeFileTooLarge = "file_too_large"

	// ErrCodeStorageWriteFailed indicates the blob upload failed.
	ErrCodeStorageWriteFailed = "storage_write_failed"

	// ErrCodeRowInsertFailed indicates a metadata row could not be written.
	ErrCodeRowInsertFailed = "row_insert_failed"

	// ErrCodeFetchFailed indicates photo records could not be read.
	ErrCodeFetchFailed = "fetch_failed"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and records code on
// the request context for the logging middleware.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// Example:
//
//	api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "Photo not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeUnsupportedType:
		return http.StatusUnsupportedMediaType
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeStorageWriteFailed:
		return http.StatusBadGateway
	case ErrCodeFetchFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// classifyError maps a service error to an error code and a message that is
// safe to show to the user.
func classifyError(err error) (code, message string) {
	var stageErr *upload.StageError
	switch {
	case errors.Is(err, upload.ErrUnsupportedFormat):
		return ErrCodeUnsupportedType, userMessage(err)
	case errors.Is(err, upload.ErrFileTooLarge):
		return ErrCodeFileTooLarge, "File size exceeds maximum allowed"
	case errors.Is(err, upload.ErrEmptyFile), errors.Is(err, upload.ErrInvalidRequest):
		return ErrCodeValidation, userMessage(err)
	case errors.Is(err, upload.ErrUnauthenticated), errors.Is(err, classify.ErrUnauthenticated):
		return ErrCodeAuthFailed, "Authentication required"
	case errors.Is(err, upload.ErrNotFound):
		return ErrCodeNotFound, "Photo not found"
	case errors.Is(err, upload.ErrForbidden):
		return ErrCodeForbidden, "Photo belongs to another user"
	case errors.As(err, &stageErr):
		return stageCode(stageErr), stageMessage(stageErr)
	case errors.Is(err, classify.ErrFetchFailed):
		return ErrCodeFetchFailed, "Failed to load photos"
	default:
		return ErrCodeInternal, "Internal server error"
	}
}

func stageCode(e *upload.StageError) string {
	if errors.Is(e, upload.ErrStorageWriteFailed) {
		return ErrCodeStorageWriteFailed
	}
	return ErrCodeRowInsertFailed
}

// stageMessage names the failing stage without leaking driver errors.
func stageMessage(e *upload.StageError) string {
	msg := fmt.Sprintf("Upload failed at %s", e.Stage)
	switch {
	case e.Compensated:
		msg += "; earlier steps were undone"
	case len(e.Leftovers) > 0:
		msg += fmt.Sprintf("; cleanup incomplete (%s)", strings.Join(e.Leftovers, ", "))
	}
	return msg
}

// userMessage capitalises a validation error for display.
func userMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// writeServiceError logs unexpected failures and writes the mapped response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := classifyError(err)
	status := StatusCodeMapping(code)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error_code", code,
			"error", err)
	}
	WriteError(w, r.Context(), status, code, message)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
