package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/galeria/internal/classify"
	"github.com/onnwee/galeria/internal/geo"
	"github.com/onnwee/galeria/internal/middleware"
	"github.com/onnwee/galeria/internal/photo"
	"github.com/onnwee/galeria/internal/upload"
)

// multipartOverhead is allowed on top of the file size limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

// PhotoHandlers serves the owner-side photo endpoints.
type PhotoHandlers struct {
	committer *upload.Committer
	manager   *upload.Manager
	views     *classify.Service
	maxBytes  int64
}

// NewPhotoHandlers creates a new PhotoHandlers instance. maxSizeMB must match
// the committer's limit so oversized bodies are cut off while streaming.
func NewPhotoHandlers(committer *upload.Committer, manager *upload.Manager, views *classify.Service, maxSizeMB int) *PhotoHandlers {
	if maxSizeMB <= 0 {
		maxSizeMB = upload.DefaultMaxSizeMB
	}
	return &PhotoHandlers{
		committer: committer,
		manager:   manager,
		views:     views,
		maxBytes:  int64(maxSizeMB) << 20,
	}
}

// UploadResponse is returned by POST /photos.
type UploadResponse struct {
	*upload.Receipt
	// Warnings lists non-fatal problems, such as a description that could not
	// be saved.
	Warnings []string `json:"warnings,omitempty"`
}

// VisibilityRequest is the body of PATCH /photos/{id}/visibility.
type VisibilityRequest struct {
	IsPrivate *bool `json:"is_private"`
}

// Upload handles POST /photos with a multipart form:
// file, folder, tags, is_private, description, lat, lng.
func (h *PhotoHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, r.Context(), http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "File size exceeds maximum allowed")
			return
		}
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Expected a multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read upload", "error", err)
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Failed to read file")
		return
	}

	req, err := parseUploadFields(r)
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	req.Filename = header.Filename
	req.ContentType = header.Header.Get("Content-Type")
	req.Data = data

	receipt, err := h.committer.Commit(r.Context(), middleware.GetPrincipal(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := UploadResponse{Receipt: receipt}
	if receipt.DescriptionErr != nil {
		resp.Warnings = append(resp.Warnings, "Description could not be saved")
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

// parseUploadFields reads the non-file form fields. Tags may be repeated or
// comma separated. Coordinates must be given together.
func parseUploadFields(r *http.Request) (upload.Request, error) {
	req := upload.Request{
		Folder:      strings.TrimSpace(r.FormValue("folder")),
		Description: r.FormValue("description"),
	}

	for _, v := range r.MultipartForm.Value["tags"] {
		req.Tags = append(req.Tags, photo.ParseTags(v)...)
	}

	if v := r.FormValue("is_private"); v != "" {
		private, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("is_private must be a boolean")
		}
		req.IsPrivate = private
	}

	latStr, lngStr := r.FormValue("lat"), r.FormValue("lng")
	switch {
	case latStr == "" && lngStr == "":
	case latStr == "" || lngStr == "":
		return req, fmt.Errorf("lat and lng must be provided together")
	default:
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lng, errLng := strconv.ParseFloat(lngStr, 64)
		if errLat != nil || errLng != nil {
			return req, fmt.Errorf("lat and lng must be numbers")
		}
		if err := geo.ValidateCoordinates(lat, lng); err != nil {
			return req, err
		}
		req.ManualLocation = &photo.Location{Latitude: lat, Longitude: lng}
	}
	return req, nil
}

// List handles GET /photos?type=&q= and returns the caller's files, newest first.
func (h *PhotoHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter := classify.Filter{
		MediaType: r.URL.Query().Get("type"),
		Query:     r.URL.Query().Get("q"),
	}
	switch filter.MediaType {
	case "", "all", photo.MediaImage, photo.MediaVideo, photo.MediaAudio, photo.MediaFile:
	default:
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
			"type must be one of all, image, video, audio, file")
		return
	}

	entries, err := h.views.Photos(r.Context(), middleware.GetPrincipal(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []classify.Entry{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"photos": entries})
}

// Get handles GET /photos/{id}.
func (h *PhotoHandlers) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.manager.Detail(r.Context(), middleware.GetPrincipal(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// Delete handles DELETE /photos/{id}.
func (h *PhotoHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), middleware.GetPrincipal(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetVisibility handles PATCH /photos/{id}/visibility.
func (h *PhotoHandlers) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.IsPrivate == nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "is_private is required")
		return
	}

	vis, err := h.manager.SetVisibility(r.Context(), middleware.GetPrincipal(r.Context()), r.PathValue("id"), *req.IsPrivate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, vis)
}
