package api

import (
	"net/http"

	"github.com/onnwee/galeria/internal/classify"
	"github.com/onnwee/galeria/internal/middleware"
	"github.com/onnwee/galeria/internal/photo"
)

// ViewHandlers serves the classified read views.
type ViewHandlers struct {
	views *classify.Service
}

// NewViewHandlers creates a new ViewHandlers instance.
func NewViewHandlers(views *classify.Service) *ViewHandlers {
	return &ViewHandlers{views: views}
}

// CatalogResponse lists the folders and tags accepted by POST /photos.
type CatalogResponse struct {
	Folders []string `json:"folders"`
	Tags    []string `json:"tags"`
}

// Folders handles GET /folders: the caller's photos under Private/Public and
// their folder names.
func (h *ViewHandlers) Folders(w http.ResponseWriter, r *http.Request) {
	tree, err := h.views.Folders(r.Context(), middleware.GetPrincipal(r.Context()))
	h.writeTree(w, r, tree, err)
}

// Albums handles GET /albums: the caller's images under Private/Public and
// their capture dates.
func (h *ViewHandlers) Albums(w http.ResponseWriter, r *http.Request) {
	tree, err := h.views.Albums(r.Context(), middleware.GetPrincipal(r.Context()))
	h.writeTree(w, r, tree, err)
}

// Gallery handles GET /gallery: every public photo, no authentication.
func (h *ViewHandlers) Gallery(w http.ResponseWriter, r *http.Request) {
	tree, err := h.views.Gallery(r.Context())
	h.writeTree(w, r, tree, err)
}

// Map handles GET /map: the caller's located photos with geohash cells.
func (h *ViewHandlers) Map(w http.ResponseWriter, r *http.Request) {
	points, err := h.views.Map(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if points == nil {
		points = []classify.MapPoint{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"points": points})
}

// Catalog handles GET /catalog.
func (h *ViewHandlers) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, CatalogResponse{
		Folders: photo.AllowedFolders,
		Tags:    photo.AllowedTags,
	})
}

func (h *ViewHandlers) writeTree(w http.ResponseWriter, r *http.Request, tree classify.Tree, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tree.Folders == nil {
		tree.Folders = []classify.TopFolder{}
	}
	writeJSON(w, r, http.StatusOK, tree)
}
