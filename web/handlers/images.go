package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/world"
)

// ImageHandlers serves generated article images.
type ImageHandlers struct {
	registry *world.Registry
	log      *logger.Logger
}

// NewImageHandlers creates image handlers.
func NewImageHandlers(registry *world.Registry, log *logger.Logger) *ImageHandlers {
	return &ImageHandlers{registry: registry, log: log}
}

// GetImage handles GET /api/worlds/{world}/images/{file}. Only plain file
// names inside the world's images directory are served.
func (h *ImageHandlers) GetImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		respondError(w, http.StatusBadRequest, "invalid image name", nil)
		return
	}
	wh, err := h.registry.Open(r.Context(), r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "failed to open world", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	http.ServeFile(w, r, filepath.Join(wh.ImagesDir, name))
}
