package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/scrypster/lorewiki/internal/importer"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/world"
)

// ImportHandlers contains HTTP handlers for the markdown import API.
type ImportHandlers struct {
	registry *world.Registry
	importer *importer.Importer
	log      *logger.Logger
}

// NewImportHandlers creates import handlers.
func NewImportHandlers(registry *world.Registry, imp *importer.Importer, log *logger.Logger) *ImportHandlers {
	return &ImportHandlers{registry: registry, importer: imp, log: log}
}

// PostImport handles POST /api/worlds/{world}/import.
// Accepts {"path": "/dir/on/server", "overwrite": false} and returns 202
// with a job ID. The import outlives the request.
func (h *ImportHandlers) PostImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required", nil)
		return
	}
	path = filepath.Clean(path)

	wh, err := h.registry.Open(r.Context(), r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "failed to open world", err)
		return
	}

	jobID, err := h.importer.Start(context.WithoutCancel(r.Context()), wh, path, importer.Options{Overwrite: req.Overwrite})
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot import directory", err)
		return
	}
	respondJSON(w, http.StatusAccepted, ImportJobResponse{
		JobID:   jobID,
		Message: "Import started. Poll /api/import/" + jobID + " for progress.",
	})
}

// GetImportStatus handles GET /api/import/{job_id}.
func (h *ImportHandlers) GetImportStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.importer.Job(r.PathValue("job_id"))
	if !ok {
		respondError(w, http.StatusNotFound, "import job not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"progress": job.Progress(),
		"result":   job.Result(),
	})
}
