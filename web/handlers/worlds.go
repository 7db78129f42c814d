package handlers

import (
	"net/http"
	"strings"

	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/pkg/types"
)

// WorldHandlers serves world management and design.
type WorldHandlers struct {
	engine *engine.Engine
	log    *logger.Logger
}

// NewWorldHandlers creates world handlers.
func NewWorldHandlers(e *engine.Engine, log *logger.Logger) *WorldHandlers {
	return &WorldHandlers{engine: e, log: log}
}

// ListWorlds handles GET /api/worlds.
func (h *WorldHandlers) ListWorlds(w http.ResponseWriter, r *http.Request) {
	names, err := h.engine.Registry().List()
	if err != nil {
		respondDomainError(w, h.log, "failed to list worlds", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"worlds": names})
}

// CreateWorld handles POST /api/worlds. A world whose seed article fails is
// still created; the response carries the seed error with status 201.
func (h *WorldHandlers) CreateWorld(w http.ResponseWriter, r *http.Request) {
	var req CreateWorldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	res, err := h.engine.CreateWorld(r.Context(), engine.CreateWorldRequest{
		Config:           req.WorldConfig,
		SeedTitle:        req.SeedTitle,
		SeedInstructions: req.SeedInstructions,
		SkipValidation:   skipValidation(req.SkipValidation, h.engine.SkipValidationDefault()),
	})
	if res == nil {
		respondDomainError(w, h.log, "failed to create world", err)
		return
	}

	out := CreateWorldResponse{World: res.Config}
	if res.Seed != nil {
		out.Seed = toArticleResponse(res.Seed)
	}
	if err != nil {
		h.log.Warn("seed article failed", "world", res.Config.Name, "error", err)
		out.SeedError = err.Error()
	}
	respondJSON(w, http.StatusCreated, out)
}

// GetWorld handles GET /api/worlds/{world}. Worlds without a stored
// configuration report the defaults.
func (h *WorldHandlers) GetWorld(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.Registry().Config(r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "failed to load world", err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// UpdateWorld handles PUT /api/worlds/{world}.
func (h *WorldHandlers) UpdateWorld(w http.ResponseWriter, r *http.Request) {
	var cfg types.WorldConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	name := r.PathValue("world")
	if err := h.engine.Registry().UpdateConfig(name, cfg); err != nil {
		respondDomainError(w, h.log, "failed to update world", err)
		return
	}
	updated, err := h.engine.Registry().Config(name)
	if err != nil {
		respondDomainError(w, h.log, "failed to load world", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// DesignWorld handles POST /api/worlds/design.
func (h *WorldHandlers) DesignWorld(w http.ResponseWriter, r *http.Request) {
	var req DesignWorldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	design, err := h.engine.DesignWorld(r.Context(), req.Idea)
	if err != nil {
		respondDomainError(w, h.log, "failed to design world", err)
		return
	}
	respondJSON(w, http.StatusOK, design)
}
