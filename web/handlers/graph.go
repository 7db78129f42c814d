package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
	"github.com/scrypster/lorewiki/pkg/types"
)

// GraphHandlers serves the knowledge graph and the timeline derived from it.
type GraphHandlers struct {
	registry *world.Registry
	log      *logger.Logger
}

// NewGraphHandlers creates graph handlers.
func NewGraphHandlers(registry *world.Registry, log *logger.Logger) *GraphHandlers {
	return &GraphHandlers{registry: registry, log: log}
}

// ExportGraph handles GET /api/worlds/{world}/graph and returns the
// node-link document.
func (h *GraphHandlers) ExportGraph(w http.ResponseWriter, r *http.Request) {
	wh, err := h.registry.Open(r.Context(), r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "failed to open world", err)
		return
	}
	data, err := wh.Graph.Export(r.Context())
	if err != nil {
		respondDomainError(w, h.log, "failed to export graph", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetTimeline handles GET /api/worlds/{world}/timeline.
//
// Without parameters every event is returned. ?year=Y limits the result to
// that year; adding ?window=N (or ?nearby=true for the default window)
// returns events within N years of Y instead.
func (h *GraphHandlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	wh, err := h.registry.Open(r.Context(), r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "failed to open world", err)
		return
	}

	q := r.URL.Query()
	var events []types.TimelineEvent
	switch {
	case q.Get("year") == "":
		events, err = wh.Timeline.AllEvents(r.Context())
	default:
		year, perr := strconv.ParseFloat(q.Get("year"), 64)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid year", perr)
			return
		}
		window, nearby, perr := parseWindow(q.Get("window"), q.Get("nearby"))
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid window", perr)
			return
		}
		if nearby {
			events, err = wh.Timeline.EventsNear(r.Context(), year, window)
		} else {
			events, err = wh.Timeline.EventsAtYear(r.Context(), year)
		}
	}
	if err != nil {
		respondDomainError(w, h.log, "failed to read timeline", err)
		return
	}
	if events == nil {
		events = []types.TimelineEvent{}
	}
	respondJSON(w, http.StatusOK, TimelineResponse{World: wh.Name, Events: events})
}

func parseWindow(window, nearby string) (float64, bool, error) {
	if window != "" {
		v, err := strconv.ParseFloat(window, 64)
		if err != nil || v <= 0 {
			return 0, false, fmt.Errorf("%w: window must be a positive number", storage.ErrInvalidInput)
		}
		return v, true, nil
	}
	if nearby == "" {
		return 0, false, nil
	}
	on, err := strconv.ParseBool(nearby)
	if err != nil {
		return 0, false, fmt.Errorf("%w: nearby must be a boolean", storage.ErrInvalidInput)
	}
	return 0, on, nil
}
