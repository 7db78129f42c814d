package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/scrypster/lorewiki/internal/backup"
	"github.com/scrypster/lorewiki/internal/engine"
	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
)

// RetryAfterSeconds is advertised when a generation provider is unavailable.
const RetryAfterSeconds = 30

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, world.ErrWorldNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrResolutionInconsistency),
		errors.Is(err, world.ErrWorldExists),
		errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, backup.ErrNoDatabase):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEmptyTitle),
		errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, world.ErrInvalidWorldName):
		return http.StatusBadRequest
	// Plan and write failures also wrap their cause; an outage wins.
	case llm.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrPlanGeneration),
		errors.Is(err, engine.ErrWriteGeneration),
		errors.Is(err, llm.ErrMalformedOutput):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondDomainError writes err with the status StatusFor assigns it.
// Server-side failures are logged.
func respondDomainError(w http.ResponseWriter, log *logger.Logger, message string, err error) {
	status := StatusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	if status >= http.StatusInternalServerError || status == http.StatusConflict {
		log.Warn(message, "status", status, "error", err)
	}
	respondError(w, status, message, err)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func skipValidation(requested *bool, def bool) bool {
	if requested == nil {
		return def
	}
	return *requested
}
