package handlers

import (
	"net/http"

	"github.com/scrypster/lorewiki/internal/backup"
	"github.com/scrypster/lorewiki/internal/logger"
)

// BackupHandlers contains HTTP handlers for world backups.
type BackupHandlers struct {
	backups *backup.Service
	log     *logger.Logger
}

// NewBackupHandlers creates backup handlers.
func NewBackupHandlers(backups *backup.Service, log *logger.Logger) *BackupHandlers {
	return &BackupHandlers{backups: backups, log: log}
}

// PostBackup handles POST /api/worlds/{world}/backups.
func (h *BackupHandlers) PostBackup(w http.ResponseWriter, r *http.Request) {
	res, err := h.backups.BackupWorld(r.Context(), r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "backup failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// ListBackups handles GET /api/worlds/{world}/backups.
func (h *BackupHandlers) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List(r.PathValue("world"))
	if err != nil {
		respondDomainError(w, h.log, "failed to list backups", err)
		return
	}
	if backups == nil {
		backups = []backup.Info{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"backups": backups})
}
