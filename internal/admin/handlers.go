package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/siemagent/agent/internal/config"
)

type handlers struct {
	cfgMgr ConfigManager
	health HealthProvider
	logger *slog.Logger
}

func (h *handlers) getHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := h.health.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *handlers) getCurrentConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfgMgr.Current())
}

func (h *handlers) postUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var candidate config.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		writeError(w, http.StatusBadRequest, "malformed configuration body: "+err.Error())
		return
	}

	updated, err := h.cfgMgr.Apply(r.Context(), candidate, config.SourcePush)
	if err != nil {
		h.logger.Warn("admin: config apply rejected", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) postValidateConfig(w http.ResponseWriter, r *http.Request) {
	var candidate config.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		writeError(w, http.StatusBadRequest, "malformed configuration body: "+err.Error())
		return
	}
	result := h.cfgMgr.Validate(candidate)
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) postBackupConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.cfgMgr.Backup(r.Context()); err != nil {
		h.logger.Error("admin: config backup failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.cfgMgr.Current())
}

func (h *handlers) postRestoreConfig(w http.ResponseWriter, r *http.Request) {
	updated, err := h.cfgMgr.Restore(r.Context())
	if err != nil {
		h.logger.Error("admin: config restore failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
