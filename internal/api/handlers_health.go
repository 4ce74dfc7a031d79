package api

import (
	"context"
	"net/http"
	"time"
)

const healthProbeTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	status, storage := "ok", "connected"
	if err := s.service.StorageStatus(ctx); err != nil {
		s.logger.Error(err, "storage health check failed")
		status, storage = "degraded", "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"service":      "hookwatch",
		"storage":      storage,
		"storage_mode": s.storageMode,
		"time":         s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"poll_interval_seconds": int(s.pollInterval / time.Second),
		"events":                supportedEvents,
	})
}
