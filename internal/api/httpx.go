package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"hookwatch/internal/store"
)

const maxWebhookBodyBytes int64 = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, errCode, message string, details interface{}, retryable bool) {
	writeJSON(w, code, map[string]interface{}{
		"error": map[string]interface{}{
			"code":      errCode,
			"message":   message,
			"details":   details,
			"retryable": retryable,
		},
	})
}

// handleStoreErr maps repository errors to responses. Storage failures are
// logged and answered with a fixed message.
func (s *Server) handleStoreErr(w http.ResponseWriter, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", nil, false)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "event not found", nil, false)
	default:
		s.logger.Error(err, "storage request failed", kv...)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "storage unavailable", nil, true)
	}
}

func readBodyLimited(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return io.ReadAll(r.Body)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
}
