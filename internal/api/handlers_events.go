package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"hookwatch/internal/model"
	"hookwatch/internal/payload"
	"hookwatch/internal/store"
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.limiter.Allow(r, "read") {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil, true)
		return
	}

	q := r.URL.Query()
	var since *time.Time
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		if t, ok := payload.ParseTime(raw); ok {
			since = &t
		}
	}
	limit := store.DefaultLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.service.Events(r.Context(), since, limit)
	if err != nil {
		s.logger.Error(err, "failed to query events")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "failed to fetch events",
		})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.limiter.Allow(r, "read") {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil, true)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil, false)
		return
	}

	ev, err := s.service.Event(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, err, "request_id", id)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, ev)
	case "cloudevent", "cloudevents":
		if err := writeCloudEvent(w, ev); err != nil {
			s.logger.Error(err, "failed to render cloudevent", "request_id", id)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to render event", nil, false)
		}
	default:
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or cloudevent", nil, false)
	}
}

func writeCloudEvent(w http.ResponseWriter, ev model.Event) error {
	ce, err := ev.ToCloudEvent()
	if err != nil {
		return err
	}
	body, err := ce.MarshalJSON()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/cloudevents+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}
