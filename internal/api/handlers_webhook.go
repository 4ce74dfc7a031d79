package api

import (
	"errors"
	"net/http"

	"hookwatch/internal/ingest"

	"github.com/google/go-github/v53/github"
)

const signatureHeader = "X-Hub-Signature-256"

var supportedEvents = []string{"push", "pull_request"}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		providers := s.providers
		if providers == nil {
			providers = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":   "GitHub webhook endpoint",
			"method":    http.MethodPost,
			"events":    supportedEvents,
			"providers": providers,
			"status":    "ready",
		})
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(r, "webhook") {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil, true)
		return
	}
	body, err := readBodyLimited(w, r, maxWebhookBodyBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body is too large", nil, false)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read body", nil, false)
		return
	}

	res := s.service.Ingest(r.Context(), ingest.Delivery{
		EventType:  github.WebHookType(r),
		Signature:  r.Header.Get(signatureHeader),
		DeliveryID: github.DeliveryID(r),
		Body:       body,
	})

	switch res.Outcome {
	case ingest.OutcomeStored:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":  "Event stored successfully",
			"event_id": res.RequestID,
			"status":   res.Outcome.String(),
		})
	case ingest.OutcomeDuplicate:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":  "Event already processed",
			"event_id": res.RequestID,
			"status":   res.Outcome.String(),
		})
	case ingest.OutcomeSkipped:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Event processed, nothing to record",
			"status":  res.Outcome.String(),
			"reason":  errString(res.Err),
		})
	case ingest.OutcomeBadRequest:
		code := "INVALID_PAYLOAD"
		if errors.Is(res.Err, ingest.ErrMissingEventType) {
			code = "MISSING_EVENT_TYPE"
		}
		writeError(w, http.StatusBadRequest, code, errString(res.Err), nil, false)
	case ingest.OutcomeUnauthorized:
		writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "invalid signature", nil, false)
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to process event", map[string]interface{}{
			"event_id": res.RequestID,
		}, true)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
