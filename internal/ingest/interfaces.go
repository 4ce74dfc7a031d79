package ingest

import (
	"context"

	"hookwatch/internal/model"
	"hookwatch/internal/payload"
)

// WebhookAdapter authenticates and normalizes deliveries for one provider.
type WebhookAdapter interface {
	Provider() string
	Authorize(body []byte, signature string) bool
	Normalize(eventType string, doc payload.Document) (*model.Event, error)
}

// Sink persists normalized events. Save reports false for a duplicate
// request_id.
type Sink interface {
	Save(ctx context.Context, ev model.Event) (bool, error)
}

// Recorder observes delivery outcomes, usually for metrics.
type Recorder interface {
	ObserveDelivery(eventType, outcome string)
}
