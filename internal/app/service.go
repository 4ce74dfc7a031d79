package app

import (
	"context"
	"strings"
	"time"

	"hookwatch/internal/ingest"
	"hookwatch/internal/model"
	"hookwatch/internal/store"
)

// Ingester accepts raw webhook deliveries.
type Ingester interface {
	Ingest(ctx context.Context, d ingest.Delivery) ingest.Result
}

type Service struct {
	repo     store.Repository
	ingester Ingester
}

func NewService(repo store.Repository, ingester Ingester) *Service {
	return &Service{
		repo:     repo,
		ingester: ingester,
	}
}

func (s *Service) Ingest(ctx context.Context, d ingest.Delivery) ingest.Result {
	return s.ingester.Ingest(ctx, d)
}

// Events returns the newest events, optionally only those strictly after
// since. A non-positive limit selects the store default.
func (s *Service) Events(ctx context.Context, since *time.Time, limit int) ([]model.Event, error) {
	q := store.Query{Limit: limit}
	if since != nil {
		q.Since = since.UTC()
	}
	return s.repo.Query(ctx, q)
}

func (s *Service) Event(ctx context.Context, requestID string) (model.Event, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return model.Event{}, store.ErrInvalidInput
	}
	return s.repo.Get(ctx, requestID)
}

func (s *Service) StorageStatus(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
