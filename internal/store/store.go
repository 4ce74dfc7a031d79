package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"hookwatch/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Query selects the most recent events. A zero Since returns the newest
// events regardless of age.
type Query struct {
	Limit int
	Since time.Time
}

func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if !q.Since.IsZero() {
		q.Since = q.Since.UTC()
	}
	return q
}

// Repository stores events keyed by request_id. Save reports false when an
// event with the same request_id already exists.
type Repository interface {
	Save(ctx context.Context, ev model.Event) (bool, error)
	Query(ctx context.Context, q Query) ([]model.Event, error)
	Get(ctx context.Context, requestID string) (model.Event, error)
	Ping(ctx context.Context) error
}

type MemoryRepository struct {
	mu     sync.RWMutex
	events map[string]model.Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[string]model.Event),
	}
}

func (m *MemoryRepository) Save(ctx context.Context, ev model.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	ev, err := prepareEvent(ev)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.RequestID]; ok {
		return false, nil
	}
	m.events[ev.RequestID] = ev
	return true, nil
}

func (m *MemoryRepository) Query(ctx context.Context, q Query) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	q = q.normalized()

	m.mu.RLock()
	items := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		if !q.Since.IsZero() && !e.Timestamp.After(q.Since) {
			continue
		}
		items = append(items, e)
	}
	m.mu.RUnlock()

	sortNewestFirst(items)
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items, nil
}

func (m *MemoryRepository) Get(_ context.Context, requestID string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[strings.TrimSpace(requestID)]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// prepareEvent validates ev and fills in the storage id.
func prepareEvent(ev model.Event) (model.Event, error) {
	ev.RequestID = strings.TrimSpace(ev.RequestID)
	if ev.RequestID == "" || !ev.Action.Valid() || ev.Timestamp.IsZero() {
		return model.Event{}, ErrInvalidInput
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}

func sortNewestFirst(items []model.Event) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].RequestID > items[j].RequestID
		}
		return items[i].Timestamp.After(items[j].Timestamp)
	})
}
