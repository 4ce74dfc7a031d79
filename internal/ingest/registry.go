package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"
)

var (
	ErrUnknownProvider = errors.New("unknown webhook provider")
	ErrNoProviders     = errors.New("no webhook providers registered")
)

// Registry holds the webhook adapters known to the process, keyed by
// lower-cased provider name.
type Registry struct {
	adapters map[string]WebhookAdapter
}

func NewRegistry(adapters ...WebhookAdapter) *Registry {
	r := &Registry{adapters: make(map[string]WebhookAdapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces the adapter for its provider. Nil adapters are
// ignored.
func (r *Registry) Register(adapter WebhookAdapter) {
	if r == nil || adapter == nil {
		return
	}
	if r.adapters == nil {
		r.adapters = map[string]WebhookAdapter{}
	}
	r.adapters[providerKey(adapter.Provider())] = adapter
}

func (r *Registry) Adapter(provider string) (WebhookAdapter, error) {
	if r != nil {
		if a, ok := r.adapters[providerKey(provider)]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}

// Coordinator builds a Coordinator bound to the named provider's adapter.
func (r *Registry) Coordinator(provider string, sink Sink, logger logr.Logger) (*Coordinator, error) {
	adapter, err := r.Adapter(provider)
	if err != nil {
		return nil, err
	}
	return NewCoordinator(adapter, sink, logger.WithValues("provider", providerKey(provider))), nil
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) MustHaveProviders() error {
	if r == nil || len(r.adapters) == 0 {
		return ErrNoProviders
	}
	return nil
}
