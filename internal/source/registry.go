// Package source keeps the set of configured adapters and builds them from
// site configuration.
package source

import (
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// Registry maps source ids to adapters. It satisfies ingest.SourceSet so run
// configurations can be validated against it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ingest.SourceID]ingest.Adapter
	order    []ingest.SourceID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ingest.SourceID]ingest.Adapter)}
}

// Register adds an adapter. Ids must be unique.
func (r *Registry) Register(adapter ingest.Adapter) error {
	if adapter == nil {
		return fmt.Errorf("register source: nil adapter")
	}
	id := adapter.ID()
	if id == "" || id == ingest.MultiSource {
		return fmt.Errorf("register source: invalid id %q", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("register source %s: already registered", id)
	}
	r.adapters[id] = adapter
	r.order = append(r.order, id)
	return nil
}

// Has implements ingest.SourceSet.
func (r *Registry) Has(id ingest.SourceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[id]
	return ok
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []ingest.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Resolve returns the adapters for ids in the given order. Unknown ids yield
// an *ingest.ConfigError.
func (r *Registry) Resolve(ids []ingest.SourceID) ([]ingest.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ingest.Adapter, 0, len(ids))
	for _, id := range ids {
		adapter, ok := r.adapters[id]
		if !ok {
			return nil, &ingest.ConfigError{Field: "sources", Reason: fmt.Sprintf("unknown source %q", id)}
		}
		out = append(out, adapter)
	}
	return out, nil
}
