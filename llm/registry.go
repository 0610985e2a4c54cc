package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/personaflow/types"
)

// Registry is a thread-safe registry mapping provider identifiers to their
// chat adapters. Image adapters live in a parallel table keyed the same way.
type Registry struct {
	providers map[types.ModelProvider]Provider
	images    map[types.ModelProvider]ImageProvider
	mu        sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[types.ModelProvider]Provider),
		images:    make(map[types.ModelProvider]ImageProvider),
	}
}

// Register adds a chat provider under the given identifier.
// If one is already registered under the identifier, it is replaced.
func (r *Registry) Register(id types.ModelProvider, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
}

// RegisterImage adds an image provider under the given identifier.
func (r *Registry) RegisterImage(id types.ModelProvider, p ImageProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[id] = p
}

// Get retrieves a chat provider, failing fast for unknown identifiers
// so dispatch never silently proceeds against an unsupported backend.
func (r *Registry) Get(id types.ModelProvider) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, types.NewError(types.ErrMissingAdapter,
			fmt.Sprintf("provider %q not registered", id))
	}
	return p, nil
}

// GetImage retrieves an image provider.
func (r *Registry) GetImage(id types.ModelProvider) (ImageProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.images[id]
	if !ok {
		return nil, types.NewError(types.ErrMissingAdapter,
			fmt.Sprintf("image provider %q not registered", id))
	}
	return p, nil
}

// List returns the sorted identifiers of all registered chat providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for id := range r.providers {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered chat providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
