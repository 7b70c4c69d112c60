package pipeline

import (
	"sort"
	"sync"
)

// ResourceKey is a typed handle for a Resources entry.
type ResourceKey[T any] struct{ name string }

// NewResourceKey creates a ResourceKey with the given name.
func NewResourceKey[T any](name string) ResourceKey[T] {
	return ResourceKey[T]{name: name}
}

// Name returns the registry key.
func (k ResourceKey[T]) Name() string { return k.name }

// Resources is the pipeline-scoped registry stages use to share expensive
// objects such as loaded models or vocabularies. Entries are written during
// Initialize and Finish and read during Process; the lock only protects
// callers that use a registry outside a pipeline.
type Resources struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewResources creates an empty registry.
func NewResources() *Resources {
	return &Resources{items: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (r *Resources) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = value
}

// Get returns the value stored under key.
func (r *Resources) Get(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Resources) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete removes key.
func (r *Resources) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

// Keys returns the registered keys in sorted order.
func (r *Resources) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the typed value stored under key. The boolean is false when
// the entry is missing or holds a different type.
func Lookup[T any](r *Resources, key ResourceKey[T]) (T, bool) {
	var zero T
	v, ok := r.Get(key.name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Provide stores a typed value under key.
func Provide[T any](r *Resources, key ResourceKey[T], value T) {
	r.Set(key.name, value)
}
