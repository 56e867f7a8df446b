package shard

import (
	"fmt"
	"sort"
	"sync"
)

// Router maps shard IDs to the backend serving each shard.
type Router[T any] struct {
	mu       sync.RWMutex
	backends map[ID]T
}

func NewRouter[T any]() *Router[T] {
	return &Router[T]{backends: make(map[ID]T)}
}

// Register associates a shard ID with a backend.
func (r *Router[T]) Register(id ID, backend T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[id] = backend
}

// For returns the backend for the given shard ID.
func (r *Router[T]) For(id ID) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("no backend registered for shard %d", id)
	}
	return b, nil
}

// IDs returns the registered shard IDs in ascending order.
func (r *Router[T]) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ID, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered shards.
func (r *Router[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}
