package state

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Registry keeps a bounded set of keyed stores (one per cart owner, for example).
// Subscriptions are held by the registry, so they survive a store being evicted and recreated.
type Registry[T any] struct {
	mu      sync.Mutex
	stores  *lru.Cache[string, *Store[T]]
	factory func(key string) *Store[T]

	subsMu sync.RWMutex
	subs   map[string]map[uint64]Listener[T]
	nextID uint64
}

// NewRegistry creates a registry holding at most size live stores.
func NewRegistry[T any](size int, factory func(key string) *Store[T]) (*Registry[T], error) {
	if factory == nil {
		return nil, fmt.Errorf("state: registry factory is required")
	}
	cache, err := lru.New[string, *Store[T]](size)
	if err != nil {
		return nil, fmt.Errorf("state: create registry cache: %w", err)
	}
	return &Registry[T]{
		stores:  cache,
		factory: factory,
		subs:    make(map[string]map[uint64]Listener[T]),
	}, nil
}

// Store returns the store for key, creating it on first use.
func (r *Registry[T]) Store(key string) *Store[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores.Get(key); ok {
		return store
	}
	store := r.factory(key)
	store.Subscribe(func(value T) {
		r.fanout(key, value)
	})
	r.stores.Add(key, store)
	return store
}

// Forget drops the live store for key; the next Store call reloads it from persistence.
func (r *Registry[T]) Forget(key string) {
	r.mu.Lock()
	r.stores.Remove(key)
	r.mu.Unlock()
}

// Subscribe registers fn for commits to key's store.
func (r *Registry[T]) Subscribe(key string, fn Listener[T]) func() {
	if fn == nil {
		return func() {}
	}
	r.subsMu.Lock()
	id := r.nextID
	r.nextID++
	if r.subs[key] == nil {
		r.subs[key] = make(map[uint64]Listener[T])
	}
	r.subs[key][id] = fn
	r.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subsMu.Lock()
			delete(r.subs[key], id)
			if len(r.subs[key]) == 0 {
				delete(r.subs, key)
			}
			r.subsMu.Unlock()
		})
	}
}

func (r *Registry[T]) fanout(key string, value T) {
	r.subsMu.RLock()
	listeners := make([]Listener[T], 0, len(r.subs[key]))
	for _, l := range r.subs[key] {
		listeners = append(listeners, l)
	}
	r.subsMu.RUnlock()
	for _, l := range listeners {
		l(value)
	}
}
