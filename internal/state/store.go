// Package state provides an explicit, observable state container with pluggable persistence.
package state

import (
	"context"
	"errors"
	"sync"
)

// Persister loads and saves the value behind a Store.
type Persister[T any] interface {
	Load(ctx context.Context) (T, bool, error)
	Save(ctx context.Context, value T) error
}

// Listener receives committed values in commit order. It runs while other commits wait to be
// delivered, so it must not block.
type Listener[T any] func(value T)

// UpdateFunc derives the next value from the current one. Returning an error aborts the update.
type UpdateFunc[T any] func(current T) (T, error)

// Store guards a value of T. Updates are serialised; listeners run after the lock is released,
// in commit order. A commit overtaken by a newer one is not delivered.
type Store[T any] struct {
	mu        sync.Mutex
	value     T
	version   uint64
	loaded    bool
	persister Persister[T]
	clone     func(T) T

	notifyMu sync.Mutex
	notified uint64

	listenersMu sync.RWMutex
	listeners   map[uint64]Listener[T]
	nextID      uint64
}

// Option customises a Store.
type Option[T any] func(*Store[T])

// WithPersister attaches persistence. Without one the store is memory-only.
func WithPersister[T any](p Persister[T]) Option[T] {
	return func(s *Store[T]) {
		s.persister = p
	}
}

// WithClone sets a copy function used for snapshots handed to callers and listeners.
func WithClone[T any](clone func(T) T) Option[T] {
	return func(s *Store[T]) {
		if clone != nil {
			s.clone = clone
		}
	}
}

// New constructs a Store seeded with initial.
func New[T any](initial T, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		value:     initial,
		clone:     func(v T) T { return v },
		listeners: make(map[uint64]Listener[T]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.persister == nil {
		s.loaded = true
	}
	return s
}

// Get returns a snapshot of the current value, loading it from the persister on first use.
func (s *Store[T]) Get(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		var zero T
		return zero, err
	}
	return s.clone(s.value), nil
}

// Update applies fn, persists the result and notifies listeners. The stored value only changes
// when both fn and the persister succeed.
func (s *Store[T]) Update(ctx context.Context, fn UpdateFunc[T]) (T, error) {
	var zero T
	if fn == nil {
		return zero, errors.New("state: update function is required")
	}

	s.mu.Lock()
	if err := s.ensureLoaded(ctx); err != nil {
		s.mu.Unlock()
		return zero, err
	}
	next, err := fn(s.clone(s.value))
	if err != nil {
		s.mu.Unlock()
		return zero, err
	}
	if s.persister != nil {
		if err := s.persister.Save(ctx, next); err != nil {
			s.mu.Unlock()
			return zero, err
		}
	}
	s.value = next
	s.version++
	version := s.version
	snapshot := s.clone(next)
	s.mu.Unlock()

	s.notify(version, snapshot)
	return s.clone(snapshot), nil
}

// Subscribe registers fn for future commits and returns an unsubscribe function.
func (s *Store[T]) Subscribe(fn Listener[T]) func() {
	if fn == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// Listeners reports the number of active subscriptions.
func (s *Store[T]) Listeners() int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners)
}

func (s *Store[T]) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	value, ok, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		s.value = value
	}
	s.loaded = true
	return nil
}

// notify delivers the value committed as version. Listeners must not block or update s.
func (s *Store[T]) notify(version uint64, value T) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.notified {
		return
	}
	s.notified = version

	s.listenersMu.RLock()
	listeners := make([]Listener[T], 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(s.clone(value))
	}
}

// MemoryPersister keeps the last saved value in memory.
type MemoryPersister[T any] struct {
	mu    sync.Mutex
	value T
	saved bool
	saves int
}

// Load returns the last saved value.
func (m *MemoryPersister[T]) Load(context.Context) (T, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.saved, nil
}

// Save records value.
func (m *MemoryPersister[T]) Save(_ context.Context, value T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
	m.saved = true
	m.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (m *MemoryPersister[T]) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
