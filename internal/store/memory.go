package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It is the default backend when no
// database or Redis URL is configured, and the substrate the test suites
// run on. Change handlers are invoked synchronously, after the write has
// been applied and the lock released.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	subs   map[string]map[int]func(Change)
	nextID int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		subs:   make(map[string]map[int]func(Change)),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	old := m.values[key]
	m.values[key] = value
	handlers := m.handlersLocked(key)
	m.mu.Unlock()

	dispatch(handlers, Change{Key: key, Old: old, New: value})
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	old, existed := m.values[key]
	delete(m.values, key)
	handlers := m.handlersLocked(key)
	m.mu.Unlock()

	if existed {
		dispatch(handlers, Change{Key: key, Old: old, Removed: true})
	}
	return nil
}

func (m *MemoryStore) Subscribe(key string, handler func(Change)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs[key] == nil {
		m.subs[key] = make(map[int]func(Change))
	}
	id := m.nextID
	m.nextID++
	m.subs[key][id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[key], id)
	}
}

func (m *MemoryStore) Close() error {
	return nil
}

// handlersLocked snapshots the handlers for key so they can be invoked
// without holding the store lock.
func (m *MemoryStore) handlersLocked(key string) []func(Change) {
	handlers := make([]func(Change), 0, len(m.subs[key]))
	for _, h := range m.subs[key] {
		handlers = append(handlers, h)
	}
	return handlers
}

func dispatch(handlers []func(Change), change Change) {
	for _, h := range handlers {
		h(change)
	}
}
