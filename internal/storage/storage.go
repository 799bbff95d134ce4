// Package storage holds the durable key-value stores the tracker keeps its
// visitor identity in.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when the key has never been set
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable string key-value store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Compile-time interface checks
var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Redis)(nil)
	_ Store = (*Scoped)(nil)
)

// Memory is a process-local Store
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the stored value or ErrNotFound
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Scoped namespaces every key of an underlying store. The feed uses it to
// give each client origin its own visitor id.
type Scoped struct {
	store Store
	scope string
}

// NewScoped wraps store so keys become "<scope>:<key>"
func NewScoped(store Store, scope string) *Scoped {
	return &Scoped{store: store, scope: scope}
}

func (s *Scoped) key(key string) string {
	return s.scope + ":" + key
}

// Get reads key within the scope
func (s *Scoped) Get(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, s.key(key))
}

// Set writes key within the scope
func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.key(key), value)
}
