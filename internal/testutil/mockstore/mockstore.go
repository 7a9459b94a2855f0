// Package mockstore provides a configurable mock implementation of the grant store for testing.
//
// The MockStorage type uses function fields for each method, allowing tests to customize behavior
// as needed. When a function field is nil the mock behaves like a real store backed by memory.
package mockstore

import (
	"context"
	"sync"

	"github.com/sipico/preview-gate/internal/grant"
)

// MockStorage is a configurable mock implementation of storage.Backend.
// Each method can be customized by setting the corresponding function field.
// It is safe for concurrent use.
type MockStorage struct {
	LoadFunc  func(ctx context.Context) (grant.Set, error)
	SaveFunc  func(ctx context.Context, grants grant.Set) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error

	mu     sync.Mutex
	grants grant.Set
	loads  int
	saves  int
}

// New returns a MockStorage holding a copy of the given grants.
func New(grants ...*grant.Grant) *MockStorage {
	m := &MockStorage{grants: grant.NewSet()}
	for _, g := range grants {
		cp := *g
		m.grants[g.Token] = &cp
	}
	return m
}

// Load returns a copy of the stored set.
func (m *MockStorage) Load(ctx context.Context) (grant.Set, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	return m.Snapshot(), nil
}

// Save replaces the stored set with a copy of grants.
func (m *MockStorage) Save(ctx context.Context, grants grant.Set) error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, grants)
	}
	m.Replace(grants)
	return nil
}

// Ping checks the mock is reachable.
func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close closes the mock.
func (m *MockStorage) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Snapshot returns a deep copy of the in-memory set, bypassing LoadFunc.
func (m *MockStorage) Snapshot() grant.Set {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := grant.NewSet()
	for token, g := range m.grants {
		cp := *g
		out[token] = &cp
	}
	return out
}

// Replace overwrites the in-memory set, bypassing SaveFunc.
func (m *MockStorage) Replace(grants grant.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.grants = grant.NewSet()
	for token, g := range grants {
		cp := *g
		m.grants[token] = &cp
	}
}

// Loads returns how many times Load was called.
func (m *MockStorage) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// Saves returns how many times Save was called.
func (m *MockStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
