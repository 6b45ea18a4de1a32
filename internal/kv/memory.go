package kv

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrWriteRejected is returned by Memory writes while FailWrites is set.
var ErrWriteRejected = errors.New("kv: write rejected")

// Memory is an in-process Store. Contents are lost on exit.
type Memory struct {
	mu         sync.RWMutex
	data       map[string]string
	failWrites bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// FailWrites makes subsequent Set and Remove calls fail, simulating a full
// or read-only disk.
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errors.Wrapf(ErrWriteRejected, "set %q", key)
	}
	m.data[key] = value
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errors.Wrapf(ErrWriteRejected, "remove %q", key)
	}
	delete(m.data, key)
	return nil
}
