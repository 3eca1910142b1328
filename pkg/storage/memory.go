package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// MemAdapter is an in-memory Adapter used by tests and by
// pkg/testsupport's in-process vault pairs.
type MemAdapter struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemAdapter creates an empty in-memory adapter.
func NewMemAdapter() *MemAdapter {
	return &MemAdapter{data: make(map[string][]byte)}
}

func (m *MemAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeStorageNotFound, key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemAdapter) Write(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *MemAdapter) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemAdapter) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemAdapter) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MemAdapter) Close() error { return nil }
