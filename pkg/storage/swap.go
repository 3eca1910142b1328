package storage

import (
	"context"
	"sync"
)

// Swappable is an Adapter that forwards to an inner Adapter which can be
// replaced at runtime. pkg/core uses it so document.Manager, blobstore.Store,
// and peer.Manager can all be constructed once against a Swappable and keep
// working unmodified after the vault owner turns on (or rotates) at-rest
// encryption, which swaps the inner Adapter from a plain BoltAdapter to an
// encstorage.Wrapper around the same BoltAdapter.
type Swappable struct {
	mu   sync.RWMutex
	next Adapter
}

// NewSwappable wraps an initial Adapter.
func NewSwappable(initial Adapter) *Swappable {
	return &Swappable{next: initial}
}

// Swap replaces the inner Adapter. Callers must ensure no write is racing
// against the swap in a way that would be lost; pkg/core.Vault.CreateVaultKey
// and ImportVaultKey hold the vault's own lock across re-encryption and swap.
func (s *Swappable) Swap(next Adapter) {
	s.mu.Lock()
	s.next = next
	s.mu.Unlock()
}

// Current returns the adapter currently being forwarded to, e.g. so a caller
// can re-encrypt through it directly before swapping in a wrapper around it.
func (s *Swappable) Current() Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

func (s *Swappable) inner() Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

func (s *Swappable) Read(ctx context.Context, key string) ([]byte, error) {
	return s.inner().Read(ctx, key)
}

func (s *Swappable) Write(ctx context.Context, key string, value []byte) error {
	return s.inner().Write(ctx, key, value)
}

func (s *Swappable) Delete(ctx context.Context, key string) error {
	return s.inner().Delete(ctx, key)
}

func (s *Swappable) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner().List(ctx, prefix)
}

func (s *Swappable) Exists(ctx context.Context, key string) (bool, error) {
	return s.inner().Exists(ctx, key)
}

func (s *Swappable) Close() error {
	return s.inner().Close()
}
