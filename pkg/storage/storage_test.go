package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemAdapterReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemAdapter()

	_, err := m.Read(ctx, "missing")
	require.Error(t, err)

	require.NoError(t, m.Write(ctx, "blob:abc", []byte("hello")))
	v, err := m.Read(ctx, "blob:abc")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)

	ok, err := m.Exists(ctx, "blob:abc")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Delete(ctx, "blob:abc"))
	ok, err = m.Exists(ctx, "blob:abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemAdapterListPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemAdapter()

	require.NoError(t, m.Write(ctx, "blob:a", []byte("1")))
	require.NoError(t, m.Write(ctx, "blob:b", []byte("2")))
	require.NoError(t, m.Write(ctx, "peer:x", []byte("3")))

	keys, err := m.List(ctx, "blob:")
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

func TestCachingAdapterEvictsOverCapacity(t *testing.T) {
	ctx := context.Background()
	base := NewMemAdapter()
	cached := NewCachingAdapter(base, 10)

	require.NoError(t, cached.Write(ctx, "a", []byte("12345")))
	require.NoError(t, cached.Write(ctx, "b", []byte("12345")))
	require.NoError(t, cached.Write(ctx, "c", []byte("12345")))

	// "a" should have been evicted from the cache, but still readable
	// through the underlying adapter.
	v, err := cached.Read(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("12345"), v)
}

func TestCachingAdapterReturnsCopies(t *testing.T) {
	ctx := context.Background()
	base := NewMemAdapter()
	cached := NewCachingAdapter(base, 1024)

	require.NoError(t, cached.Write(ctx, "k", []byte("original")))
	v1, err := cached.Read(ctx, "k")
	require.NoError(t, err)
	v1[0] = 'X'

	v2, err := cached.Read(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), v2)
}
