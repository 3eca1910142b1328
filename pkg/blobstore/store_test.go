package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/storage"
)

func TestAddGetDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemAdapter(), 0)

	h1, err := s.Add(ctx, []byte("hello"), "text/plain")
	require.NoError(t, err)
	h2, err := s.Add(ctx, []byte("hello"), "text/plain")
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	meta, err := s.GetMeta(ctx, h1)
	require.NoError(t, err)
	require.Equal(t, 2, meta.RefCount)

	data, err := s.Get(ctx, h1)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestAddRejectsOversizeBlob(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemAdapter(), 4)

	_, err := s.Add(ctx, []byte("too big"), "text/plain")
	require.Error(t, err)
}

func TestReleaseRemovesAtZeroRefCount(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemAdapter(), 0)

	h, err := s.Add(ctx, []byte("data"), "")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, h))

	has, err := s.Has(ctx, h)
	require.NoError(t, err)
	require.False(t, has)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemAdapter(), 0)

	h, err := s.Add(ctx, []byte("present"), "")
	require.NoError(t, err)

	missing := s.GetMissing(ctx, []string{h, "deadbeef", "cafef00d"})
	require.ElementsMatch(t, []string{"deadbeef", "cafef00d"}, missing)
}

func TestCleanOrphans(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemAdapter(), 0)

	kept, err := s.Add(ctx, []byte("kept"), "")
	require.NoError(t, err)
	orphan, err := s.Add(ctx, []byte("orphaned"), "")
	require.NoError(t, err)

	referenced := map[string]struct{}{kept: {}}
	count, bytesReclaimed, err := s.CleanOrphans(ctx, referenced)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, int64(len("orphaned")), bytesReclaimed)

	has, err := s.Has(ctx, orphan)
	require.NoError(t, err)
	require.False(t, has)

	has, err = s.Has(ctx, kept)
	require.NoError(t, err)
	require.True(t, has)
}

func TestTotalSizeCachesUntilMutation(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemAdapter(), 0)

	_, err := s.Add(ctx, []byte("12345"), "")
	require.NoError(t, err)

	total, err := s.TotalSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)

	_, err = s.Add(ctx, []byte("abcdefg"), "")
	require.NoError(t, err)

	total, err = s.TotalSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(12), total)
}
