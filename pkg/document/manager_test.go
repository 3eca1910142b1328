package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/storage"
)

func newTestManager(t *testing.T, actor string) *Manager {
	t.Helper()
	m := New(storage.NewMemAdapter(), actor)
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func TestCreateAndSetTextContentConverge(t *testing.T) {
	ctx := context.Background()
	a := newTestManager(t, "peerA")
	b := newTestManager(t, "peerB")

	require.NoError(t, a.HandleFileCreate(ctx, "notes/a.md"))
	require.NoError(t, a.SetTextContent(ctx, "notes/a.md", "Hello"))

	updates, err := a.ExportUpdates(nil)
	require.NoError(t, err)
	require.NoError(t, b.ImportUpdates(updates))

	paths := b.ListAllPaths()
	assert.Contains(t, paths, "notes")
	assert.Contains(t, paths, "notes/a.md")

	content, err := b.GetContent("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
}

func TestBinaryFileTransferMetadata(t *testing.T) {
	ctx := context.Background()
	a := newTestManager(t, "peerA")
	b := newTestManager(t, "peerB")

	require.NoError(t, a.HandleFileCreate(ctx, "img.png"))
	require.NoError(t, a.SetBlobHash(ctx, "img.png", "deadbeef"))

	updates, err := a.ExportUpdates(nil)
	require.NoError(t, err)
	require.NoError(t, b.ImportUpdates(updates))

	node, ok := b.GetNode("img.png")
	require.True(t, ok)
	assert.Equal(t, NodeBinary, node.Kind)
	assert.Equal(t, "deadbeef", node.BlobHash)
}

func TestConcurrentCreatesConverge(t *testing.T) {
	ctx := context.Background()
	a := newTestManager(t, "peerA")
	b := newTestManager(t, "peerB")

	require.NoError(t, a.HandleFileCreate(ctx, "shared/x.md"))
	require.NoError(t, b.HandleFileCreate(ctx, "shared/y.md"))

	aUpdates, err := a.ExportUpdates(nil)
	require.NoError(t, err)
	bUpdates, err := b.ExportUpdates(nil)
	require.NoError(t, err)

	require.NoError(t, b.ImportUpdates(aUpdates))
	require.NoError(t, a.ImportUpdates(bUpdates))

	wantPaths := []string{"shared", "shared/x.md", "shared/y.md"}
	for _, p := range wantPaths {
		assert.Contains(t, a.ListAllPaths(), p)
		assert.Contains(t, b.ListAllPaths(), p)
	}
}

func TestImportOrderIndependent(t *testing.T) {
	ctx := context.Background()
	a := newTestManager(t, "peerA")
	require.NoError(t, a.HandleFileCreate(ctx, "notes/one.md"))
	require.NoError(t, a.SetTextContent(ctx, "notes/one.md", "first draft, then revised"))
	require.NoError(t, a.HandleFileCreate(ctx, "notes/two.md"))

	forward, err := a.ExportUpdates(nil)
	require.NoError(t, err)

	b := newTestManager(t, "peerB")
	require.NoError(t, b.ImportUpdates(forward))

	c := newTestManager(t, "peerC")
	// Import the same bytes into c; order within a single ImportUpdates
	// call is determined by the op log's own Lamport ordering, not the
	// call order, so both replicas must converge identically.
	require.NoError(t, c.ImportUpdates(forward))

	assert.Equal(t, b.ListAllPaths(), c.ListAllPaths())
	bContent, _ := b.GetContent("notes/one.md")
	cContent, _ := c.GetContent("notes/one.md")
	assert.Equal(t, bContent, cContent)
	assert.Equal(t, "first draft, then revised", bContent)
}

func TestRenamePreservesIdentity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "peerA")
	require.NoError(t, m.HandleFileCreate(ctx, "a.md"))
	require.NoError(t, m.SetTextContent(ctx, "a.md", "content"))

	before, ok := m.GetNode("a.md")
	require.True(t, ok)

	require.NoError(t, m.HandleFileRename(ctx, "a.md", "folder/b.md"))
	assert.NotContains(t, m.ListAllPaths(), "a.md")
	assert.Contains(t, m.ListAllPaths(), "folder/b.md")

	after, ok := m.GetNode("folder/b.md")
	require.True(t, ok)
	assert.Equal(t, before.ID, after.ID)
	content, err := m.GetContent("folder/b.md")
	require.NoError(t, err)
	assert.Equal(t, "content", content)
}

func TestRenameRejectsCycle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "peerA")
	require.NoError(t, m.HandleFileCreate(ctx, "parent/child/leaf.md"))

	err := m.HandleFileRename(ctx, "parent", "parent/child/parent")
	require.Error(t, err)
	assert.Contains(t, m.ListAllPaths(), "parent")
}

func TestDeleteIsInvisibleToPathLookup(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "peerA")
	require.NoError(t, m.HandleFileCreate(ctx, "gone.md"))
	require.NoError(t, m.HandleFileDelete(ctx, "gone.md"))

	_, ok := m.GetNode("gone.md")
	assert.False(t, ok)
	assert.NotContains(t, m.ListAllPaths(), "gone.md")
}

func TestCompactPreservesLivePaths(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "peerA")
	require.NoError(t, m.HandleFileCreate(ctx, "notes/keep.md"))
	require.NoError(t, m.SetTextContent(ctx, "notes/keep.md", "keep me"))
	require.NoError(t, m.HandleFileCreate(ctx, "notes/gone.md"))
	require.NoError(t, m.HandleFileDelete(ctx, "notes/gone.md"))

	beforePaths := m.ListAllPaths()
	beforeContent, _ := m.GetContent("notes/keep.md")

	result, err := m.Compact(ctx)
	require.NoError(t, err)
	assert.Less(t, result.AfterSize, result.BeforeSize+1) // compaction never grows the log

	assert.Equal(t, beforePaths, m.ListAllPaths())
	afterContent, _ := m.GetContent("notes/keep.md")
	assert.Equal(t, beforeContent, afterContent)
}

func TestSameNameSiblingConflictSuffixed(t *testing.T) {
	ctx := context.Background()
	a := newTestManager(t, "peerA")
	b := newTestManager(t, "peerB")

	require.NoError(t, a.HandleFileCreate(ctx, "shared/note.md"))
	require.NoError(t, b.HandleFileCreate(ctx, "shared/note.md"))

	aUpdates, err := a.ExportUpdates(nil)
	require.NoError(t, err)
	require.NoError(t, b.ImportUpdates(aUpdates))

	names := b.ListAllPaths()
	var suffixed int
	for _, p := range names {
		if p == "shared/note.md (conflict)" {
			suffixed++
		}
	}
	assert.Equal(t, 1, suffixed)
	assert.Contains(t, names, "shared/note.md")
}

func TestVersionHistorySortedByLamportDesc(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "peerA")
	require.NoError(t, m.HandleFileCreate(ctx, "a.md"))
	require.NoError(t, m.HandleFileCreate(ctx, "b.md"))

	history := m.GetVersionHistory()
	require.Len(t, history, 2)
	assert.GreaterOrEqual(t, history[0].Lamport, history[1].Lamport)
}

func TestCheckoutToFrontiersFallsBackOnUnknown(t *testing.T) {
	m := newTestManager(t, "peerA")
	view := m.CheckoutToFrontiers(Frontier{{Actor: "nobody", Counter: 999}})
	assert.Empty(t, view.ListAllPaths())
}
