// Package e2e exercises the convergence scenarios from spec §8 against the
// full stack: pkg/core.Vault wired to pkg/peer.Manager over an in-memory
// transport, rather than unit-testing pkg/document or pkg/syncsession in
// isolation.
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/test/testsupport"
)

const converge = 10 * time.Second

// Scenario 1: create and converge.
func TestCreateAndConverge(t *testing.T) {
	ctx := context.Background()
	p := testsupport.OpenPair(t, "alice", "bob")

	require.NoError(t, p.A.HandleFileCreate(ctx, "notes/a.md"))
	require.NoError(t, p.A.SetTextContent(ctx, "notes/a.md", "Hello"))

	p.Pair(t, ctx, converge)

	paths := p.B.ListAllPaths()
	assert.Contains(t, paths, "notes")
	assert.Contains(t, paths, "notes/a.md")

	content, err := p.B.GetContent("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
}

// Scenario 2: binary transfer, pulled on demand via BLOB_REQUEST.
func TestBinaryTransfer(t *testing.T) {
	ctx := context.Background()
	p := testsupport.OpenPair(t, "alice", "bob")

	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	hash, err := p.A.PutBlob(ctx, "img.png", png, "image/png")
	require.NoError(t, err)

	p.Pair(t, ctx, converge)

	got, err := p.B.GetBlob(ctx, "img.png")
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.NotEmpty(t, hash)
}

// Scenario 3: concurrent writes on both sides converge to the union.
func TestConcurrentWritesConverge(t *testing.T) {
	ctx := context.Background()
	p := testsupport.OpenPair(t, "alice", "bob")

	require.NoError(t, p.A.HandleFileCreate(ctx, "shared/x.md"))
	require.NoError(t, p.B.HandleFileCreate(ctx, "shared/y.md"))

	p.Pair(t, ctx, converge)
	time.Sleep(200 * time.Millisecond) // let the live pipe flush both directions

	for _, paths := range [][]string{p.A.ListAllPaths(), p.B.ListAllPaths()} {
		assert.Contains(t, paths, "shared")
		assert.Contains(t, paths, "shared/x.md")
		assert.Contains(t, paths, "shared/y.md")
	}
}

// Scenario 4: vault adoption. B starts with no files of its own; pairing
// with non-empty A still routes through the host-confirmed adoption event
// (this implementation always asks for confirmation rather than inferring
// "empty" from an absence of files — see DESIGN.md), and the harness's
// auto-accept approves it, after which B carries A's file tree.
func TestVaultAdoption(t *testing.T) {
	ctx := context.Background()
	p := testsupport.OpenPair(t, "alice", "bob")

	require.NoError(t, p.A.HandleFileCreate(ctx, "vault-doc.md"))
	require.NoError(t, p.A.SetTextContent(ctx, "vault-doc.md", "from the adopted vault"))

	p.Pair(t, ctx, converge)

	content, err := p.B.GetContent("vault-doc.md")
	require.NoError(t, err)
	assert.Equal(t, "from the adopted vault", content)
}
