package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/core"
	"github.com/robcohen/peervault/pkg/gc"
	"github.com/robcohen/peervault/pkg/peer"
	"github.com/robcohen/peervault/pkg/syncsession"
)

// noopTransport never produces inbound connections and rejects every dial;
// it exercises Vault.Open/Start/Close without needing a real network.
type noopTransport struct{}

func (noopTransport) RegisterInvite(ctx context.Context, ticket string) error { return nil }

func (noopTransport) Dial(ctx context.Context, ticket string) (main, blob syncsession.Stream, nodeID string, err error) {
	return nil, nil, "", context.DeadlineExceeded
}

func (noopTransport) Listen(ctx context.Context) (<-chan peer.Inbound, error) {
	ch := make(chan peer.Inbound)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

func newTestVault(t *testing.T) *core.Vault {
	t.Helper()
	v, err := core.Open(context.Background(), core.Options{
		DataDir:   t.TempDir(),
		NodeID:    "node-a",
		Transport: noopTransport{},
		GC:        gc.Config{Enabled: true, MaxDocSizeMB: 50, MinHistoryDays: 7},
		Crypto:    core.CryptoOptions{Algorithm: "aes-gcm", ScryptCost: 1024},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestVaultLocalFileLifecycle(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	require.NoError(t, v.HandleFileCreate(ctx, "/notes.txt"))
	require.NoError(t, v.SetTextContent(ctx, "/notes.txt", "hello vault"))

	content, err := v.GetContent("/notes.txt")
	require.NoError(t, err)
	require.Equal(t, "hello vault", content)

	hash, err := v.PutBlob(ctx, "/photo.bin", []byte("binary data"), "application/octet-stream")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	got, err := v.GetBlob(ctx, "/photo.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("binary data"), got)

	require.NoError(t, v.HandleFileDelete(ctx, "/notes.txt"))
}

func TestVaultCreateAndUnlockKey(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	require.NoError(t, v.HandleFileCreate(ctx, "/secret.txt"))
	require.NoError(t, v.SetTextContent(ctx, "/secret.txt", "top secret"))

	require.NoError(t, v.CreateVaultKey(ctx, "correct horse battery staple"))

	phrase, err := v.ExportRecoveryPhrase()
	require.NoError(t, err)
	require.Len(t, phrase, 24)

	// A second call must fail: the vault already has a key.
	require.Error(t, v.CreateVaultKey(ctx, "another password"))

	require.NoError(t, v.Unlock(ctx, "correct horse battery staple"))

	content, err := v.GetContent("/secret.txt")
	require.NoError(t, err)
	require.Equal(t, "top secret", content)
}

func TestVaultGenerateInvite(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	require.NoError(t, v.Start(ctx))

	ticket, err := v.GenerateInvite(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ticket)

	peers, err := v.ListPeers(ctx)
	require.NoError(t, err)
	require.Empty(t, peers)
}
