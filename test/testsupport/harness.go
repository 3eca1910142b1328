package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/core"
	"github.com/robcohen/peervault/pkg/events"
	"github.com/robcohen/peervault/pkg/gc"
)

// Pair is two in-process vaults wired through a shared MemTransport, stood
// up the way test/framework.Cluster stands up a multi-node Warren cluster,
// shrunk to the two-peer convergence scenarios spec §8 describes.
type Pair struct {
	A, B *core.Vault

	netw *registry
}

// OpenPair builds two fresh vaults, each in its own temp data directory, on
// a shared in-memory network. Both vaults auto-accept vault-adoption
// requests, matching a host that always lets a first pairing proceed.
func OpenPair(t *testing.T, nodeA, nodeB string) *Pair {
	t.Helper()
	ctx := context.Background()
	netw := NewMemNetwork()

	gcCfg := gc.Config{Enabled: true, MaxDocSizeMB: 50, MinHistoryDays: 7}

	a, err := core.Open(ctx, core.Options{
		DataDir: t.TempDir(), NodeID: nodeA, Hostname: nodeA,
		Transport: netw.Node(nodeA),
		GC:        gcCfg,
		Crypto:    core.CryptoOptions{Algorithm: "aes-gcm", ScryptCost: 1024},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := core.Open(ctx, core.Options{
		DataDir: t.TempDir(), NodeID: nodeB, Hostname: nodeB,
		Transport: netw.Node(nodeB),
		GC:        gcCfg,
		Crypto:    core.CryptoOptions{Algorithm: "aes-gcm", ScryptCost: 1024},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	autoAccept(a)
	autoAccept(b)

	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	return &Pair{A: a, B: b, netw: netw}
}

// autoAccept subscribes to v's events and accepts every vault-adoption
// request, the behavior a host gives a user who has already confirmed
// pairing out of band.
func autoAccept(v *core.Vault) {
	sub := v.Events()
	go func() {
		for e := range sub {
			if e.Type == events.VaultAdoptionRequest && e.Respond != nil {
				e.Respond(true)
			}
		}
	}()
}

// Pair connects A to B by having A redeem an invite minted by B, then
// blocks until both sides report the peer synced (or the timeout elapses).
func (p *Pair) Pair(t *testing.T, ctx context.Context, timeout time.Duration) {
	t.Helper()
	ticket, err := p.B.GenerateInvite(ctx)
	require.NoError(t, err)
	require.NoError(t, p.A.AddPeer(ctx, ticket))

	require.NoError(t, WaitForEvent(ctx, p.A, events.PeerSynced, timeout))
	require.NoError(t, WaitForEvent(ctx, p.B, events.PeerSynced, timeout))
}

// WaitForEvent blocks until v publishes an event of the given type or the
// timeout elapses.
func WaitForEvent(ctx context.Context, v *core.Vault, typ events.Type, timeout time.Duration) error {
	sub := v.Events()
	defer v.UnsubscribeEvents(sub)

	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-sub:
			if !ok {
				return context.Canceled
			}
			if e.Type == typ {
				return nil
			}
		case <-deadline:
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
