package peer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/types"
)

func TestMergeGossipMostRecentLastSeenWins(t *testing.T) {
	now := time.Now()
	local := &types.PeerRecord{
		NodeID: "n1", FirstSeen: now.Add(-time.Hour), LastSeen: now.Add(-time.Minute),
		State: types.PeerStateDisconnected, GroupIDs: []string{"a"},
	}
	remote := &types.PeerRecord{
		NodeID: "n1", FirstSeen: now.Add(-30 * time.Minute), LastSeen: now,
		State: types.PeerStateSynced, GroupIDs: []string{"b"},
	}

	merged := mergeGossip(local, remote)
	require.Equal(t, types.PeerStateSynced, merged.State)
	require.Equal(t, local.FirstSeen, merged.FirstSeen)
	require.ElementsMatch(t, []string{"a", "b"}, merged.GroupIDs)
}

func TestMergeGossipStaleRemoteLoses(t *testing.T) {
	now := time.Now()
	local := &types.PeerRecord{NodeID: "n1", LastSeen: now, State: types.PeerStateSynced}
	remote := &types.PeerRecord{NodeID: "n1", LastSeen: now.Add(-time.Hour), State: types.PeerStateError}

	merged := mergeGossip(local, remote)
	require.Equal(t, types.PeerStateSynced, merged.State)
}

func TestSavePeerLoadPeersRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := storage.NewMemAdapter()

	rec := &types.PeerRecord{NodeID: "n1", Hostname: "laptop", State: types.PeerStateSynced}
	require.NoError(t, savePeer(ctx, adapter, rec))

	loaded, err := loadPeers(ctx, adapter)
	require.NoError(t, err)
	require.Contains(t, loaded, "n1")
	require.Equal(t, "laptop", loaded["n1"].Hostname)

	require.NoError(t, deletePeer(ctx, adapter, "n1"))
	loaded, err = loadPeers(ctx, adapter)
	require.NoError(t, err)
	require.NotContains(t, loaded, "n1")
}
