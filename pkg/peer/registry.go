package peer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/types"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

const peerKeyPrefix = "peer:"

func peerKey(nodeID string) string { return peerKeyPrefix + nodeID }

func loadPeers(ctx context.Context, adapter storage.Adapter) (map[string]*types.PeerRecord, error) {
	keys, err := adapter.List(ctx, peerKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*types.PeerRecord, len(keys))
	for _, key := range keys {
		data, err := adapter.Read(ctx, key)
		if err != nil {
			continue
		}
		var rec types.PeerRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out[rec.NodeID] = &rec
	}
	return out, nil
}

func savePeer(ctx context.Context, adapter storage.Adapter, rec *types.PeerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := adapter.Write(ctx, peerKey(rec.NodeID), data); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
	}
	return nil
}

func deletePeer(ctx context.Context, adapter storage.Adapter, nodeID string) error {
	return adapter.Delete(ctx, peerKey(nodeID))
}

// mergeGossip resolves a nodeID collision between our locally-held record
// and one the peer gossiped to us: most recent LastSeen wins (Open
// Question (b)), preserving FirstSeen from whichever record is older.
func mergeGossip(local, remote *types.PeerRecord) *types.PeerRecord {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	winner := local
	if remote.LastSeen.After(local.LastSeen) {
		winner = remote
	}
	merged := *winner
	if local.FirstSeen.Before(remote.FirstSeen) {
		merged.FirstSeen = local.FirstSeen
	} else {
		merged.FirstSeen = remote.FirstSeen
	}
	merged.GroupIDs = mergeGroupIDs(local.GroupIDs, remote.GroupIDs)
	return &merged
}

func mergeGroupIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, id := range append(append([]string{}, a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func trimTicket(ticket string) string {
	return strings.TrimSpace(ticket)
}
